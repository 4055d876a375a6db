package normalize

// Genres normalizes a raw genre value: tokens are trimmed and unquoted, empty
// ones dropped and duplicates removed case-insensitively, keeping the casing
// and position of the first occurrence. The result is never nil.
func Genres(raw any) []string {
	tokens := Tokens(raw)
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		g := Clean(t)
		if g == "" {
			continue
		}
		k := Key(g)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, g)
	}
	return out
}

// Union appends to base every entry of extra not already present under
// case-insensitive comparison. base keeps its order and casing; new entries
// keep theirs. Neither input is modified.
func Union(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, s := range base {
		out = append(out, s)
		seen[Key(s)] = true
	}
	for _, s := range extra {
		k := Key(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
