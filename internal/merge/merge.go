package merge

import (
	"strings"

	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/normalize"
)

// Apply merges fetched onto a copy of existing and returns it. existing is
// never modified.
//
// With overrides == nil every scalar field is filled only where the existing
// value is empty, and genre and language are unioned with the fetched lists.
//
// With overrides != nil a field decided Overwrite is replaced by the fetched
// value when one is present; a field decided Keep leaves scalars untouched and
// unions lists. Fields the overrides do not mention fall back to the nil
// behaviour.
func Apply(existing model.Record, fetched model.Metadata, overrides []FieldDecision) model.Record {
	out := existing.Clone()
	decided := make(map[Field]Decision, len(overrides))
	for _, d := range overrides {
		decided[d.Field] = d.Decision
	}

	replace := func(f Field, currentPresent bool) bool {
		d, ok := decided[f]
		if !ok {
			return !currentPresent
		}
		return d == Overwrite
	}

	if t := strings.TrimSpace(fetched.Title); t != "" && replace(FieldTitle, strings.TrimSpace(out.Title) != "") {
		out.Title = t
	}
	if v := model.StringValue(fetched.PosterURL); v != "" && replace(FieldPosterURL, model.StringValue(out.PosterURL) != "") {
		out.PosterURL = model.Ptr(v)
	}
	if fetched.AverageRating != nil && replace(FieldAverageRating, out.AverageRating != nil) {
		out.AverageRating = model.Ptr(*fetched.AverageRating)
	}
	if v := model.StringValue(fetched.Length); v != "" && replace(FieldLength, model.StringValue(out.Length) != "") {
		out.Length = model.Ptr(v)
	}
	if fetched.Episodes != nil && replace(FieldEpisodes, out.Episodes != nil) {
		out.Episodes = model.Ptr(*fetched.Episodes)
	}
	if v := model.StringValue(fetched.IMDbID); v != "" && replace(FieldIMDbID, model.StringValue(out.IMDbID) != "") {
		out.IMDbID = model.Ptr(v)
	}

	out.Genre = mergeList(out.Genre, normalize.Genres(fetched.Genre), decided[FieldGenre])
	out.Language = mergeList(out.Language, normalize.Languages(fetched.Language), decided[FieldLanguage])

	return out
}

func mergeList(current, fetched []string, d Decision) []string {
	if len(fetched) == 0 {
		return current
	}
	if d == Overwrite {
		return fetched
	}
	return normalize.Union(current, fetched)
}

// NeedsConfirmation reports whether existing already carries a value in any
// mergeable field, in which case the user should confirm overrides field by
// field instead of merging silently.
func NeedsConfirmation(existing model.Record) bool {
	for _, f := range Fields {
		if _, ok := currentValue(existing, f); ok {
			return true
		}
	}
	return false
}

// Conflicts lists every field fetched has a value for. The suggested decision
// is Overwrite only when existing also has a value for that field.
func Conflicts(existing model.Record, fetched model.Metadata) []Conflict {
	var out []Conflict
	for _, f := range Fields {
		fv, ok := fetchedValue(fetched, f)
		if !ok {
			continue
		}
		cv, present := currentValue(existing, f)
		c := Conflict{Field: f, Current: cv, Fetched: fv, Decision: Keep}
		if present {
			c.Decision = Overwrite
		}
		out = append(out, c)
	}
	return out
}

// DecisionsFrom turns reviewed conflicts into the overrides Apply expects.
func DecisionsFrom(conflicts []Conflict) []FieldDecision {
	out := make([]FieldDecision, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, FieldDecision{Field: c.Field, Decision: c.Decision})
	}
	return out
}

func currentValue(r model.Record, f Field) (any, bool) {
	switch f {
	case FieldTitle:
		if t := strings.TrimSpace(r.Title); t != "" {
			return t, true
		}
	case FieldPosterURL:
		if v := model.StringValue(r.PosterURL); v != "" {
			return v, true
		}
	case FieldGenre:
		if g := normalize.Genres(r.Genre); len(g) > 0 {
			return g, true
		}
	case FieldLanguage:
		if l := normalize.Languages(r.Language); len(l) > 0 {
			return l, true
		}
	case FieldAverageRating:
		if r.AverageRating != nil {
			return *r.AverageRating, true
		}
	case FieldLength:
		if v := model.StringValue(r.Length); v != "" {
			return v, true
		}
	case FieldEpisodes:
		if r.Episodes != nil {
			return *r.Episodes, true
		}
	case FieldIMDbID:
		if v := model.StringValue(r.IMDbID); v != "" {
			return v, true
		}
	}
	return nil, false
}

func fetchedValue(m model.Metadata, f Field) (any, bool) {
	switch f {
	case FieldTitle:
		if t := strings.TrimSpace(m.Title); t != "" {
			return t, true
		}
	case FieldPosterURL:
		if v := model.StringValue(m.PosterURL); v != "" {
			return v, true
		}
	case FieldGenre:
		if g := normalize.Genres(m.Genre); len(g) > 0 {
			return g, true
		}
	case FieldLanguage:
		if l := normalize.Languages(m.Language); len(l) > 0 {
			return l, true
		}
	case FieldAverageRating:
		if m.AverageRating != nil {
			return *m.AverageRating, true
		}
	case FieldLength:
		if v := model.StringValue(m.Length); v != "" {
			return v, true
		}
	case FieldEpisodes:
		if m.Episodes != nil {
			return *m.Episodes, true
		}
	case FieldIMDbID:
		if v := model.StringValue(m.IMDbID); v != "" {
			return v, true
		}
	}
	return nil, false
}
