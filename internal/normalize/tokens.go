// Package normalize converts the list-valued fields of a record (genre and
// language) from whatever shape they were persisted in into one canonical
// list. Records accumulated three incompatible shapes over time: a plain or
// comma separated string, a JSON array serialized into a text column, and a
// native array. Every reader goes through this package so nothing else has to
// care which shape a row happens to be in.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// quoteChars are stray quote characters left behind by hand-edited or double
// encoded values.
const quoteChars = "\"'`‘’“”"

var folder = cases.Fold()

// Tokens splits a raw list value into its individual, untrimmed tokens.
//
// Supported shapes: nil, string, *string, []string, []any (nested arrays are
// flattened) and json.RawMessage. A string that looks like a JSON array is
// parsed as one; when the parse fails the whole string is a single token.
// Otherwise a string is split on commas.
func Tokens(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return stringTokens(v)
	case *string:
		if v == nil {
			return nil
		}
		return stringTokens(*v)
	case []string:
		out := make([]string, 0, len(v))
		out = append(out, v...)
		return out
	case []any:
		return flatten(v)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return stringTokens(string(v))
		}
		return Tokens(decoded)
	default:
		return []string{fmt.Sprint(v)}
	}
}

func stringTokens(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			// Malformed JSON is kept as one literal token.
			return []string{s}
		}
		if arr, ok := parsed.([]any); ok {
			return flatten(arr)
		}
		if parsed == nil {
			return nil
		}
		return []string{fmt.Sprint(parsed)}
	}
	if strings.Contains(s, ",") {
		return strings.Split(s, ",")
	}
	return []string{s}
}

func flatten(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch e := v.(type) {
		case nil:
			continue
		case string:
			out = append(out, e)
		case []any:
			out = append(out, flatten(e)...)
		default:
			out = append(out, fmt.Sprint(e))
		}
	}
	return out
}

// Clean trims whitespace and strips stray quote characters from a token.
func Clean(token string) string {
	token = strings.TrimSpace(token)
	token = strings.Trim(token, quoteChars)
	return strings.TrimSpace(token)
}

// Key is the case-insensitive identity of a list entry.
func Key(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// Contains reports whether list holds value under case-insensitive comparison.
func Contains(list []string, value string) bool {
	k := Key(value)
	for _, item := range list {
		if Key(item) == k {
			return true
		}
	}
	return false
}

// Capitalize upper-cases the first letter of s and leaves the rest alone.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
