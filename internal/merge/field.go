// Package merge applies fetched metadata onto an existing record, deciding per
// field whether to fill, overwrite, union or leave the local value alone.
package merge

import (
	"fmt"
	"strings"
)

// Field identifies a record field that fetched metadata can populate.
type Field int

const (
	FieldTitle Field = iota
	FieldPosterURL
	FieldGenre
	FieldLanguage
	FieldAverageRating
	FieldLength
	FieldEpisodes
	FieldIMDbID
)

// Fields lists every mergeable field in presentation order.
var Fields = []Field{
	FieldTitle,
	FieldPosterURL,
	FieldGenre,
	FieldLanguage,
	FieldAverageRating,
	FieldLength,
	FieldEpisodes,
	FieldIMDbID,
}

var fieldNames = map[Field]string{
	FieldTitle:         "title",
	FieldPosterURL:     "poster_url",
	FieldGenre:         "genre",
	FieldLanguage:      "language",
	FieldAverageRating: "average_rating",
	FieldLength:        "length",
	FieldEpisodes:      "episodes",
	FieldIMDbID:        "imdb_id",
}

// String returns the JSON name of the record field.
func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// ParseField resolves a JSON field name.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, n := range fieldNames {
		if n == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown merge field %q", s)
}

func (f Field) MarshalText() ([]byte, error) {
	if _, ok := fieldNames[f]; !ok {
		return nil, fmt.Errorf("unknown merge field %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Field) UnmarshalText(b []byte) error {
	v, err := ParseField(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Decision is the user's choice for one field.
type Decision int

const (
	Keep Decision = iota
	Overwrite
)

func (d Decision) String() string {
	if d == Overwrite {
		return "overwrite"
	}
	return "keep"
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decision) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "keep":
		*d = Keep
	case "overwrite":
		*d = Overwrite
	default:
		return fmt.Errorf("unknown merge decision %q", string(b))
	}
	return nil
}

// FieldDecision pairs a field with the decision taken for it.
type FieldDecision struct {
	Field    Field    `json:"field"`
	Decision Decision `json:"decision"`
}

// Conflict describes a field the fetched metadata would touch, with the
// current and fetched values and the suggested decision.
type Conflict struct {
	Field    Field    `json:"field"`
	Current  any      `json:"current"`
	Fetched  any      `json:"fetched"`
	Decision Decision `json:"decision"`
}
