// Package filter evaluates structured list filters against catalog records and
// extracts the values each filter dimension can take.
package filter

import (
	"sort"
	"strings"

	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/normalize"
)

// Filter selects records. Every dimension is optional; an empty dimension
// places no constraint. Dimensions combine with AND.
//
// Scalar dimensions (media, platforms, statuses, types) and languages use OR
// within the dimension: a record needs to match one selected value. Genres use
// AND: a record must carry every selected genre.
type Filter struct {
	DateFrom  string   `json:"dateFrom,omitempty"`  // inclusive, YYYY-MM-DD
	DateTo    string   `json:"dateTo,omitempty"`    // inclusive, YYYY-MM-DD
	Media     []string `json:"media,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
	Statuses  []string `json:"statuses,omitempty"`
	Types     []string `json:"types,omitempty"`
	Genres    []string `json:"genres,omitempty"`
}

// IsEmpty reports whether f constrains nothing.
func (f Filter) IsEmpty() bool {
	return f.DateFrom == "" && f.DateTo == "" && len(f.Media) == 0 && len(f.Languages) == 0 &&
		len(f.Platforms) == 0 && len(f.Statuses) == 0 && len(f.Types) == 0 && len(f.Genres) == 0
}

// Apply returns the records matching f in their original order. The input is
// never modified and the result is always a new slice.
func Apply(records []model.Record, f Filter) []model.Record {
	m := compile(f)
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if m.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Match reports whether a single record passes f.
func Match(r model.Record, f Filter) bool {
	return compile(f).match(r)
}

type matcher struct {
	from, to  string
	media     map[string]bool
	languages map[string]bool
	platforms map[string]bool
	statuses  map[string]bool
	types     map[string]bool
	genres    []string
}

func compile(f Filter) matcher {
	m := matcher{
		from:      day(f.DateFrom),
		to:        day(f.DateTo),
		media:     keySet(f.Media),
		platforms: keySet(f.Platforms),
		statuses:  keySet(f.Statuses),
		types:     keySet(f.Types),
	}
	if len(f.Languages) > 0 {
		m.languages = keySet(normalize.Languages(f.Languages))
	}
	for _, g := range normalize.Genres(f.Genres) {
		m.genres = append(m.genres, normalize.Key(g))
	}
	return m
}

func (m matcher) match(r model.Record) bool {
	if m.from != "" || m.to != "" {
		d := day(r.ActivityDate())
		if d == "" {
			return false
		}
		if m.from != "" && d < m.from {
			return false
		}
		if m.to != "" && d > m.to {
			return false
		}
	}

	if m.media != nil && (r.Medium == nil || !m.media[normalize.Key(string(*r.Medium))]) {
		return false
	}
	if m.statuses != nil && (r.Status == nil || !m.statuses[normalize.Key(string(*r.Status))]) {
		return false
	}
	if m.platforms != nil && !m.platforms[normalize.Key(model.StringValue(r.Platform))] {
		return false
	}
	if m.types != nil && !m.types[normalize.Key(model.StringValue(r.Type))] {
		return false
	}

	if m.languages != nil {
		found := false
		for _, l := range normalize.Languages(r.Language) {
			if m.languages[normalize.Key(l)] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(m.genres) > 0 {
		have := keySet(normalize.Genres(r.Genre))
		for _, g := range m.genres {
			if !have[g] {
				return false
			}
		}
	}

	return true
}

// keySet returns nil for an empty selection so callers can tell "no
// constraint" apart from "constraint that nothing satisfies".
func keySet(values []string) map[string]bool {
	var set map[string]bool
	for _, v := range values {
		k := normalize.Key(v)
		if k == "" {
			continue
		}
		if set == nil {
			set = make(map[string]bool, len(values))
		}
		set[k] = true
	}
	return set
}

// day truncates an ISO 8601 date or timestamp to its YYYY-MM-DD prefix so
// values compare lexicographically.
func day(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// Options lists the distinct values observed per filter dimension.
type Options struct {
	Media     []string `json:"media"`
	Languages []string `json:"languages"`
	Platforms []string `json:"platforms"`
	Statuses  []string `json:"statuses"`
	Types     []string `json:"types"`
	Genres    []string `json:"genres"`
}

// ExtractOptions scans records and returns, per dimension, the sorted set of
// distinct non-empty values. List fields are flattened.
func ExtractOptions(records []model.Record) Options {
	var media, langs, platforms, statuses, types, genres collector
	for _, r := range records {
		if r.Medium != nil {
			media.add(string(*r.Medium))
		}
		if r.Status != nil {
			statuses.add(string(*r.Status))
		}
		platforms.add(model.StringValue(r.Platform))
		types.add(model.StringValue(r.Type))
		for _, l := range normalize.Languages(r.Language) {
			langs.add(l)
		}
		for _, g := range normalize.Genres(r.Genre) {
			genres.add(g)
		}
	}
	return Options{
		Media:     media.sorted(),
		Languages: langs.sorted(),
		Platforms: platforms.sorted(),
		Statuses:  statuses.sorted(),
		Types:     types.sorted(),
		Genres:    genres.sorted(),
	}
}

// collector keeps the first-seen spelling of each case-insensitive value.
type collector struct {
	seen   map[string]bool
	values []string
}

func (c *collector) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	k := normalize.Key(v)
	if c.seen[k] {
		return
	}
	c.seen[k] = true
	c.values = append(c.values, v)
}

func (c *collector) sorted() []string {
	out := make([]string, len(c.values))
	copy(out, c.values)
	sort.Strings(out)
	return out
}
