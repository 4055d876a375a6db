// Package analytics computes derived values and aggregate statistics over
// catalog records.
package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/normalize"
)

const dateLayout = "2006-01-02"

// TopN bounds the genre and language rankings in a Summary.
const TopN = 10

// Days returns the inclusive number of days between start and finish. ok is
// false when either date is missing or malformed, or finish precedes start.
func Days(start, finish string) (int, bool) {
	s, err := parseDay(start)
	if err != nil {
		return 0, false
	}
	f, err := parseDay(finish)
	if err != nil {
		return 0, false
	}
	if f.Before(s) {
		return 0, false
	}
	return int(f.Sub(s).Hours()/24) + 1, true
}

// TimeTaken formats the inclusive day count between start and finish as
// "1 day" or "N days".
func TimeTaken(start, finish string) (string, bool) {
	n, ok := Days(start, finish)
	if !ok {
		return "", false
	}
	if n == 1 {
		return "1 day", true
	}
	return fmt.Sprintf("%d days", n), true
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.Parse(dateLayout, s)
}

// Count is one entry of a ranking.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary aggregates a set of records.
type Summary struct {
	Total               int            `json:"total"`
	ByMedium            map[string]int `json:"byMedium"`
	ByStatus            map[string]int `json:"byStatus"`
	Rated               int            `json:"rated"`
	AverageRating       *float64       `json:"averageRating,omitempty"`
	TotalEpisodes       int            `json:"totalEpisodes"`
	TotalSpentCents     int            `json:"totalSpentCents"`
	FinishedPerMonth    map[string]int `json:"finishedPerMonth"`
	TopGenres           []Count        `json:"topGenres"`
	TopLanguages        []Count        `json:"topLanguages"`
	AverageDaysToFinish *float64       `json:"averageDaysToFinish,omitempty"`
}

// Summarize aggregates records. Records without a medium or status are
// counted under "Unknown".
func Summarize(records []model.Record) Summary {
	s := Summary{
		Total:            len(records),
		ByMedium:         map[string]int{},
		ByStatus:         map[string]int{},
		FinishedPerMonth: map[string]int{},
	}

	var ratingSum float64
	var daysSum, finished int
	genres := map[string]*Count{}
	languages := map[string]*Count{}

	for _, r := range records {
		medium := "Unknown"
		if r.Medium != nil && *r.Medium != "" {
			medium = string(*r.Medium)
		}
		s.ByMedium[medium]++

		status := "Unknown"
		if r.Status != nil && *r.Status != "" {
			status = string(*r.Status)
		}
		s.ByStatus[status]++

		if r.MyRating != nil {
			s.Rated++
			ratingSum += *r.MyRating
		}
		if r.Episodes != nil {
			s.TotalEpisodes += *r.Episodes
		}
		if r.PriceCents != nil {
			s.TotalSpentCents += *r.PriceCents
		}

		if f := model.StringValue(r.FinishDate); len(f) >= 7 {
			if _, err := parseDay(f); err == nil {
				s.FinishedPerMonth[f[:7]]++
			}
		}
		if n, ok := Days(model.StringValue(r.StartDate), model.StringValue(r.FinishDate)); ok {
			daysSum += n
			finished++
		}

		for _, g := range normalize.Genres(r.Genre) {
			tally(genres, g)
		}
		for _, l := range normalize.Languages(r.Language) {
			tally(languages, l)
		}
	}

	if s.Rated > 0 {
		avg := ratingSum / float64(s.Rated)
		s.AverageRating = &avg
	}
	if finished > 0 {
		avg := float64(daysSum) / float64(finished)
		s.AverageDaysToFinish = &avg
	}
	s.TopGenres = rank(genres, TopN)
	s.TopLanguages = rank(languages, TopN)
	return s
}

func tally(m map[string]*Count, name string) {
	k := normalize.Key(name)
	if c, ok := m[k]; ok {
		c.Count++
		return
	}
	m[k] = &Count{Name: name, Count: 1}
}

// rank orders by count descending then name ascending and keeps at most n.
func rank(m map[string]*Count, n int) []Count {
	out := make([]Count, 0, len(m))
	for _, c := range m {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
