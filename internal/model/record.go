// internal/model/record.go
// Package model defines the data structures used throughout the tracker service.
// These structures represent the catalog records, their status history, fetched
// metadata and the persisted UI preferences.
package model

import (
	"strings"
	"time"
)

// Medium is the kind of media a record tracks.
type Medium string

const (
	MediumMovie       Medium = "Movie"
	MediumTVShow      Medium = "TV Show"
	MediumBook        Medium = "Book"
	MediumTheatre     Medium = "Theatre"
	MediumLiveTheatre Medium = "Live Theatre"
	MediumPodcast     Medium = "Podcast"
)

// Media lists every supported medium in display order.
var Media = []Medium{MediumMovie, MediumTVShow, MediumBook, MediumTheatre, MediumLiveTheatre, MediumPodcast}

// Status is the progress state of a record.
type Status string

const (
	StatusWatching    Status = "Watching"
	StatusFinished    Status = "Finished"
	StatusDropped     Status = "Dropped"
	StatusPlanToWatch Status = "Plan to Watch"
	StatusOnHold      Status = "On Hold"
)

// Statuses lists every supported status in display order.
var Statuses = []Status{StatusWatching, StatusFinished, StatusDropped, StatusPlanToWatch, StatusOnHold}

// Record represents a tracked media entry.
// This corresponds to the records table in storage.
type Record struct {
	ID            string    `json:"id" db:"id"`                                        // ULID assigned on create
	Title         string    `json:"title" db:"title"`                                  // Never empty
	Medium        *Medium   `json:"medium,omitempty" db:"medium"`                      // Movie, TV Show, Book, ...
	Type          *string   `json:"type,omitempty" db:"type"`                          // Free-text tag (Anime, Documentary, ...)
	Status        *Status   `json:"status,omitempty" db:"status"`                      // Watching, Finished, ...
	Genre         []string  `json:"genre,omitempty" db:"genre"`                        // Normalized genre list
	Language      []string  `json:"language,omitempty" db:"language"`                  // Canonical language names
	Platform      *string   `json:"platform,omitempty" db:"platform"`                  // Netflix, Kindle, cinema, ...
	Episodes      *int      `json:"episodes,omitempty" db:"episodes"`                  // Non-negative
	Length        *string   `json:"length,omitempty" db:"length"`                      // "148 min", "320 pages"
	MyRating      *float64  `json:"my_rating,omitempty" db:"my_rating"`                // 0-10
	AverageRating *float64  `json:"average_rating,omitempty" db:"average_rating"`      // 0-10
	PriceCents    *int      `json:"price_cents,omitempty" db:"price_cents"`            // What it cost, if anything
	StartDate     *string   `json:"start_date,omitempty" db:"start_date"`              // YYYY-MM-DD
	FinishDate    *string   `json:"finish_date,omitempty" db:"finish_date"`            // YYYY-MM-DD
	PosterURL     *string   `json:"poster_url,omitempty" db:"poster_url"`              // Cover art
	IMDbID        *string   `json:"imdb_id,omitempty" db:"imdb_id"`                    // IMDb id, TMDB id or ISBN
	Notes         *string   `json:"notes,omitempty" db:"notes"`                        // Free text
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of r so callers can modify it without aliasing.
func (r Record) Clone() Record {
	out := r
	out.Medium = clonePtr(r.Medium)
	out.Type = clonePtr(r.Type)
	out.Status = clonePtr(r.Status)
	out.Platform = clonePtr(r.Platform)
	out.Episodes = clonePtr(r.Episodes)
	out.Length = clonePtr(r.Length)
	out.MyRating = clonePtr(r.MyRating)
	out.AverageRating = clonePtr(r.AverageRating)
	out.PriceCents = clonePtr(r.PriceCents)
	out.StartDate = clonePtr(r.StartDate)
	out.FinishDate = clonePtr(r.FinishDate)
	out.PosterURL = clonePtr(r.PosterURL)
	out.IMDbID = clonePtr(r.IMDbID)
	out.Notes = clonePtr(r.Notes)
	out.Genre = cloneStrings(r.Genre)
	out.Language = cloneStrings(r.Language)
	return out
}

// ActivityDate is the date a record is filed under: the finish date when
// present, the start date otherwise. Empty when neither is set.
func (r Record) ActivityDate() string {
	if s := StringValue(r.FinishDate); s != "" {
		return s
	}
	return StringValue(r.StartDate)
}

// StatusChange is one entry of the append-only status history.
// This corresponds to the status_history table in storage.
type StatusChange struct {
	ID        int64     `json:"id" db:"id"`
	RecordID  string    `json:"record_id" db:"record_id"`
	OldStatus *Status   `json:"old_status,omitempty" db:"old_status"`
	NewStatus *Status   `json:"new_status,omitempty" db:"new_status"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
}

// Metadata is what a metadata provider returned for a query.
// Every field is optional; absent fields are never merged.
type Metadata struct {
	Title         string   `json:"title,omitempty"`
	PosterURL     *string  `json:"poster_url,omitempty"`
	Genre         []string `json:"genre,omitempty"`
	Language      []string `json:"language,omitempty"`
	AverageRating *float64 `json:"average_rating,omitempty"`
	Length        *string  `json:"length,omitempty"`
	Episodes      *int     `json:"episodes,omitempty"`
	IMDbID        *string  `json:"imdb_id,omitempty"`
	Provider      string   `json:"provider,omitempty"` // omdb, tmdb or googlebooks
}

// Preferences holds the persisted UI state of a user: which list columns are
// visible and the last applied filter, encoded as a URL query string.
type Preferences struct {
	UserID         string    `json:"user_id" db:"user_id"`
	VisibleColumns []string  `json:"visible_columns" db:"visible_columns"`
	Filter         string    `json:"filter" db:"filter"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// StringValue dereferences s, returning the trimmed value or "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
