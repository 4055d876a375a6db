package model

// RecordPatch is a partial update of a record. A nil field leaves the stored
// value untouched; Clear lists JSON field names to reset to null.
//
// Genre and Language accept any persisted shape (plain string, comma separated
// string, JSON array encoded as a string, or an array) and are normalized when
// the patch is applied.
type RecordPatch struct {
	Title         *string  `json:"title,omitempty"`
	Medium        *Medium  `json:"medium,omitempty"`
	Type          *string  `json:"type,omitempty"`
	Status        *Status  `json:"status,omitempty"`
	Genre         any      `json:"genre,omitempty"`
	Language      any      `json:"language,omitempty"`
	Platform      *string  `json:"platform,omitempty"`
	Episodes      *int     `json:"episodes,omitempty"`
	Length        *string  `json:"length,omitempty"`
	MyRating      *float64 `json:"my_rating,omitempty"`
	AverageRating *float64 `json:"average_rating,omitempty"`
	PriceCents    *int     `json:"price_cents,omitempty"`
	StartDate     *string  `json:"start_date,omitempty"`
	FinishDate    *string  `json:"finish_date,omitempty"`
	PosterURL     *string  `json:"poster_url,omitempty"`
	IMDbID        *string  `json:"imdb_id,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
	Clear         []string `json:"clear,omitempty"`
}

// ClearableFields are the JSON names accepted in RecordPatch.Clear.
var ClearableFields = map[string]bool{
	"medium":         true,
	"type":           true,
	"status":         true,
	"genre":          true,
	"language":       true,
	"platform":       true,
	"episodes":       true,
	"length":         true,
	"my_rating":      true,
	"average_rating": true,
	"price_cents":    true,
	"start_date":     true,
	"finish_date":    true,
	"poster_url":     true,
	"imdb_id":        true,
	"notes":          true,
}

// IsEmpty reports whether the patch changes nothing.
func (p RecordPatch) IsEmpty() bool {
	return p.Title == nil && p.Medium == nil && p.Type == nil && p.Status == nil &&
		p.Genre == nil && p.Language == nil && p.Platform == nil && p.Episodes == nil &&
		p.Length == nil && p.MyRating == nil && p.AverageRating == nil && p.PriceCents == nil &&
		p.StartDate == nil && p.FinishDate == nil && p.PosterURL == nil && p.IMDbID == nil &&
		p.Notes == nil && len(p.Clear) == 0
}
