package catalog

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/vannputh/analytics/internal/filter"
	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/schema"
	"github.com/vannputh/analytics/internal/storage"
)

// DefaultColumns are the list columns shown until a user picks their own.
var DefaultColumns = []string{"title", "medium", "status", "genre", "language", "my_rating", "finish_date"}

// Columns are the list columns a user may show.
var Columns = map[string]bool{
	"title": true, "medium": true, "type": true, "status": true, "genre": true, "language": true,
	"platform": true, "episodes": true, "length": true, "my_rating": true, "average_rating": true,
	"price_cents": true, "start_date": true, "finish_date": true, "time_taken": true, "notes": true,
}

// Preferences returns the saved preferences of userID, or the defaults when
// nothing was saved yet.
func (s *Service) Preferences(ctx context.Context, userID string) (*model.Preferences, error) {
	start := time.Now()
	p, err := s.store.GetPreferences(ctx, userID)
	s.observe("get_preferences", start, err)
	if errors.Is(err, storage.ErrNotFound) {
		return &model.Preferences{
			UserID:         userID,
			VisibleColumns: append([]string(nil), DefaultColumns...),
		}, nil
	}
	if err != nil {
		return nil, s.storageErr("get preferences", err)
	}
	return p, nil
}

// SavePreferences validates and stores p. The filter must be a query string
// filter.ParseQuery accepts; it is stored re-encoded in canonical form.
func (s *Service) SavePreferences(ctx context.Context, p model.Preferences) (*model.Preferences, error) {
	invalid := map[string]string{}

	seen := make(map[string]bool, len(p.VisibleColumns))
	columns := make([]string, 0, len(p.VisibleColumns))
	for _, c := range p.VisibleColumns {
		c = strings.TrimSpace(c)
		if !Columns[c] {
			invalid["visible_columns"] = "unknown column " + c
			continue
		}
		if !seen[c] {
			seen[c] = true
			columns = append(columns, c)
		}
	}
	p.VisibleColumns = columns

	values, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(p.Filter), "?"))
	if err != nil {
		invalid["filter"] = "not a valid query string"
	} else if f, err := filter.ParseQuery(values); err != nil {
		invalid["filter"] = err.Error()
	} else {
		p.Filter = f.Encode()
	}
	if len(invalid) > 0 {
		return nil, &schema.ValidationError{Fields: invalid}
	}
	if err := s.validator.ValidatePreferences(p); err != nil {
		return nil, err
	}

	p.UpdatedAt = s.now()
	start := time.Now()
	err = s.store.PutPreferences(ctx, p)
	s.observe("put_preferences", start, err)
	if err != nil {
		return nil, s.storageErr("save preferences", err)
	}
	return &p, nil
}
