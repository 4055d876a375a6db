package filter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Query parameter names used to encode a Filter in a URL.
const (
	paramFrom     = "from"
	paramTo       = "to"
	paramMedium   = "medium"
	paramLanguage = "language"
	paramPlatform = "platform"
	paramStatus   = "status"
	paramType     = "type"
	paramGenre    = "genre"
)

const dateLayout = "2006-01-02"

// ErrInvalidQuery is wrapped by every ParseQuery failure.
var ErrInvalidQuery = errors.New("invalid filter query")

// ParseQuery decodes a Filter from URL query values. List parameters may be
// repeated or comma separated. Unknown parameters are ignored.
func ParseQuery(q url.Values) (Filter, error) {
	f := Filter{
		DateFrom:  strings.TrimSpace(q.Get(paramFrom)),
		DateTo:    strings.TrimSpace(q.Get(paramTo)),
		Media:     listParam(q, paramMedium),
		Languages: listParam(q, paramLanguage),
		Platforms: listParam(q, paramPlatform),
		Statuses:  listParam(q, paramStatus),
		Types:     listParam(q, paramType),
		Genres:    listParam(q, paramGenre),
	}

	var from, to time.Time
	var err error
	if f.DateFrom != "" {
		if from, err = time.Parse(dateLayout, f.DateFrom); err != nil {
			return Filter{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidQuery, paramFrom)
		}
	}
	if f.DateTo != "" {
		if to, err = time.Parse(dateLayout, f.DateTo); err != nil {
			return Filter{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidQuery, paramTo)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return Filter{}, fmt.Errorf("%w: %s is before %s", ErrInvalidQuery, paramTo, paramFrom)
	}

	return f, nil
}

// Encode renders f as a URL query string that ParseQuery reads back.
func (f Filter) Encode() string {
	q := url.Values{}
	if f.DateFrom != "" {
		q.Set(paramFrom, f.DateFrom)
	}
	if f.DateTo != "" {
		q.Set(paramTo, f.DateTo)
	}
	addList(q, paramMedium, f.Media)
	addList(q, paramLanguage, f.Languages)
	addList(q, paramPlatform, f.Platforms)
	addList(q, paramStatus, f.Statuses)
	addList(q, paramType, f.Types)
	addList(q, paramGenre, f.Genres)
	return q.Encode()
}

func listParam(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func addList(q url.Values, key string, values []string) {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			q.Add(key, v)
		}
	}
}
