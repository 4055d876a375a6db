// Package metadata looks up titles on third-party catalogs (OMDB, TMDB and
// Google Books) and maps their answers onto model.Metadata.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vannputh/analytics/internal/metrics"
	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/telemetry"
)

// Provider selects the catalog a Query is sent to.
type Provider string

const (
	ProviderAuto        Provider = ""
	ProviderOMDB        Provider = "omdb"
	ProviderTMDB        Provider = "tmdb"
	ProviderGoogleBooks Provider = "googlebooks"
)

// Valid reports whether p is a known provider or auto.
func (p Provider) Valid() bool {
	switch p {
	case ProviderAuto, ProviderOMDB, ProviderTMDB, ProviderGoogleBooks:
		return true
	}
	return false
}

// Query describes what to look up. At least one of Title and ExternalID is
// required. ExternalID may be an IMDb id (tt...), a TMDB id or an ISBN.
type Query struct {
	Title      string       `json:"title,omitempty"`
	ExternalID string       `json:"externalId,omitempty"`
	Medium     model.Medium `json:"medium,omitempty"`
	Season     *int         `json:"season,omitempty"`
	Provider   Provider     `json:"provider,omitempty"`
}

func (q Query) normalized() Query {
	q.Title = strings.TrimSpace(q.Title)
	q.ExternalID = strings.TrimSpace(q.ExternalID)
	q.Provider = Provider(strings.ToLower(strings.TrimSpace(string(q.Provider))))
	return q
}

func (q Query) isTV() bool {
	return q.Medium == model.MediumTVShow || q.Season != nil
}

// Fetcher is implemented by anything that can resolve a Query.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (*model.Metadata, error)
}

// FetchError reports a failed lookup with a message suitable for users.
type FetchError struct {
	Provider Provider
	Status   int // HTTP status from the provider, 0 when the request never completed
	Message  string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	return string(e.Provider) + ": " + e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }

// Endpoints holds provider base URLs; tests point them at httptest servers.
type Endpoints struct {
	OMDB        string
	TMDB        string
	TMDBImages  string
	GoogleBooks string
}

// DefaultEndpoints are the public provider APIs.
var DefaultEndpoints = Endpoints{
	OMDB:        "https://www.omdbapi.com",
	TMDB:        "https://api.themoviedb.org/3",
	TMDBImages:  "https://image.tmdb.org/t/p/w500",
	GoogleBooks: "https://www.googleapis.com/books/v1",
}

// Options configure a Client.
type Options struct {
	OMDBKey        string
	TMDBKey        string
	GoogleBooksKey string
	CacheTTL       time.Duration // Zero disables caching
	HTTPClient     *http.Client
	Endpoints      Endpoints
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Client dispatches queries to the configured providers and caches answers.
type Client struct {
	opts    Options
	http    *http.Client
	cache   *cache.Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a Client. Unset endpoints fall back to DefaultEndpoints.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Endpoints.OMDB == "" {
		opts.Endpoints.OMDB = DefaultEndpoints.OMDB
	}
	if opts.Endpoints.TMDB == "" {
		opts.Endpoints.TMDB = DefaultEndpoints.TMDB
	}
	if opts.Endpoints.TMDBImages == "" {
		opts.Endpoints.TMDBImages = DefaultEndpoints.TMDBImages
	}
	if opts.Endpoints.GoogleBooks == "" {
		opts.Endpoints.GoogleBooks = DefaultEndpoints.GoogleBooks
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		opts:    opts,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if opts.CacheTTL > 0 {
		c.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return c
}

// Choose resolves ProviderAuto: books go to Google Books, everything else to
// OMDB when it has a key and TMDB otherwise.
func (c *Client) Choose(q Query) Provider {
	if q.Provider != ProviderAuto {
		return q.Provider
	}
	if q.Medium == model.MediumBook {
		return ProviderGoogleBooks
	}
	if c.opts.OMDBKey != "" {
		return ProviderOMDB
	}
	return ProviderTMDB
}

// Fetch looks q up. Failures are returned as *FetchError. Successful answers
// are cached by query.
func (c *Client) Fetch(ctx context.Context, q Query) (*model.Metadata, error) {
	q = q.normalized()
	if q.Title == "" && q.ExternalID == "" {
		return nil, &FetchError{Message: "a title or external id is required"}
	}
	if !q.Provider.Valid() {
		return nil, &FetchError{Message: fmt.Sprintf("unknown provider %q", q.Provider)}
	}

	provider := c.Choose(q)
	ctx, span := telemetry.Start(ctx, "metadata.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("provider", string(provider)), attribute.String("title", q.Title))

	key := cacheKey(provider, q)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			if c.metrics != nil {
				c.metrics.MetadataCacheHits.Inc()
			}
			md := v.(model.Metadata)
			return cloneMetadata(md), nil
		}
	}

	start := time.Now()
	var md *model.Metadata
	var err error
	switch provider {
	case ProviderOMDB:
		md, err = c.fetchOMDB(ctx, q)
	case ProviderTMDB:
		md, err = c.fetchTMDB(ctx, q)
	case ProviderGoogleBooks:
		md, err = c.fetchGoogleBooks(ctx, q)
	}
	if c.metrics != nil {
		c.metrics.ObserveFetch(string(provider), start, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("metadata fetch failed", "provider", provider, "title", q.Title, "external_id", q.ExternalID, "error", err)
		return nil, err
	}

	md.Provider = string(provider)
	if c.cache != nil {
		c.cache.Set(key, *cloneMetadata(*md), cache.DefaultExpiration)
	}
	return md, nil
}

func cacheKey(p Provider, q Query) string {
	season := ""
	if q.Season != nil {
		season = strconv.Itoa(*q.Season)
	}
	return strings.Join([]string{string(p), strings.ToLower(q.Title), strings.ToLower(q.ExternalID), string(q.Medium), season}, "|")
}

func cloneMetadata(m model.Metadata) *model.Metadata {
	out := m
	out.Genre = append([]string(nil), m.Genre...)
	out.Language = append([]string(nil), m.Language...)
	if m.PosterURL != nil {
		out.PosterURL = model.Ptr(*m.PosterURL)
	}
	if m.AverageRating != nil {
		out.AverageRating = model.Ptr(*m.AverageRating)
	}
	if m.Length != nil {
		out.Length = model.Ptr(*m.Length)
	}
	if m.Episodes != nil {
		out.Episodes = model.Ptr(*m.Episodes)
	}
	if m.IMDbID != nil {
		out.IMDbID = model.Ptr(*m.IMDbID)
	}
	return &out
}

// getJSON issues a GET and decodes a 2xx JSON body into dst. On a non-2xx
// answer errMessage extracts the provider's own message from the body.
func (c *Client) getJSON(ctx context.Context, p Provider, url string, dst any, errMessage func([]byte) string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchError{Provider: p, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Provider: p, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &FetchError{Provider: p, Status: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if errMessage != nil {
			msg = errMessage(body)
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &FetchError{Provider: p, Status: resp.StatusCode, Message: fmt.Sprintf("returned %d: %s", resp.StatusCode, msg)}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &FetchError{Provider: p, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

// present returns nil for blank and "N/A" values.
func present(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return nil
	}
	return &s
}
