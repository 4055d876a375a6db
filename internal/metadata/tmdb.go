package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/normalize"
)

type tmdbNamed struct {
	Name string `json:"name"`
}

type tmdbLanguage struct {
	ISO639      string `json:"iso_639_1"`
	EnglishName string `json:"english_name"`
}

type tmdbDetails struct {
	ID              int            `json:"id"`
	Title           string         `json:"title"` // movies
	Name            string         `json:"name"`  // tv
	PosterPath      string         `json:"poster_path"`
	Genres          []tmdbNamed    `json:"genres"`
	SpokenLanguages []tmdbLanguage `json:"spoken_languages"`
	VoteAverage     float64        `json:"vote_average"`
	VoteCount       int            `json:"vote_count"`
	Runtime         int            `json:"runtime"`
	EpisodeRunTime  []int          `json:"episode_run_time"`
	NumberEpisodes  int            `json:"number_of_episodes"`
	IMDbID          string         `json:"imdb_id"`
	ExternalIDs     struct {
		IMDbID string `json:"imdb_id"`
	} `json:"external_ids"`
	Seasons []struct {
		SeasonNumber int `json:"season_number"`
		EpisodeCount int `json:"episode_count"`
	} `json:"seasons"`
}

type tmdbHit struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Name  string `json:"name"`
}

func (h tmdbHit) label() string {
	if h.Title != "" {
		return h.Title
	}
	return h.Name
}

func tmdbError(body []byte) string {
	var e struct {
		StatusMessage string `json:"status_message"`
	}
	if json.Unmarshal(body, &e) == nil {
		return e.StatusMessage
	}
	return ""
}

func (c *Client) fetchTMDB(ctx context.Context, q Query) (*model.Metadata, error) {
	if c.opts.TMDBKey == "" {
		return nil, &FetchError{Provider: ProviderTMDB, Message: "api key not configured"}
	}

	kind := "movie"
	if q.isTV() {
		kind = "tv"
	}

	id, kind, err := c.tmdbResolve(ctx, q, kind)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("api_key", c.opts.TMDBKey)
	params.Set("append_to_response", "external_ids")
	var d tmdbDetails
	u := fmt.Sprintf("%s/%s/%d?%s", c.opts.Endpoints.TMDB, kind, id, params.Encode())
	if err := c.getJSON(ctx, ProviderTMDB, u, &d, tmdbError); err != nil {
		return nil, err
	}
	return c.tmdbMetadata(d, kind, q.Season), nil
}

// tmdbResolve finds the TMDB id for q. An IMDb id goes through /find, a
// numeric id is used as is, and anything else is a title search.
func (c *Client) tmdbResolve(ctx context.Context, q Query, kind string) (int, string, error) {
	if id, err := strconv.Atoi(q.ExternalID); err == nil && id > 0 {
		return id, kind, nil
	}

	params := url.Values{}
	params.Set("api_key", c.opts.TMDBKey)

	if isIMDbID(q.ExternalID) {
		params.Set("external_source", "imdb_id")
		var found struct {
			MovieResults []tmdbHit `json:"movie_results"`
			TVResults    []tmdbHit `json:"tv_results"`
		}
		u := c.opts.Endpoints.TMDB + "/find/" + url.PathEscape(q.ExternalID) + "?" + params.Encode()
		if err := c.getJSON(ctx, ProviderTMDB, u, &found, tmdbError); err != nil {
			return 0, "", err
		}
		switch {
		case kind == "tv" && len(found.TVResults) > 0:
			return found.TVResults[0].ID, "tv", nil
		case len(found.MovieResults) > 0:
			return found.MovieResults[0].ID, "movie", nil
		case len(found.TVResults) > 0:
			return found.TVResults[0].ID, "tv", nil
		}
		return 0, "", &FetchError{Provider: ProviderTMDB, Message: "no match found for " + q.ExternalID}
	}

	if q.Title == "" {
		return 0, "", &FetchError{Provider: ProviderTMDB, Message: "a title is required for search"}
	}
	params.Set("query", q.Title)
	var search struct {
		Results []tmdbHit `json:"results"`
	}
	u := c.opts.Endpoints.TMDB + "/search/" + kind + "?" + params.Encode()
	if err := c.getJSON(ctx, ProviderTMDB, u, &search, tmdbError); err != nil {
		return 0, "", err
	}
	labels := make([]string, len(search.Results))
	for i, h := range search.Results {
		labels[i] = h.label()
	}
	i := bestMatch(q.Title, labels)
	if i < 0 {
		return 0, "", &FetchError{Provider: ProviderTMDB, Message: fmt.Sprintf("no match found for %q", q.Title)}
	}
	return search.Results[i].ID, kind, nil
}

func (c *Client) tmdbMetadata(d tmdbDetails, kind string, season *int) *model.Metadata {
	md := &model.Metadata{Title: strings.TrimSpace(d.Title)}
	if md.Title == "" {
		md.Title = strings.TrimSpace(d.Name)
	}
	if d.PosterPath != "" {
		md.PosterURL = model.Ptr(strings.TrimRight(c.opts.Endpoints.TMDBImages, "/") + "/" + strings.TrimLeft(d.PosterPath, "/"))
	}

	genres := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		genres = append(genres, g.Name)
	}
	md.Genre = normalize.Genres(genres)

	langs := make([]string, 0, len(d.SpokenLanguages))
	for _, l := range d.SpokenLanguages {
		if l.ISO639 != "" {
			langs = append(langs, l.ISO639)
		} else {
			langs = append(langs, l.EnglishName)
		}
	}
	md.Language = normalize.Languages(langs)

	if d.VoteCount > 0 || d.VoteAverage > 0 {
		md.AverageRating = model.Ptr(d.VoteAverage)
	}

	switch kind {
	case "movie":
		if d.Runtime > 0 {
			md.Length = model.Ptr(strconv.Itoa(d.Runtime) + " min")
		}
	case "tv":
		if len(d.EpisodeRunTime) > 0 && d.EpisodeRunTime[0] > 0 {
			md.Length = model.Ptr(strconv.Itoa(d.EpisodeRunTime[0]) + " min")
		}
		if d.NumberEpisodes > 0 {
			md.Episodes = model.Ptr(d.NumberEpisodes)
		}
		if season != nil {
			for _, s := range d.Seasons {
				if s.SeasonNumber == *season {
					md.Episodes = model.Ptr(s.EpisodeCount)
					break
				}
			}
		}
	}

	if imdb := d.IMDbID; imdb != "" {
		md.IMDbID = model.Ptr(imdb)
	} else if imdb := d.ExternalIDs.IMDbID; imdb != "" {
		md.IMDbID = model.Ptr(imdb)
	} else if d.ID > 0 {
		md.IMDbID = model.Ptr(strconv.Itoa(d.ID))
	}
	return md
}
