package metadata

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/normalize"
)

type omdbTitle struct {
	Response     string `json:"Response"`
	Error        string `json:"Error"`
	Title        string `json:"Title"`
	Runtime      string `json:"Runtime"`
	Genre        string `json:"Genre"`
	Language     string `json:"Language"`
	Poster       string `json:"Poster"`
	IMDbRating   string `json:"imdbRating"`
	IMDbID       string `json:"imdbID"`
	Type         string `json:"Type"`
	TotalSeasons string `json:"totalSeasons"`
}

type omdbSeason struct {
	Response string `json:"Response"`
	Error    string `json:"Error"`
	Episodes []struct {
		Title string `json:"Title"`
	} `json:"Episodes"`
}

func omdbError(body []byte) string {
	var e struct {
		Error string `json:"Error"`
	}
	if json.Unmarshal(body, &e) == nil {
		return e.Error
	}
	return ""
}

func (c *Client) fetchOMDB(ctx context.Context, q Query) (*model.Metadata, error) {
	if c.opts.OMDBKey == "" {
		return nil, &FetchError{Provider: ProviderOMDB, Message: "api key not configured"}
	}

	params := url.Values{}
	params.Set("apikey", c.opts.OMDBKey)
	if isIMDbID(q.ExternalID) {
		params.Set("i", q.ExternalID)
	} else {
		params.Set("t", q.Title)
	}
	switch {
	case q.isTV():
		params.Set("type", "series")
	case q.Medium == model.MediumMovie:
		params.Set("type", "movie")
	}

	var t omdbTitle
	if err := c.getJSON(ctx, ProviderOMDB, c.opts.Endpoints.OMDB+"/?"+params.Encode(), &t, omdbError); err != nil {
		return nil, err
	}
	if !strings.EqualFold(t.Response, "True") {
		msg := t.Error
		if msg == "" {
			msg = "no match found"
		}
		return nil, &FetchError{Provider: ProviderOMDB, Message: msg}
	}

	md := &model.Metadata{
		Title:     strings.TrimSpace(t.Title),
		PosterURL: present(t.Poster),
		Genre:     normalize.Genres(omdbList(t.Genre)),
		Language:  normalize.Languages(omdbList(t.Language)),
		Length:    present(t.Runtime),
		IMDbID:    present(t.IMDbID),
	}
	if r := present(t.IMDbRating); r != nil {
		if v, err := strconv.ParseFloat(*r, 64); err == nil {
			md.AverageRating = &v
		}
	}

	if q.Season != nil && strings.EqualFold(t.Type, "series") && md.IMDbID != nil {
		episodes, err := c.omdbSeasonEpisodes(ctx, *md.IMDbID, *q.Season)
		if err != nil {
			return nil, err
		}
		md.Episodes = &episodes
	}
	return md, nil
}

func (c *Client) omdbSeasonEpisodes(ctx context.Context, imdbID string, season int) (int, error) {
	params := url.Values{}
	params.Set("apikey", c.opts.OMDBKey)
	params.Set("i", imdbID)
	params.Set("Season", strconv.Itoa(season))

	var s omdbSeason
	if err := c.getJSON(ctx, ProviderOMDB, c.opts.Endpoints.OMDB+"/?"+params.Encode(), &s, omdbError); err != nil {
		return 0, err
	}
	if !strings.EqualFold(s.Response, "True") {
		msg := s.Error
		if msg == "" {
			msg = "season " + strconv.Itoa(season) + " not found"
		}
		return 0, &FetchError{Provider: ProviderOMDB, Message: msg}
	}
	return len(s.Episodes), nil
}

// omdbList turns OMDB's "A, B, C" and "N/A" fields into a raw list value.
func omdbList(s string) any {
	if present(s) == nil {
		return nil
	}
	return s
}

func isIMDbID(s string) bool {
	if len(s) < 3 || !strings.HasPrefix(strings.ToLower(s), "tt") {
		return false
	}
	_, err := strconv.Atoi(s[2:])
	return err == nil
}
