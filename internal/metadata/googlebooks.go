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

type volumeInfo struct {
	Title               string   `json:"title"`
	Categories          []string `json:"categories"`
	Language            string   `json:"language"`
	AverageRating       *float64 `json:"averageRating"`
	PageCount           int      `json:"pageCount"`
	IndustryIdentifiers []struct {
		Type       string `json:"type"`
		Identifier string `json:"identifier"`
	} `json:"industryIdentifiers"`
	ImageLinks struct {
		SmallThumbnail string `json:"smallThumbnail"`
		Thumbnail      string `json:"thumbnail"`
	} `json:"imageLinks"`
}

func googleBooksError(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		return e.Error.Message
	}
	return ""
}

func (c *Client) fetchGoogleBooks(ctx context.Context, q Query) (*model.Metadata, error) {
	params := url.Values{}
	if isbn := isbnDigits(q.ExternalID); isbn != "" {
		params.Set("q", "isbn:"+isbn)
	} else {
		if q.Title == "" {
			return nil, &FetchError{Provider: ProviderGoogleBooks, Message: "a title or ISBN is required"}
		}
		params.Set("q", "intitle:"+q.Title)
	}
	params.Set("maxResults", "10")
	if c.opts.GoogleBooksKey != "" {
		params.Set("key", c.opts.GoogleBooksKey)
	}

	var resp struct {
		TotalItems int `json:"totalItems"`
		Items      []struct {
			VolumeInfo volumeInfo `json:"volumeInfo"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, ProviderGoogleBooks, c.opts.Endpoints.GoogleBooks+"/volumes?"+params.Encode(), &resp, googleBooksError); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		want := q.Title
		if want == "" {
			want = q.ExternalID
		}
		return nil, &FetchError{Provider: ProviderGoogleBooks, Message: fmt.Sprintf("no match found for %q", want)}
	}

	i := 0
	if q.Title != "" {
		titles := make([]string, len(resp.Items))
		for j, it := range resp.Items {
			titles[j] = it.VolumeInfo.Title
		}
		i = bestMatch(q.Title, titles)
	}
	return volumeMetadata(resp.Items[i].VolumeInfo), nil
}

func volumeMetadata(v volumeInfo) *model.Metadata {
	md := &model.Metadata{
		Title:    strings.TrimSpace(v.Title),
		Genre:    normalize.Genres(bookCategories(v.Categories)),
		Language: normalize.Languages(v.Language),
	}
	if v.AverageRating != nil {
		// Google Books rates on 0-5.
		md.AverageRating = model.Ptr(*v.AverageRating * 2)
	}
	if v.PageCount > 0 {
		md.Length = model.Ptr(strconv.Itoa(v.PageCount) + " pages")
	}

	thumb := v.ImageLinks.Thumbnail
	if thumb == "" {
		thumb = v.ImageLinks.SmallThumbnail
	}
	if thumb != "" {
		md.PosterURL = model.Ptr(strings.Replace(thumb, "http://", "https://", 1))
	}

	var isbn10 string
	for _, id := range v.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			md.IMDbID = model.Ptr(id.Identifier)
		case "ISBN_10":
			isbn10 = id.Identifier
		}
	}
	if md.IMDbID == nil && isbn10 != "" {
		md.IMDbID = model.Ptr(isbn10)
	}
	return md
}

// bookCategories splits "Fiction / Science Fiction / General" style paths
// into their parts and drops the catch-all "General".
func bookCategories(categories []string) []string {
	var out []string
	for _, c := range categories {
		for _, part := range strings.Split(c, "/") {
			part = strings.TrimSpace(part)
			if part == "" || strings.EqualFold(part, "General") {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}

// isbnDigits returns s without dashes and spaces when it is an ISBN-10 or
// ISBN-13, or "" otherwise.
func isbnDigits(s string) string {
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	if len(s) != 10 && len(s) != 13 {
		return ""
	}
	for i, r := range s {
		if r >= '0' && r <= '9' {
			continue
		}
		if i == 9 && len(s) == 10 && (r == 'X' || r == 'x') {
			continue
		}
		return ""
	}
	return s
}
