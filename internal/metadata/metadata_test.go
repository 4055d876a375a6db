package metadata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vannputh/analytics/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChooseProvider(t *testing.T) {
	withOMDB := New(Options{OMDBKey: "k", Logger: quietLogger()})
	withoutOMDB := New(Options{TMDBKey: "k", Logger: quietLogger()})

	tests := []struct {
		name   string
		client *Client
		q      Query
		want   Provider
	}{
		{"book goes to google books", withOMDB, Query{Title: "Dune", Medium: model.MediumBook}, ProviderGoogleBooks},
		{"movie with omdb key", withOMDB, Query{Title: "Inception", Medium: model.MediumMovie}, ProviderOMDB},
		{"movie without omdb key", withoutOMDB, Query{Title: "Inception"}, ProviderTMDB},
		{"explicit provider wins", withOMDB, Query{Title: "Dune", Medium: model.MediumBook, Provider: ProviderTMDB}, ProviderTMDB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.client.Choose(tt.q); got != tt.want {
				t.Errorf("Choose() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchRequiresTitleOrID(t *testing.T) {
	c := New(Options{OMDBKey: "k", Logger: quietLogger()})
	_, err := c.Fetch(context.Background(), Query{Title: "   "})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}

func TestFetchRejectsUnknownProvider(t *testing.T) {
	c := New(Options{Logger: quietLogger()})
	_, err := c.Fetch(context.Background(), Query{Title: "Dune", Provider: "imdb"})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}

func TestOMDBMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("apikey"); got != "secret" {
			t.Errorf("apikey = %q, want secret", got)
		}
		if got := r.URL.Query().Get("t"); got != "Inception" {
			t.Errorf("t = %q, want Inception", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"Response": "True",
			"Title": "Inception",
			"Runtime": "148 min",
			"Genre": "Action, Adventure, Sci-Fi",
			"Language": "English, Japanese, French",
			"Poster": "https://img.example/inception.jpg",
			"imdbRating": "8.8",
			"imdbID": "tt1375666",
			"Type": "movie"
		}`)
	}))
	defer srv.Close()

	c := New(Options{OMDBKey: "secret", Endpoints: Endpoints{OMDB: srv.URL}, Logger: quietLogger()})
	md, err := c.Fetch(context.Background(), Query{Title: "Inception", Medium: model.MediumMovie})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if md.Title != "Inception" {
		t.Errorf("Title = %q", md.Title)
	}
	if want := []string{"Action", "Adventure", "Sci-Fi"}; !reflect.DeepEqual(md.Genre, want) {
		t.Errorf("Genre = %v, want %v", md.Genre, want)
	}
	if want := []string{"English", "French", "Japanese"}; !reflect.DeepEqual(md.Language, want) {
		t.Errorf("Language = %v, want %v", md.Language, want)
	}
	if md.AverageRating == nil || *md.AverageRating != 8.8 {
		t.Errorf("AverageRating = %v, want 8.8", md.AverageRating)
	}
	if model.StringValue(md.Length) != "148 min" {
		t.Errorf("Length = %v", md.Length)
	}
	if model.StringValue(md.IMDbID) != "tt1375666" {
		t.Errorf("IMDbID = %v", md.IMDbID)
	}
	if md.Provider != string(ProviderOMDB) {
		t.Errorf("Provider = %q", md.Provider)
	}
}

func TestOMDBNotApplicableFieldsAreAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"Response":"True","Title":"Obscure","Runtime":"N/A","Genre":"N/A","Language":"N/A","Poster":"N/A","imdbRating":"N/A","imdbID":"tt0000001"}`)
	}))
	defer srv.Close()

	c := New(Options{OMDBKey: "k", Endpoints: Endpoints{OMDB: srv.URL}, Logger: quietLogger()})
	md, err := c.Fetch(context.Background(), Query{Title: "Obscure"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if md.PosterURL != nil || md.AverageRating != nil || md.Length != nil {
		t.Errorf("expected N/A fields to be nil, got poster=%v rating=%v length=%v", md.PosterURL, md.AverageRating, md.Length)
	}
	if len(md.Genre) != 0 || len(md.Language) != 0 {
		t.Errorf("expected empty lists, got genre=%v language=%v", md.Genre, md.Language)
	}
}

func TestOMDBSeasonEpisodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Season") != "" {
			_, _ = io.WriteString(w, `{"Response":"True","Episodes":[{"Title":"a"},{"Title":"b"},{"Title":"c"}]}`)
			return
		}
		if got := r.URL.Query().Get("type"); got != "series" {
			t.Errorf("type = %q, want series", got)
		}
		_, _ = io.WriteString(w, `{"Response":"True","Title":"Dark","Type":"series","imdbID":"tt5753856"}`)
	}))
	defer srv.Close()

	c := New(Options{OMDBKey: "k", Endpoints: Endpoints{OMDB: srv.URL}, Logger: quietLogger()})
	md, err := c.Fetch(context.Background(), Query{Title: "Dark", Medium: model.MediumTVShow, Season: model.Ptr(2)})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if md.Episodes == nil || *md.Episodes != 3 {
		t.Errorf("Episodes = %v, want 3", md.Episodes)
	}
}

func TestOMDBNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"Response":"False","Error":"Movie not found!"}`)
	}))
	defer srv.Close()

	c := New(Options{OMDBKey: "k", Endpoints: Endpoints{OMDB: srv.URL}, Logger: quietLogger()})
	_, err := c.Fetch(context.Background(), Query{Title: "zzzz"})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Message != "Movie not found!" {
		t.Errorf("Message = %q", fe.Message)
	}
	if fe.Error() != "omdb: Movie not found!" {
		t.Errorf("Error() = %q", fe.Error())
	}
}

func TestNon2xxBecomesFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"status_message":"Invalid API key"}`)
	}))
	defer srv.Close()

	c := New(Options{TMDBKey: "bad", Endpoints: Endpoints{TMDB: srv.URL}, Logger: quietLogger()})
	_, err := c.Fetch(context.Background(), Query{Title: "Inception", Provider: ProviderTMDB})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", fe.Status)
	}
	if fe.Message != "returned 401: Invalid API key" {
		t.Errorf("Message = %q", fe.Message)
	}
}

func TestMissingKeyIsFetchError(t *testing.T) {
	c := New(Options{Logger: quietLogger()})
	_, err := c.Fetch(context.Background(), Query{Title: "Inception"})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Provider != ProviderTMDB {
		t.Errorf("Provider = %q, want tmdb", fe.Provider)
	}
}

func TestTMDBSearchPicksClosestTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/movie":
			_, _ = io.WriteString(w, `{"results":[
				{"id": 1, "title": "Inception: The Cobol Job"},
				{"id": 27205, "title": "Inception"},
				{"id": 3, "title": "Deception"}
			]}`)
		case "/movie/27205":
			if got := r.URL.Query().Get("append_to_response"); got != "external_ids" {
				t.Errorf("append_to_response = %q", got)
			}
			_, _ = io.WriteString(w, `{
				"id": 27205,
				"title": "Inception",
				"poster_path": "/abc.jpg",
				"genres": [{"name": "Action"}, {"name": "Science Fiction"}],
				"spoken_languages": [{"iso_639_1": "en", "english_name": "English"}, {"iso_639_1": "ja", "english_name": "Japanese"}],
				"vote_average": 8.4,
				"vote_count": 100,
				"runtime": 148,
				"imdb_id": "tt1375666"
			}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Options{
		TMDBKey:   "k",
		Endpoints: Endpoints{TMDB: srv.URL, TMDBImages: "https://images.example/w500"},
		Logger:    quietLogger(),
	})
	md, err := c.Fetch(context.Background(), Query{Title: "inception"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if md.Title != "Inception" {
		t.Errorf("Title = %q", md.Title)
	}
	if got := model.StringValue(md.PosterURL); got != "https://images.example/w500/abc.jpg" {
		t.Errorf("PosterURL = %q", got)
	}
	if want := []string{"English", "Japanese"}; !reflect.DeepEqual(md.Language, want) {
		t.Errorf("Language = %v, want %v", md.Language, want)
	}
	if model.StringValue(md.Length) != "148 min" {
		t.Errorf("Length = %v", md.Length)
	}
	if model.StringValue(md.IMDbID) != "tt1375666" {
		t.Errorf("IMDbID = %v", md.IMDbID)
	}
}

func TestTMDBSeasonEpisodeCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/tv":
			_, _ = io.WriteString(w, `{"results":[{"id": 70523, "name": "Dark"}]}`)
		case "/tv/70523":
			_, _ = io.WriteString(w, `{
				"id": 70523,
				"name": "Dark",
				"number_of_episodes": 26,
				"episode_run_time": [60],
				"external_ids": {"imdb_id": "tt5753856"},
				"seasons": [{"season_number": 1, "episode_count": 10}, {"season_number": 3, "episode_count": 8}]
			}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Options{TMDBKey: "k", Endpoints: Endpoints{TMDB: srv.URL}, Logger: quietLogger()})
	md, err := c.Fetch(context.Background(), Query{Title: "Dark", Medium: model.MediumTVShow, Season: model.Ptr(3)})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if md.Episodes == nil || *md.Episodes != 8 {
		t.Errorf("Episodes = %v, want 8", md.Episodes)
	}
	if model.StringValue(md.IMDbID) != "tt5753856" {
		t.Errorf("IMDbID = %v", md.IMDbID)
	}
}

func TestGoogleBooksMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "intitle:Dune" {
			t.Errorf("q = %q, want intitle:Dune", got)
		}
		_, _ = io.WriteString(w, `{"totalItems": 2, "items": [
			{"volumeInfo": {"title": "Dune Messiah"}},
			{"volumeInfo": {
				"title": "Dune",
				"categories": ["Fiction / Science Fiction / General"],
				"language": "en",
				"averageRating": 4.5,
				"pageCount": 412,
				"industryIdentifiers": [{"type": "ISBN_10", "identifier": "0441013597"}, {"type": "ISBN_13", "identifier": "9780441013593"}],
				"imageLinks": {"thumbnail": "http://books.example/dune.jpg"}
			}}
		]}`)
	}))
	defer srv.Close()

	c := New(Options{Endpoints: Endpoints{GoogleBooks: srv.URL}, Logger: quietLogger()})
	md, err := c.Fetch(context.Background(), Query{Title: "Dune", Medium: model.MediumBook})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if md.Title != "Dune" {
		t.Errorf("Title = %q, want Dune", md.Title)
	}
	if md.AverageRating == nil || *md.AverageRating != 9 {
		t.Errorf("AverageRating = %v, want 9", md.AverageRating)
	}
	if want := []string{"Fiction", "Science Fiction"}; !reflect.DeepEqual(md.Genre, want) {
		t.Errorf("Genre = %v, want %v", md.Genre, want)
	}
	if want := []string{"English"}; !reflect.DeepEqual(md.Language, want) {
		t.Errorf("Language = %v, want %v", md.Language, want)
	}
	if model.StringValue(md.Length) != "412 pages" {
		t.Errorf("Length = %v", md.Length)
	}
	if model.StringValue(md.PosterURL) != "https://books.example/dune.jpg" {
		t.Errorf("PosterURL = %v", md.PosterURL)
	}
	if model.StringValue(md.IMDbID) != "9780441013593" {
		t.Errorf("IMDbID = %v", md.IMDbID)
	}
}

func TestGoogleBooksNoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"totalItems": 0}`)
	}))
	defer srv.Close()

	c := New(Options{Endpoints: Endpoints{GoogleBooks: srv.URL}, Logger: quietLogger()})
	_, err := c.Fetch(context.Background(), Query{ExternalID: "978-0-441-01359-3", Medium: model.MediumBook})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}

func TestFetchCachesSuccessfulAnswers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"Response":"True","Title":"Inception","Genre":"Action"}`)
	}))
	defer srv.Close()

	c := New(Options{OMDBKey: "k", CacheTTL: time.Minute, Endpoints: Endpoints{OMDB: srv.URL}, Logger: quietLogger()})
	first, err := c.Fetch(context.Background(), Query{Title: "Inception"})
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	first.Genre[0] = "mutated"

	second, err := c.Fetch(context.Background(), Query{Title: "  inception "})
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
	if second.Genre[0] != "Action" {
		t.Errorf("cached value was aliased: %v", second.Genre)
	}
}

func TestBestMatch(t *testing.T) {
	if got := bestMatch("dune", nil); got != -1 {
		t.Errorf("bestMatch(nil) = %d, want -1", got)
	}
	if got := bestMatch("The Matrix", []string{"Matrix Reloaded", "The Matrix", "the matrix"}); got != 1 {
		t.Errorf("bestMatch() = %d, want 1", got)
	}
}

func TestIsbnDigits(t *testing.T) {
	tests := map[string]string{
		"978-0-441-01359-3": "9780441013593",
		"044101359X":        "044101359X",
		"tt1375666":         "",
		"12345":             "",
	}
	for in, want := range tests {
		if got := isbnDigits(in); got != want {
			t.Errorf("isbnDigits(%q) = %q, want %q", in, got, want)
		}
	}
}
