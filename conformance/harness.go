// Package conformance provides a test harness that checks a tracker
// deployment honours the HTTP contract: response envelopes, record lifecycle,
// filtering, status history and the analytics summary.
package conformance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vannputh/analytics/internal/batch"
	"github.com/vannputh/analytics/internal/catalog"
	"github.com/vannputh/analytics/internal/metrics"
	"github.com/vannputh/analytics/internal/schema"
	"github.com/vannputh/analytics/internal/server"
	"github.com/vannputh/analytics/internal/storage"
)

// Config holds configuration for the conformance test harness.
type Config struct {
	// BaseURL targets a running deployment. When empty an in-process server
	// backed by the in-memory store is started.
	BaseURL string

	// Token is sent as a bearer token on mutating requests.
	Token string
}

// Harness runs the conformance suite against one deployment.
type Harness struct {
	baseURL string
	token   string
	client  *http.Client
	server  *httptest.Server
}

// NewHarness creates a harness for cfg.
func NewHarness(cfg Config) (*Harness, error) {
	h := &Harness{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	if h.baseURL != "" {
		return h, nil
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory()
	m := metrics.NewMetrics()
	svc := catalog.NewService(store, validator, nil, m, logger)

	mux := server.NewMux(server.Deps{
		Store:   store,
		Catalog: svc,
		Batch:   batch.NewRunner(svc, nil, 0, m, logger),
		Logger:  logger,
		Metrics: m,
	})
	h.server = httptest.NewServer(mux)
	h.baseURL = h.server.URL
	return h, nil
}

// URL returns the base URL under test.
func (h *Harness) URL() string {
	return h.baseURL
}

// Close shuts down the in-process server, if any.
func (h *Harness) Close() {
	if h.server != nil {
		h.server.Close()
	}
}

// RunConformanceTests runs every check against the deployment.
func (h *Harness) RunConformanceTests(t *testing.T) {
	t.Run("HealthEndpoints", h.testHealthEndpoints)
	t.Run("ErrorEnvelope", h.testErrorEnvelope)
	t.Run("RecordLifecycle", h.testRecordLifecycle)
	t.Run("Filtering", h.testFiltering)
	t.Run("Summary", h.testSummary)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code          string `json:"code"`
		Message       string `json:"message"`
		CorrelationID string `json:"correlationId"`
	} `json:"error"`
}

func (h *Harness) call(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.baseURL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: response is not a JSON envelope: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func (h *Harness) testHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := h.client.Get(h.baseURL + path)
		if err != nil {
			t.Fatalf("failed to GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200 for %s, got %d", path, resp.StatusCode)
		}
	}
}

func (h *Harness) testErrorEnvelope(t *testing.T) {
	status, env := h.call(t, http.MethodGet, "/v1/records/does-not-exist", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if env.Error == nil || env.Error.Code != "TRACKER_NOT_FOUND" {
		t.Fatalf("expected TRACKER_NOT_FOUND, got %+v", env.Error)
	}
	if env.Error.CorrelationID == "" {
		t.Error("error envelope is missing correlationId")
	}

	status, env = h.call(t, http.MethodPost, "/v1/records", map[string]any{"title": "   "})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "TRACKER_VALIDATION" {
		t.Errorf("blank title: expected 400 TRACKER_VALIDATION, got %d %+v", status, env.Error)
	}
}

type record struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Status          *string  `json:"status"`
	Genre           []string `json:"genre"`
	Language        []string `json:"language"`
	TimeTaken       *string  `json:"time_taken"`
	LanguageDisplay string   `json:"language_display"`
}

func (h *Harness) create(t *testing.T, body map[string]any) record {
	t.Helper()
	status, env := h.call(t, http.MethodPost, "/v1/records", body)
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %+v", status, env.Error)
	}
	var rec record
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec
}

func (h *Harness) testRecordLifecycle(t *testing.T) {
	rec := h.create(t, map[string]any{
		"title":       "Conformance Lifecycle",
		"status":      "Watching",
		"genre":       `["drama", "Sci Fi"]`,
		"language":    "en",
		"start_date":  "2024-03-01",
		"finish_date": "2024-03-01",
	})
	if rec.ID == "" {
		t.Fatal("created record has no id")
	}
	if rec.LanguageDisplay != "English" {
		t.Errorf("expected language_display English, got %q", rec.LanguageDisplay)
	}
	if rec.TimeTaken == nil || *rec.TimeTaken != "1 day" {
		t.Errorf("expected time_taken 1 day, got %v", rec.TimeTaken)
	}

	status, _ := h.call(t, http.MethodPatch, "/v1/records/"+rec.ID, map[string]any{"status": "Finished"})
	if status != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", status)
	}

	status, env := h.call(t, http.MethodGet, "/v1/records/"+rec.ID+"/history", nil)
	if status != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", status)
	}
	var history []map[string]any
	if err := json.Unmarshal(env.Data, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 status changes, got %d", len(history))
	}

	if status, _ := h.call(t, http.MethodDelete, "/v1/records/"+rec.ID, nil); status != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", status)
	}
	if status, _ := h.call(t, http.MethodGet, "/v1/records/"+rec.ID, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", status)
	}
}

func (h *Harness) testFiltering(t *testing.T) {
	a := h.create(t, map[string]any{"title": "Conformance Filter A", "medium": "Book", "platform": "Kindle", "finish_date": "2023-05-02"})
	b := h.create(t, map[string]any{"title": "Conformance Filter B", "medium": "Book", "platform": "Kindle", "finish_date": "2024-05-02"})
	defer h.call(t, http.MethodDelete, "/v1/records/"+a.ID, nil)
	defer h.call(t, http.MethodDelete, "/v1/records/"+b.ID, nil)

	status, env := h.call(t, http.MethodGet, "/v1/records?platform=kindle&from=2024-01-01&to=2024-12-31", nil)
	if status != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", status)
	}
	var page struct {
		Records []record `json:"records"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, r := range page.Records {
		found[r.ID] = true
	}
	if !found[b.ID] || found[a.ID] {
		t.Errorf("expected only %s in the 2024 window, got %v", b.ID, found)
	}

	status, env = h.call(t, http.MethodGet, "/v1/filter-options", nil)
	if status != http.StatusOK {
		t.Fatalf("filter-options: expected 200, got %d", status)
	}
	var opts struct {
		Platforms []string `json:"platforms"`
	}
	if err := json.Unmarshal(env.Data, &opts); err != nil {
		t.Fatal(err)
	}
	if !contains(opts.Platforms, "Kindle") {
		t.Errorf("expected Kindle among platforms, got %v", opts.Platforms)
	}
}

func (h *Harness) testSummary(t *testing.T) {
	rec := h.create(t, map[string]any{"title": "Conformance Summary", "medium": "Podcast", "my_rating": 8, "episodes": 12})
	defer h.call(t, http.MethodDelete, "/v1/records/"+rec.ID, nil)

	status, env := h.call(t, http.MethodGet, "/v1/analytics/summary?medium=Podcast", nil)
	if status != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", status)
	}
	var sum struct {
		Total         int `json:"total"`
		TotalEpisodes int `json:"totalEpisodes"`
	}
	if err := json.Unmarshal(env.Data, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Total < 1 || sum.TotalEpisodes < 12 {
		t.Errorf("expected the podcast to be counted, got %+v", sum)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
