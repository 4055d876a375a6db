package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vannputh/analytics/internal/catalog"
	"github.com/vannputh/analytics/internal/metadata"
	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/schema"
	"github.com/vannputh/analytics/internal/storage"
)

// stubFetcher answers from a title keyed map and fails for anything else.
type stubFetcher struct {
	answers map[string]model.Metadata
	calls   int
}

func (f *stubFetcher) Fetch(ctx context.Context, q metadata.Query) (*model.Metadata, error) {
	f.calls++
	md, ok := f.answers[q.Title]
	if !ok {
		return nil, &metadata.FetchError{Provider: metadata.ProviderOMDB, Message: "Movie not found!"}
	}
	return &md, nil
}

func newCatalog(t *testing.T) *catalog.Service {
	t.Helper()
	v, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	return catalog.NewService(storage.NewMemory(), v, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func create(t *testing.T, c *catalog.Service, in catalog.RecordInput) string {
	t.Helper()
	r, err := c.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return r.ID
}

func TestRefreshMetadataContinuesAfterFailures(t *testing.T) {
	c := newCatalog(t)
	inception := create(t, c, catalog.RecordInput{Title: model.Ptr("Inception")})
	unknown := create(t, c, catalog.RecordInput{Title: model.Ptr("Nope")})
	complete := create(t, c, catalog.RecordInput{Title: model.Ptr("Dune"), Length: model.Ptr("155 min")})

	f := &stubFetcher{answers: map[string]model.Metadata{
		"Inception": {Title: "Inception", Length: model.Ptr("148 min"), Genre: []string{"Action"}},
		"Dune":      {Title: "Dune", Length: model.Ptr("150 min")},
	}}
	r := NewRunner(c, f, 0, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sum, err := r.RefreshMetadata(context.Background(), []string{inception, "missing", unknown, complete, inception})
	if err != nil {
		t.Fatalf("RefreshMetadata() error = %v", err)
	}

	if sum.Total != 5 || sum.Updated != 1 || sum.Failed != 2 || sum.Skipped != 2 {
		t.Errorf("summary = %+v, want total 5, updated 1, failed 2, skipped 2", sum)
	}
	if got, want := sum.Message(), "updated 1, 2 failed"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
	if len(sum.Failures) != 2 || sum.Failures[0].ID != "missing" || sum.Failures[1].ID != unknown {
		t.Errorf("failures = %+v", sum.Failures)
	}

	got, err := c.Get(context.Background(), inception)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if model.StringValue(got.Length) != "148 min" {
		t.Errorf("Length = %v, want 148 min", got.Length)
	}
	dune, _ := c.Get(context.Background(), complete)
	if model.StringValue(dune.Length) != "155 min" {
		t.Errorf("existing Length overwritten: %v", dune.Length)
	}
}

func TestApplyPatchCountsPersistenceFailures(t *testing.T) {
	c := newCatalog(t)
	a := create(t, c, catalog.RecordInput{Title: model.Ptr("A")})
	b := create(t, c, catalog.RecordInput{Title: model.Ptr("B")})

	r := NewRunner(c, nil, 0, nil, nil)
	sum, err := r.ApplyPatch(context.Background(), []string{a, "gone", b}, model.RecordPatch{Platform: model.Ptr("Netflix")})
	if err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	if sum.Updated != 2 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	for _, id := range []string{a, b} {
		rec, _ := c.Get(context.Background(), id)
		if model.StringValue(rec.Platform) != "Netflix" {
			t.Errorf("record %s platform = %v", id, rec.Platform)
		}
	}
}

func TestApplyPatchRejectsEmptyPatch(t *testing.T) {
	r := NewRunner(newCatalog(t), nil, 0, nil, nil)
	if _, err := r.ApplyPatch(context.Background(), []string{"x"}, model.RecordPatch{}); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	c := newCatalog(t)
	a := create(t, c, catalog.RecordInput{Title: model.Ptr("A")})
	b := create(t, c, catalog.RecordInput{Title: model.Ptr("B")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(c, nil, time.Hour, nil, nil)
	sum, err := r.ApplyPatch(ctx, []string{a, b}, model.RecordPatch{Notes: model.Ptr("x")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !sum.Cancelled || sum.Updated != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunStopsBeforeDeadline(t *testing.T) {
	c := newCatalog(t)
	a := create(t, c, catalog.RecordInput{Title: model.Ptr("A")})
	b := create(t, c, catalog.RecordInput{Title: model.Ptr("B")})

	// The second slot is an hour away, far past the deadline, while the
	// context itself is still live.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r := NewRunner(c, nil, time.Hour, nil, nil)
	sum, err := r.ApplyPatch(ctx, []string{a, b}, model.RecordPatch{Notes: model.Ptr("x")})
	if err == nil {
		t.Fatal("expected an error when the next item cannot start before the deadline")
	}
	if ctx.Err() != nil {
		t.Fatalf("context should still be live, got %v", ctx.Err())
	}
	if !sum.Cancelled || sum.Updated != 1 {
		t.Errorf("summary = %+v, want cancelled after one update", sum)
	}
}

func TestRunPacesItems(t *testing.T) {
	c := newCatalog(t)
	ids := []string{
		create(t, c, catalog.RecordInput{Title: model.Ptr("A")}),
		create(t, c, catalog.RecordInput{Title: model.Ptr("B")}),
		create(t, c, catalog.RecordInput{Title: model.Ptr("C")}),
	}

	r := NewRunner(c, nil, 20*time.Millisecond, nil, nil)
	start := time.Now()
	if _, err := r.ApplyPatch(context.Background(), ids, model.RecordPatch{Notes: model.Ptr("x")}); err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("three items took %v, want at least two delays", elapsed)
	}
}
