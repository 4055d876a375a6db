package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/vannputh/analytics/internal/event"
	"github.com/vannputh/analytics/internal/filter"
	"github.com/vannputh/analytics/internal/merge"
	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/schema"
	"github.com/vannputh/analytics/internal/storage"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) add(e string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) PublishRecordCreated(ctx context.Context, r model.Record) error {
	return p.add(event.TypeRecordCreated)
}

func (p *recordingPublisher) PublishRecordUpdated(ctx context.Context, r model.Record) error {
	return p.add(event.TypeRecordUpdated)
}

func (p *recordingPublisher) PublishRecordDeleted(ctx context.Context, id string) error {
	return p.add(event.TypeRecordDeleted)
}

func (p *recordingPublisher) PublishStatusChanged(ctx context.Context, c model.StatusChange) error {
	return p.add(event.TypeStatusChanged)
}

func (p *recordingPublisher) Close() error { return nil }

func newTestService(t *testing.T) (*Service, storage.Store, *recordingPublisher) {
	t.Helper()
	v, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	store := storage.NewMemory()
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, v, pub, nil, logger), store, pub
}

func TestCreateNormalizesAndStores(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, RecordInput{
		Title:    model.Ptr("  Your Name  "),
		Medium:   model.Ptr(model.MediumMovie),
		Status:   model.Ptr(model.StatusFinished),
		Genre:    "Anime, romance, anime",
		Language: `["ja", "en"]`,
		Platform: model.Ptr("   "),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if r.ID == "" {
		t.Fatal("expected an id")
	}
	if r.Title != "Your Name" {
		t.Errorf("Title = %q, want trimmed", r.Title)
	}
	if want := []string{"Anime", "romance"}; !reflect.DeepEqual(r.Genre, want) {
		t.Errorf("Genre = %v, want %v", r.Genre, want)
	}
	if want := []string{"English", "Japanese"}; !reflect.DeepEqual(r.Language, want) {
		t.Errorf("Language = %v, want %v", r.Language, want)
	}
	if r.Platform != nil {
		t.Errorf("blank platform should be nil, got %q", *r.Platform)
	}

	stored, err := store.GetRecord(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if stored.Title != "Your Name" {
		t.Errorf("stored Title = %q", stored.Title)
	}

	history, err := svc.History(ctx, r.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].OldStatus != nil || *history[0].NewStatus != model.StatusFinished {
		t.Errorf("unexpected history %+v", history)
	}
	if want := []string{event.TypeRecordCreated, event.TypeStatusChanged}; !reflect.DeepEqual(pub.events, want) {
		t.Errorf("events = %v, want %v", pub.events, want)
	}
}

func TestCreateRejectsBlankTitle(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, RecordInput{Title: model.Ptr("   ")})
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["title"]; !ok {
		t.Errorf("expected a title field error, got %v", ve.Fields)
	}

	all, _ := store.ListRecords(ctx)
	if len(all) != 0 {
		t.Errorf("nothing should be stored, got %d records", len(all))
	}
	if len(pub.events) != 0 {
		t.Errorf("no events expected, got %v", pub.events)
	}
}

func TestCreateRejectsImpossibleDate(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, RecordInput{Title: model.Ptr("Dune"), StartDate: model.Ptr("2024-02-30")})
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["start_date"]; !ok {
		t.Errorf("expected a start_date field error, got %v", ve.Fields)
	}

	all, _ := store.ListRecords(ctx)
	if len(all) != 0 {
		t.Errorf("nothing should be stored, got %d records", len(all))
	}
	if len(pub.events) != 0 {
		t.Errorf("no events expected, got %v", pub.events)
	}
}

func TestCreateRejectsOutOfRangeRating(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), RecordInput{Title: model.Ptr("Dune"), MyRating: model.Ptr(11.0)})
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestUpdateTracksStatusChanges(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, RecordInput{Title: model.Ptr("Dark"), Status: model.Ptr(model.StatusWatching)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Update(ctx, r.ID, model.RecordPatch{Notes: model.Ptr("great")}); err != nil {
		t.Fatalf("Update(notes) error = %v", err)
	}
	updated, err := svc.Update(ctx, r.ID, model.RecordPatch{Status: model.Ptr(model.StatusFinished)})
	if err != nil {
		t.Fatalf("Update(status) error = %v", err)
	}
	if *updated.Status != model.StatusFinished {
		t.Errorf("Status = %v", *updated.Status)
	}
	if model.StringValue(updated.Notes) != "great" {
		t.Errorf("Notes lost: %v", updated.Notes)
	}

	history, err := svc.History(ctx, r.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 status changes, got %d", len(history))
	}
	if *history[1].OldStatus != model.StatusWatching || *history[1].NewStatus != model.StatusFinished {
		t.Errorf("unexpected change %+v", history[1])
	}
}

func TestUpdateValidationLeavesRecordUnchanged(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, RecordInput{Title: model.Ptr("Dune"), MyRating: model.Ptr(8.0)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = svc.Update(ctx, r.ID, model.RecordPatch{MyRating: model.Ptr(-1.0), Notes: model.Ptr("x")})
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if *got.MyRating != 8 || got.Notes != nil {
		t.Errorf("record changed after failed update: %+v", got)
	}
}

func TestUpdateClearsFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, RecordInput{Title: model.Ptr("Dune"), Genre: "Sci-Fi", Platform: model.Ptr("Kindle")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := svc.Update(ctx, r.ID, model.RecordPatch{Clear: []string{"genre", "platform"}})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Genre != nil || got.Platform != nil {
		t.Errorf("fields not cleared: genre=%v platform=%v", got.Genre, got.Platform)
	}

	_, err = svc.Update(ctx, r.ID, model.RecordPatch{Clear: []string{"title"}})
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("clearing title should fail validation, got %v", err)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Update(context.Background(), "missing", model.RecordPatch{Notes: model.Ptr("x")})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, RecordInput{Title: model.Ptr("Dune")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := svc.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
	if last := pub.events[len(pub.events)-1]; last != event.TypeRecordDeleted {
		t.Errorf("last event = %q", last)
	}
}

func TestListAppliesFilter(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, in := range []RecordInput{
		{Title: model.Ptr("A"), Language: "ja", Genre: "Anime, Drama"},
		{Title: model.Ptr("B"), Language: "en", Genre: "Drama"},
		{Title: model.Ptr("C"), Language: "ko", Genre: "Anime"},
	} {
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := svc.List(ctx, filter.Filter{Genres: []string{"anime", "drama"}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "A" {
		t.Errorf("List(genre AND) = %v", got)
	}

	got, err = svc.List(ctx, filter.Filter{Languages: []string{"en", "ko"}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("List(language OR) returned %d records, want 2", len(got))
	}

	opts, err := svc.FilterOptions(ctx)
	if err != nil {
		t.Fatalf("FilterOptions() error = %v", err)
	}
	if want := []string{"English", "Japanese", "Korean"}; !reflect.DeepEqual(opts.Languages, want) {
		t.Errorf("Languages = %v, want %v", opts.Languages, want)
	}
}

func TestApplyMetadataMerges(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, RecordInput{Title: model.Ptr("Inception"), Genre: "Sci-Fi"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	fetched := model.Metadata{
		Title:         "Inception",
		Genre:         []string{"Action", "sci-fi"},
		AverageRating: model.Ptr(8.8),
		Length:        model.Ptr("148 min"),
	}

	preview, err := svc.PreviewMetadata(ctx, r.ID, fetched)
	if err != nil {
		t.Fatalf("PreviewMetadata() error = %v", err)
	}
	if !preview.NeedsConfirmation {
		t.Error("expected NeedsConfirmation for a record with title and genre")
	}
	unchanged, _ := svc.Get(ctx, r.ID)
	if unchanged.Length != nil {
		t.Error("preview must not persist anything")
	}

	got, err := svc.ApplyMetadata(ctx, r.ID, fetched, nil)
	if err != nil {
		t.Fatalf("ApplyMetadata() error = %v", err)
	}
	if want := []string{"Sci-Fi", "Action"}; !reflect.DeepEqual(got.Genre, want) {
		t.Errorf("Genre = %v, want %v", got.Genre, want)
	}
	if got.AverageRating == nil || *got.AverageRating != 8.8 {
		t.Errorf("AverageRating = %v", got.AverageRating)
	}

	got, err = svc.ApplyMetadata(ctx, r.ID, model.Metadata{Length: model.Ptr("150 min")}, []merge.FieldDecision{{Field: merge.FieldLength, Decision: merge.Overwrite}})
	if err != nil {
		t.Fatalf("ApplyMetadata(overwrite) error = %v", err)
	}
	if model.StringValue(got.Length) != "150 min" {
		t.Errorf("Length = %v, want 150 min", got.Length)
	}
}

func TestSummary(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, in := range []RecordInput{
		{Title: model.Ptr("A"), Medium: model.Ptr(model.MediumBook), MyRating: model.Ptr(8.0)},
		{Title: model.Ptr("B"), Medium: model.Ptr(model.MediumMovie), MyRating: model.Ptr(6.0)},
	} {
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	sum, err := svc.Summary(ctx, filter.Filter{Media: []string{"Book"}})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Total != 1 {
		t.Errorf("Total = %d, want 1", sum.Total)
	}
	if sum.AverageRating == nil || *sum.AverageRating != 8 {
		t.Errorf("AverageRating = %v, want 8", sum.AverageRating)
	}
}

func TestPreferences(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Preferences(ctx, "alice")
	if err != nil {
		t.Fatalf("Preferences() error = %v", err)
	}
	if !reflect.DeepEqual(p.VisibleColumns, DefaultColumns) {
		t.Errorf("default columns = %v", p.VisibleColumns)
	}

	saved, err := svc.SavePreferences(ctx, model.Preferences{
		UserID:         "alice",
		VisibleColumns: []string{"title", "genre", "title"},
		Filter:         "?genre=Anime,Drama&from=2024-01-01",
	})
	if err != nil {
		t.Fatalf("SavePreferences() error = %v", err)
	}
	if want := []string{"title", "genre"}; !reflect.DeepEqual(saved.VisibleColumns, want) {
		t.Errorf("VisibleColumns = %v, want %v", saved.VisibleColumns, want)
	}
	if want := "from=2024-01-01&genre=Anime&genre=Drama"; saved.Filter != want {
		t.Errorf("Filter = %q, want %q", saved.Filter, want)
	}

	got, err := svc.Preferences(ctx, "alice")
	if err != nil {
		t.Fatalf("Preferences() error = %v", err)
	}
	if got.Filter != saved.Filter {
		t.Errorf("round trip Filter = %q", got.Filter)
	}

	_, err = svc.SavePreferences(ctx, model.Preferences{UserID: "alice", VisibleColumns: []string{"password"}})
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown column, got %v", err)
	}

	_, err = svc.SavePreferences(ctx, model.Preferences{UserID: "alice", Filter: "from=yesterday"})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for bad filter, got %v", err)
	}
}
