// Package catalog implements the record operations of the tracker: it
// validates input, persists records and their status history, and publishes
// change events. HTTP handlers and batch jobs both go through a Service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vannputh/analytics/internal/analytics"
	"github.com/vannputh/analytics/internal/event"
	"github.com/vannputh/analytics/internal/filter"
	"github.com/vannputh/analytics/internal/merge"
	"github.com/vannputh/analytics/internal/metrics"
	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/normalize"
	"github.com/vannputh/analytics/internal/schema"
	"github.com/vannputh/analytics/internal/storage"
	"github.com/vannputh/analytics/internal/telemetry"
)

// RecordInput carries the fields of a new record. Clear is ignored.
type RecordInput = model.RecordPatch

// PersistenceError wraps a storage failure other than not-found or conflict.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Preview is what a metadata lookup would do to a record before the user
// confirms it.
type Preview struct {
	Metadata          model.Metadata   `json:"metadata"`
	Conflicts         []merge.Conflict `json:"conflicts"`
	NeedsConfirmation bool             `json:"needsConfirmation"`
	Merged            model.Record     `json:"merged"` // result of merging with no overrides
}

// Service orchestrates record operations.
type Service struct {
	store     storage.Store
	validator *schema.Validator
	publisher event.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires a Service. publisher, m and logger may be nil.
func NewService(store storage.Store, validator *schema.Validator, publisher event.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = event.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		validator: validator,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates in and stores it as a new record. A status on the new
// record is written to the history with no previous status.
func (s *Service) Create(ctx context.Context, in RecordInput) (*model.Record, error) {
	ctx, span := telemetry.Start(ctx, "catalog.Create")
	defer span.End()

	now := s.now()
	r := model.Record{
		ID:        ulid.Make().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.Clear = nil
	if err := applyPatch(&r, in); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateRecord(r); err != nil {
		return nil, err
	}

	start := time.Now()
	err := s.store.CreateRecord(ctx, r)
	s.observe("create_record", start, err)
	if err != nil {
		return nil, s.storageErr("create record", err)
	}
	s.logger.Info("record created", "record_id", r.ID, "correlation_id", telemetry.CorrelationID(ctx))

	s.publish(ctx, event.TypeRecordCreated, func() error { return s.publisher.PublishRecordCreated(ctx, r) })
	s.recordStatusChange(ctx, r.ID, nil, r.Status, now)
	return &r, nil
}

// Get returns the record with id.
func (s *Service) Get(ctx context.Context, id string) (*model.Record, error) {
	start := time.Now()
	r, err := s.store.GetRecord(ctx, id)
	s.observe("get_record", start, err)
	if err != nil {
		return nil, s.storageErr("get record", err)
	}
	return r, nil
}

// List returns every record matching f, newest first.
func (s *Service) List(ctx context.Context, f filter.Filter) ([]model.Record, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(all, f), nil
}

func (s *Service) all(ctx context.Context) ([]model.Record, error) {
	start := time.Now()
	records, err := s.store.ListRecords(ctx)
	s.observe("list_records", start, err)
	if err != nil {
		return nil, s.storageErr("list records", err)
	}
	return records, nil
}

// Update applies p to the record with id. Nothing is persisted when
// validation fails. An empty patch returns the record unchanged.
func (s *Service) Update(ctx context.Context, id string, p model.RecordPatch) (*model.Record, error) {
	ctx, span := telemetry.Start(ctx, "catalog.Update")
	defer span.End()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsEmpty() {
		return current, nil
	}

	next := current.Clone()
	if err := applyPatch(&next, p); err != nil {
		return nil, err
	}
	return s.save(ctx, *current, next)
}

// Delete removes the record with id and its status history.
func (s *Service) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.store.DeleteRecord(ctx, id)
	s.observe("delete_record", start, err)
	if err != nil {
		return s.storageErr("delete record", err)
	}
	s.logger.Info("record deleted", "record_id", id, "correlation_id", telemetry.CorrelationID(ctx))
	s.publish(ctx, event.TypeRecordDeleted, func() error { return s.publisher.PublishRecordDeleted(ctx, id) })
	return nil
}

// History returns the status changes of the record with id, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]model.StatusChange, error) {
	start := time.Now()
	changes, err := s.store.ListStatusHistory(ctx, id)
	s.observe("list_status_history", start, err)
	if err != nil {
		return nil, s.storageErr("list status history", err)
	}
	if changes == nil {
		changes = []model.StatusChange{}
	}
	return changes, nil
}

// PreviewMetadata shows how fetched would merge into the record with id
// without changing anything.
func (s *Service) PreviewMetadata(ctx context.Context, id string, fetched model.Metadata) (*Preview, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	conflicts := merge.Conflicts(*current, fetched)
	if conflicts == nil {
		conflicts = []merge.Conflict{}
	}
	return &Preview{
		Metadata:          fetched,
		Conflicts:         conflicts,
		NeedsConfirmation: merge.NeedsConfirmation(*current),
		Merged:            merge.Apply(*current, fetched, nil),
	}, nil
}

// ApplyMetadata merges fetched into the record with id and stores the result.
// overrides follow merge.Apply.
func (s *Service) ApplyMetadata(ctx context.Context, id string, fetched model.Metadata, overrides []merge.FieldDecision) (*model.Record, error) {
	ctx, span := telemetry.Start(ctx, "catalog.ApplyMetadata")
	defer span.End()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := merge.Apply(*current, fetched, overrides)
	return s.save(ctx, *current, next)
}

// save validates next, replaces current with it and records a status change
// when the status moved.
func (s *Service) save(ctx context.Context, current, next model.Record) (*model.Record, error) {
	if err := s.validator.ValidateRecord(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()

	start := time.Now()
	err := s.store.UpdateRecord(ctx, next)
	s.observe("update_record", start, err)
	if err != nil {
		return nil, s.storageErr("update record", err)
	}
	s.logger.Info("record updated", "record_id", next.ID, "correlation_id", telemetry.CorrelationID(ctx))

	s.publish(ctx, event.TypeRecordUpdated, func() error { return s.publisher.PublishRecordUpdated(ctx, next) })
	if !sameStatus(current.Status, next.Status) {
		s.recordStatusChange(ctx, next.ID, current.Status, next.Status, next.UpdatedAt)
	}
	return &next, nil
}

// FilterOptions lists the values each filter dimension can take.
func (s *Service) FilterOptions(ctx context.Context) (filter.Options, error) {
	all, err := s.all(ctx)
	if err != nil {
		return filter.Options{}, err
	}
	return filter.ExtractOptions(all), nil
}

// Summary aggregates the records matching f.
func (s *Service) Summary(ctx context.Context, f filter.Filter) (analytics.Summary, error) {
	records, err := s.List(ctx, f)
	if err != nil {
		return analytics.Summary{}, err
	}
	return analytics.Summarize(records), nil
}

// recordStatusChange appends to the history when the status differs. The
// record is already stored at this point, so a failure is logged rather than
// returned.
func (s *Service) recordStatusChange(ctx context.Context, id string, from, to *model.Status, at time.Time) {
	if sameStatus(from, to) {
		return
	}
	change := model.StatusChange{RecordID: id, OldStatus: from, NewStatus: to, ChangedAt: at}

	start := time.Now()
	err := s.store.AppendStatusChange(ctx, change)
	s.observe("append_status_change", start, err)
	if err != nil {
		s.logger.Error("failed to append status change", "record_id", id, "error", err, "correlation_id", telemetry.CorrelationID(ctx))
		return
	}
	s.publish(ctx, event.TypeStatusChanged, func() error { return s.publisher.PublishStatusChanged(ctx, change) })
}

func (s *Service) publish(ctx context.Context, eventType string, fn func() error) {
	err := fn()
	if s.metrics != nil {
		s.metrics.ObservePublish(eventType, err)
	}
	if err != nil {
		s.logger.Warn("failed to publish event", "event_type", eventType, "error", err, "correlation_id", telemetry.CorrelationID(ctx))
	}
}

func (s *Service) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	s.metrics.ObserveStorage(op, start, err)
}

// storageErr passes not-found and conflict through and wraps everything
// else in a PersistenceError.
func (s *Service) storageErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConflict) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func sameStatus(a, b *model.Status) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// applyPatch copies the set fields of p onto r. Blank strings clear optional
// text fields; genre and language are normalized.
func applyPatch(r *model.Record, p model.RecordPatch) error {
	invalid := map[string]string{}
	for _, name := range p.Clear {
		if !model.ClearableFields[name] {
			invalid["clear"] = fmt.Sprintf("%q cannot be cleared", name)
			continue
		}
		clearField(r, name)
	}
	if len(invalid) > 0 {
		return &schema.ValidationError{Fields: invalid}
	}

	if p.Title != nil {
		r.Title = strings.TrimSpace(*p.Title)
	}
	if p.Medium != nil {
		r.Medium = optional(p.Medium)
	}
	if p.Status != nil {
		r.Status = optional(p.Status)
	}
	if p.Type != nil {
		r.Type = text(p.Type)
	}
	if p.Genre != nil {
		r.Genre = list(normalize.Genres(p.Genre))
	}
	if p.Language != nil {
		r.Language = list(normalize.Languages(p.Language))
	}
	if p.Platform != nil {
		r.Platform = text(p.Platform)
	}
	if p.Episodes != nil {
		r.Episodes = model.Ptr(*p.Episodes)
	}
	if p.Length != nil {
		r.Length = text(p.Length)
	}
	if p.MyRating != nil {
		r.MyRating = model.Ptr(*p.MyRating)
	}
	if p.AverageRating != nil {
		r.AverageRating = model.Ptr(*p.AverageRating)
	}
	if p.PriceCents != nil {
		r.PriceCents = model.Ptr(*p.PriceCents)
	}
	if p.StartDate != nil {
		r.StartDate = text(p.StartDate)
	}
	if p.FinishDate != nil {
		r.FinishDate = text(p.FinishDate)
	}
	if p.PosterURL != nil {
		r.PosterURL = text(p.PosterURL)
	}
	if p.IMDbID != nil {
		r.IMDbID = text(p.IMDbID)
	}
	if p.Notes != nil {
		r.Notes = text(p.Notes)
	}
	return nil
}

func clearField(r *model.Record, name string) {
	switch name {
	case "medium":
		r.Medium = nil
	case "type":
		r.Type = nil
	case "status":
		r.Status = nil
	case "genre":
		r.Genre = nil
	case "language":
		r.Language = nil
	case "platform":
		r.Platform = nil
	case "episodes":
		r.Episodes = nil
	case "length":
		r.Length = nil
	case "my_rating":
		r.MyRating = nil
	case "average_rating":
		r.AverageRating = nil
	case "price_cents":
		r.PriceCents = nil
	case "start_date":
		r.StartDate = nil
	case "finish_date":
		r.FinishDate = nil
	case "poster_url":
		r.PosterURL = nil
	case "imdb_id":
		r.IMDbID = nil
	case "notes":
		r.Notes = nil
	}
}

func text(s *string) *string {
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func optional[T ~string](v *T) *T {
	t := T(strings.TrimSpace(string(*v)))
	if t == "" {
		return nil
	}
	return &t
}

func list(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}
