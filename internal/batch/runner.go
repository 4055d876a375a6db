// Package batch applies one operation to many records in sequence. Items are
// paced so metadata providers are not flooded, and a failing item never stops
// the rest of the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vannputh/analytics/internal/merge"
	"github.com/vannputh/analytics/internal/metadata"
	"github.com/vannputh/analytics/internal/metrics"
	"github.com/vannputh/analytics/internal/model"
)

// Operation names used in logs and metrics.
const (
	OpRefreshMetadata = "refresh_metadata"
	OpApplyPatch      = "apply_patch"
)

// ErrEmptyPatch is returned by ApplyPatch when the patch changes nothing.
var ErrEmptyPatch = errors.New("patch is empty")

// Catalog is the subset of catalog.Service a batch needs.
type Catalog interface {
	Get(ctx context.Context, id string) (*model.Record, error)
	Update(ctx context.Context, id string, p model.RecordPatch) (*model.Record, error)
	ApplyMetadata(ctx context.Context, id string, fetched model.Metadata, overrides []merge.FieldDecision) (*model.Record, error)
}

// Failure is one item that could not be processed.
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Summary counts the outcome of a batch. Total equals Updated + Failed +
// Skipped once the batch ran to completion.
type Summary struct {
	Total     int       `json:"total"`
	Updated   int       `json:"updated"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Failures  []Failure `json:"failures"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

// Message renders the summary for a notification.
func (s Summary) Message() string {
	return fmt.Sprintf("updated %d, %d failed", s.Updated, s.Failed)
}

// Runner executes batches.
type Runner struct {
	catalog Catalog
	fetcher metadata.Fetcher
	delay   time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRunner returns a Runner that waits delay between items. m and logger
// may be nil.
func NewRunner(c Catalog, f metadata.Fetcher, delay time.Duration, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{catalog: c, fetcher: f, delay: delay, metrics: m, logger: logger}
}

// RefreshMetadata looks every record up again and merges the answer with
// the fill-if-absent policy. Records the merge would not change are skipped.
func (r *Runner) RefreshMetadata(ctx context.Context, ids []string) (Summary, error) {
	return r.run(ctx, OpRefreshMetadata, ids, func(ctx context.Context, id string) (bool, error) {
		current, err := r.catalog.Get(ctx, id)
		if err != nil {
			return false, err
		}
		md, err := r.fetcher.Fetch(ctx, metadata.Query{
			Title:      current.Title,
			ExternalID: model.StringValue(current.IMDbID),
			Medium:     medium(current),
		})
		if err != nil {
			return false, err
		}
		if reflect.DeepEqual(merge.Apply(*current, *md, nil), *current) {
			return false, nil
		}
		_, err = r.catalog.ApplyMetadata(ctx, id, *md, nil)
		return err == nil, err
	})
}

// ApplyPatch applies the same patch to every record.
func (r *Runner) ApplyPatch(ctx context.Context, ids []string, p model.RecordPatch) (Summary, error) {
	if p.IsEmpty() {
		return Summary{}, ErrEmptyPatch
	}
	return r.run(ctx, OpApplyPatch, ids, func(ctx context.Context, id string) (bool, error) {
		_, err := r.catalog.Update(ctx, id, p)
		return err == nil, err
	})
}

// run calls fn for each distinct id, one at a time. Blank and repeated ids
// are skipped. Cancelling ctx stops the loop before the next item; the
// summary so far is returned with the error from the limiter, which also
// fires when the next slot would fall after the context deadline.
func (r *Runner) run(ctx context.Context, op string, ids []string, fn func(context.Context, string) (bool, error)) (Summary, error) {
	limit := rate.Inf
	if r.delay > 0 {
		limit = rate.Every(r.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	sum := Summary{Total: len(ids), Failures: []Failure{}}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			sum.Skipped++
			r.observe(op, "skipped")
			continue
		}
		seen[id] = true

		if err := limiter.Wait(ctx); err != nil {
			sum.Cancelled = true
			r.logger.Warn("batch cancelled", "operation", op, "updated", sum.Updated, "failed", sum.Failed, "error", err)
			return sum, err
		}

		changed, err := fn(ctx, id)
		switch {
		case err != nil:
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{ID: id, Error: err.Error()})
			r.observe(op, "failed")
			r.logger.Warn("batch item failed", "operation", op, "record_id", id, "error", err)
		case changed:
			sum.Updated++
			r.observe(op, "updated")
		default:
			sum.Skipped++
			r.observe(op, "skipped")
		}
	}

	r.logger.Info("batch finished", "operation", op, "total", sum.Total, "updated", sum.Updated, "failed", sum.Failed, "skipped", sum.Skipped)
	return sum, nil
}

func (r *Runner) observe(op, outcome string) {
	if r.metrics != nil {
		r.metrics.BatchItemsTotal.WithLabelValues(op, outcome).Inc()
	}
}

func medium(r *model.Record) model.Medium {
	if r.Medium == nil {
		return ""
	}
	return *r.Medium
}
