package event

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/vannputh/analytics/internal/model"
)

func TestNewPublisherFallsBackToNoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name string
		url  string
	}{
		{"empty url", ""},
		{"unreachable server", "nats://127.0.0.1:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(tt.url, logger)
			if _, ok := p.(noop); !ok {
				t.Fatalf("NewPublisher(%q) = %T, want noop", tt.url, p)
			}
		})
	}
}

func TestNoopPublisher(t *testing.T) {
	p := NewNoop()
	ctx := context.Background()
	rec := model.Record{ID: "01J0000000000000000000000", Title: "Heat"}

	if err := p.PublishRecordCreated(ctx, rec); err != nil {
		t.Errorf("PublishRecordCreated() error = %v", err)
	}
	if err := p.PublishRecordUpdated(ctx, rec); err != nil {
		t.Errorf("PublishRecordUpdated() error = %v", err)
	}
	if err := p.PublishRecordDeleted(ctx, rec.ID); err != nil {
		t.Errorf("PublishRecordDeleted() error = %v", err)
	}
	if err := p.PublishStatusChanged(ctx, model.StatusChange{RecordID: rec.ID}); err != nil {
		t.Errorf("PublishStatusChanged() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
