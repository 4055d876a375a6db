// internal/event/nats.go
// Package event publishes catalog change events to NATS JetStream.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/telemetry"
)

// Stream and subjects used for record events.
const (
	StreamName     = "TRACKER_RECORDS"
	subjectPrefix  = "tracker.records."
	envelopeSchema = "1.0.0"
)

// Event types, also the subject suffix.
const (
	TypeRecordCreated = "created"
	TypeRecordUpdated = "updated"
	TypeRecordDeleted = "deleted"
	TypeStatusChanged = "status_changed"
)

// Publisher defines the event publishing operations required by the tracker service.
type Publisher interface {
	PublishRecordCreated(ctx context.Context, record model.Record) error
	PublishRecordUpdated(ctx context.Context, record model.Record) error
	PublishRecordDeleted(ctx context.Context, id string) error
	PublishStatusChanged(ctx context.Context, change model.StatusChange) error

	// Close closes the publisher connection
	Close() error
}

// EventEnvelope represents the standard event envelope structure.
// All events published to NATS are wrapped in this envelope for consistency.
type EventEnvelope struct {
	Type          string    `json:"type"`          // tracker.records.<event type>
	Version       string    `json:"version"`       // Envelope schema version
	OccurredAt    time.Time `json:"occurredAt"`    // When the event occurred
	CorrelationID string    `json:"correlationId"` // Request that caused the event
	Payload       any       `json:"payload"`       // Event-specific data
}

// NewNoop returns a Publisher that drops every event.
func NewNoop() Publisher { return noop{} }

// noop is used when NATS is not configured or unreachable so the service
// keeps working without event streaming.
type noop struct{}

func (noop) Close() error { return nil }
func (noop) PublishRecordCreated(context.Context, model.Record) error { return nil }
func (noop) PublishRecordUpdated(context.Context, model.Record) error { return nil }
func (noop) PublishRecordDeleted(context.Context, string) error { return nil }
func (noop) PublishStatusChanged(context.Context, model.StatusChange) error { return nil }

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc     *nats.Conn            // NATS connection
	js     nats.JetStreamContext // JetStream context for stream operations
	logger *slog.Logger
}

// NewPublisher connects to url and ensures the record stream exists. An empty
// url or any connection failure yields the no-op publisher.
func NewPublisher(url string, logger *slog.Logger) Publisher {
	if url == "" {
		return NewNoop()
	}

	nc, err := nats.Connect(url, nats.Name("trackerd"))
	if err != nil {
		logger.Warn("NATS connect failed, using noop publisher", "error", err)
		return NewNoop()
	}

	js, err := nc.JetStream()
	if err != nil {
		logger.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return NewNoop()
	}

	if err := initStream(js); err != nil {
		logger.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return NewNoop()
	}

	return &natsPub{nc: nc, js: js, logger: logger}
}

// initStream creates the record stream. JetStream drops a message whose
// Nats-Msg-Id was already seen inside the duplicate window.
func initStream(js nats.JetStreamContext) error {
	cfg := &nats.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{subjectPrefix + "*"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Discard:    nats.DiscardOld,
		Storage:    nats.FileStorage,
		Duplicates: 2 * time.Minute,
	}
	if _, err := js.StreamInfo(StreamName); err == nil {
		_, err = js.UpdateStream(cfg)
		if err != nil {
			return fmt.Errorf("failed to update %s stream: %w", StreamName, err)
		}
		return nil
	}
	if _, err := js.AddStream(cfg); err != nil {
		return fmt.Errorf("failed to create %s stream: %w", StreamName, err)
	}
	return nil
}

// Close drains pending publishes and closes the NATS connection.
func (p *natsPub) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}

func (p *natsPub) PublishRecordCreated(ctx context.Context, record model.Record) error {
	return p.publish(ctx, TypeRecordCreated, record.ID+":created", record)
}

func (p *natsPub) PublishRecordUpdated(ctx context.Context, record model.Record) error {
	msgID := record.ID + ":updated:" + strconv.FormatInt(record.UpdatedAt.UnixNano(), 10)
	return p.publish(ctx, TypeRecordUpdated, msgID, record)
}

func (p *natsPub) PublishRecordDeleted(ctx context.Context, id string) error {
	return p.publish(ctx, TypeRecordDeleted, id+":deleted", map[string]string{"id": id})
}

func (p *natsPub) PublishStatusChanged(ctx context.Context, change model.StatusChange) error {
	msgID := change.RecordID + ":status:" + strconv.FormatInt(change.ChangedAt.UnixNano(), 10)
	return p.publish(ctx, TypeStatusChanged, msgID, change)
}

// publish wraps payload in an envelope and sends it with msgID as the
// JetStream deduplication id.
func (p *natsPub) publish(ctx context.Context, eventType, msgID string, payload any) error {
	correlationID := telemetry.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	subject := subjectPrefix + eventType
	b, err := json.Marshal(EventEnvelope{
		Type:          subject,
		Version:       envelopeSchema,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	if _, err := p.js.Publish(subject, b, nats.MsgId(msgID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	p.logger.Debug("event published", "subject", subject, "msg_id", msgID, "correlation_id", correlationID)
	return nil
}
