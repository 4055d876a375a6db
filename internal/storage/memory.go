// internal/storage/memory.go
// Package storage provides implementations of the Store interface
// for both in-memory and PostgreSQL storage backends.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vannputh/analytics/internal/model"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found") // Returned when a record is not found
	ErrConflict = errors.New("conflict")  // Returned when a record already exists
)

// Store defines the persistence operations required by the tracker service.
// This interface is implemented by both in-memory and PostgreSQL storage backends.
//
// Records are returned as copies; callers may modify them freely.
type Store interface {
	// Catalog records
	CreateRecord(ctx context.Context, record model.Record) error     // Insert; ErrConflict on duplicate id
	GetRecord(ctx context.Context, id string) (*model.Record, error) // ErrNotFound when absent
	ListRecords(ctx context.Context) ([]model.Record, error)         // created_at desc, id asc
	UpdateRecord(ctx context.Context, record model.Record) error     // Full replace; ErrNotFound when absent
	DeleteRecord(ctx context.Context, id string) error               // Also drops status history

	// Append-only status history
	AppendStatusChange(ctx context.Context, change model.StatusChange) error
	ListStatusHistory(ctx context.Context, recordID string) ([]model.StatusChange, error) // changed_at asc

	// Persisted UI preferences
	GetPreferences(ctx context.Context, userID string) (*model.Preferences, error) // ErrNotFound when never saved
	PutPreferences(ctx context.Context, prefs model.Preferences) error

	Ping(ctx context.Context) error
	Close()
}

// memory implements the Store interface using in-memory storage.
// It's intended for development and testing purposes.
type memory struct {
	mu          sync.RWMutex                    // Protects concurrent access to maps
	records     map[string]*model.Record        // Record id to record
	history     map[string][]model.StatusChange // Record id to its status changes
	preferences map[string]*model.Preferences   // User id to preferences
	nextChange  int64                           // Last assigned status change id
}

// NewMemory creates a new in-memory storage implementation.
// Returns a Store interface that can be used for testing or development.
func NewMemory() Store {
	return &memory{
		records:     make(map[string]*model.Record),
		history:     make(map[string][]model.StatusChange),
		preferences: make(map[string]*model.Preferences),
	}
}

func (m *memory) CreateRecord(ctx context.Context, record model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; exists {
		return ErrConflict
	}
	recordCopy := record.Clone()
	m.records[record.ID] = &recordCopy
	return nil
}

func (m *memory) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.records[id]
	if !exists {
		return nil, ErrNotFound
	}
	out := record.Clone()
	return &out, nil
}

func (m *memory) ListRecords(ctx context.Context) ([]model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	// Sort by created_at descending, then by id ascending for stable ordering
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memory) UpdateRecord(ctx context.Context, record model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; !exists {
		return ErrNotFound
	}
	recordCopy := record.Clone()
	m.records[record.ID] = &recordCopy
	return nil
}

func (m *memory) DeleteRecord(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[id]; !exists {
		return ErrNotFound
	}
	delete(m.records, id)
	delete(m.history, id)
	return nil
}

func (m *memory) AppendStatusChange(ctx context.Context, change model.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[change.RecordID]; !exists {
		return ErrNotFound
	}
	m.nextChange++
	change.ID = m.nextChange
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	m.history[change.RecordID] = append(m.history[change.RecordID], change)
	return nil
}

func (m *memory) ListStatusHistory(ctx context.Context, recordID string) ([]model.StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.records[recordID]; !exists {
		return nil, ErrNotFound
	}
	out := make([]model.StatusChange, len(m.history[recordID]))
	copy(out, m.history[recordID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ChangedAt.Before(out[j].ChangedAt)
	})
	return out, nil
}

func (m *memory) GetPreferences(ctx context.Context, userID string) (*model.Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefs, exists := m.preferences[userID]
	if !exists {
		return nil, ErrNotFound
	}
	out := *prefs
	out.VisibleColumns = append([]string(nil), prefs.VisibleColumns...)
	return &out, nil
}

func (m *memory) PutPreferences(ctx context.Context, prefs model.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefs.VisibleColumns = append([]string(nil), prefs.VisibleColumns...)
	if prefs.UpdatedAt.IsZero() {
		prefs.UpdatedAt = time.Now().UTC()
	}
	m.preferences[prefs.UserID] = &prefs
	return nil
}

func (m *memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *memory) Close() {}
