// internal/storage/postgres.go
// Package storage provides PostgreSQL implementation of the Store interface.
// This implementation is intended for production use with persistent data storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/normalize"
)

// postgres stores records, status history and preferences in PostgreSQL.
type postgres struct {
	db *pgxpool.Pool // Connection pool to PostgreSQL database
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the schema.
func NewPostgres(dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	// A personal catalog needs few connections.
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema creates all required tables and indexes if they don't already exist.
//
// genre and language are JSONB. Rows written by older clients may hold a
// plain or comma separated string instead of an array; readers pass the raw
// value through the normalizer so both shapes load the same.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
		    id TEXT PRIMARY KEY,
		    title TEXT NOT NULL CHECK (btrim(title) <> ''),
		    medium TEXT,
		    type TEXT,
		    status TEXT,
		    genre JSONB,
		    language JSONB,
		    platform TEXT,
		    episodes INTEGER CHECK (episodes >= 0),
		    length TEXT,
		    my_rating DOUBLE PRECISION CHECK (my_rating BETWEEN 0 AND 10),
		    average_rating DOUBLE PRECISION CHECK (average_rating BETWEEN 0 AND 10),
		    price_cents INTEGER,
		    start_date DATE,
		    finish_date DATE,
		    poster_url TEXT,
		    imdb_id TEXT,
		    notes TEXT,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at DESC, id);
		CREATE INDEX IF NOT EXISTS idx_records_imdb_id ON records(imdb_id);

		-- Append-only log of status transitions
		CREATE TABLE IF NOT EXISTS status_history (
		    id BIGSERIAL PRIMARY KEY,
		    record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
		    old_status TEXT,
		    new_status TEXT,
		    changed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_status_history_record ON status_history(record_id, changed_at);

		CREATE TABLE IF NOT EXISTS preferences (
		    user_id TEXT PRIMARY KEY,
		    visible_columns JSONB NOT NULL DEFAULT '[]',
		    filter TEXT NOT NULL DEFAULT '',
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
	`

	_, err := db.Exec(ctx, schema)
	return err
}

const recordColumns = `id, title, medium, type, status, genre, language, platform, episodes, length,
	my_rating, average_rating, price_cents, to_char(start_date, 'YYYY-MM-DD'), to_char(finish_date, 'YYYY-MM-DD'),
	poster_url, imdb_id, notes, created_at, updated_at`

// Close closes the database connection pool
func (p *postgres) Close() {
	p.db.Close()
}

func (p *postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// CreateRecord inserts a new record.
func (p *postgres) CreateRecord(ctx context.Context, r model.Record) error {
	genre, language, err := encodeLists(r)
	if err != nil {
		return err
	}

	query := `INSERT INTO records (id, title, medium, type, status, genre, language, platform, episodes, length,
	              my_rating, average_rating, price_cents, start_date, finish_date, poster_url, imdb_id, notes,
	              created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = p.db.Exec(ctx, query,
		r.ID, r.Title, r.Medium, r.Type, r.Status, genre, language, r.Platform, r.Episodes, r.Length,
		r.MyRating, r.AverageRating, r.PriceCents, r.StartDate, r.FinishDate, r.PosterURL, r.IMDbID, r.Notes,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by id.
func (p *postgres) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := p.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return r, nil
}

// ListRecords returns every record, newest first.
func (p *postgres) ListRecords(ctx context.Context) ([]model.Record, error) {
	rows, err := p.db.Query(ctx, `SELECT `+recordColumns+` FROM records ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// UpdateRecord replaces every mutable column of an existing record.
func (p *postgres) UpdateRecord(ctx context.Context, r model.Record) error {
	genre, language, err := encodeLists(r)
	if err != nil {
		return err
	}

	query := `UPDATE records SET title = $2, medium = $3, type = $4, status = $5, genre = $6, language = $7,
	              platform = $8, episodes = $9, length = $10, my_rating = $11, average_rating = $12,
	              price_cents = $13, start_date = $14, finish_date = $15, poster_url = $16, imdb_id = $17,
	              notes = $18, updated_at = $19
	          WHERE id = $1`

	tag, err := p.db.Exec(ctx, query,
		r.ID, r.Title, r.Medium, r.Type, r.Status, genre, language, r.Platform, r.Episodes, r.Length,
		r.MyRating, r.AverageRating, r.PriceCents, r.StartDate, r.FinishDate, r.PosterURL, r.IMDbID, r.Notes,
		r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRecord removes a record; its status history goes with it via ON DELETE CASCADE.
func (p *postgres) DeleteRecord(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendStatusChange logs a status transition.
func (p *postgres) AppendStatusChange(ctx context.Context, c model.StatusChange) error {
	changedAt := c.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}
	_, err := p.db.Exec(ctx,
		`INSERT INTO status_history (record_id, old_status, new_status, changed_at) VALUES ($1, $2, $3, $4)`,
		c.RecordID, c.OldStatus, c.NewStatus, changedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("failed to append status change: %w", err)
	}
	return nil
}

// ListStatusHistory returns the status transitions of a record, oldest first.
func (p *postgres) ListStatusHistory(ctx context.Context, recordID string) ([]model.StatusChange, error) {
	var exists bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM records WHERE id = $1)`, recordID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check record: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := p.db.Query(ctx,
		`SELECT id, record_id, old_status, new_status, changed_at FROM status_history
		 WHERE record_id = $1 ORDER BY changed_at ASC, id ASC`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	defer rows.Close()

	history := []model.StatusChange{}
	for rows.Next() {
		var c model.StatusChange
		if err := rows.Scan(&c.ID, &c.RecordID, &c.OldStatus, &c.NewStatus, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		history = append(history, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status history: %w", err)
	}
	return history, nil
}

// GetPreferences loads the saved UI state of a user.
func (p *postgres) GetPreferences(ctx context.Context, userID string) (*model.Preferences, error) {
	var prefs model.Preferences
	var columns []byte
	err := p.db.QueryRow(ctx,
		`SELECT user_id, visible_columns, filter, updated_at FROM preferences WHERE user_id = $1`, userID).
		Scan(&prefs.UserID, &columns, &prefs.Filter, &prefs.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	if err := json.Unmarshal(columns, &prefs.VisibleColumns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal visible columns: %w", err)
	}
	return &prefs, nil
}

// PutPreferences upserts the UI state of a user.
func (p *postgres) PutPreferences(ctx context.Context, prefs model.Preferences) error {
	columns := prefs.VisibleColumns
	if columns == nil {
		columns = []string{}
	}
	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("failed to marshal visible columns: %w", err)
	}
	updatedAt := prefs.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = p.db.Exec(ctx,
		`INSERT INTO preferences (user_id, visible_columns, filter, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET visible_columns = EXCLUDED.visible_columns,
		     filter = EXCLUDED.filter, updated_at = EXCLUDED.updated_at`,
		prefs.UserID, columnsJSON, prefs.Filter, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// encodeLists marshals genre and language for the JSONB columns. A nil list
// is stored as SQL NULL.
func encodeLists(r model.Record) (genre, language []byte, err error) {
	if r.Genre != nil {
		if genre, err = json.Marshal(r.Genre); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal genre: %w", err)
		}
	}
	if r.Language != nil {
		if language, err = json.Marshal(r.Language); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal language: %w", err)
		}
	}
	return genre, language, nil
}

func scanRecord(row pgx.Row) (*model.Record, error) {
	var r model.Record
	var genre, language []byte
	err := row.Scan(
		&r.ID, &r.Title, &r.Medium, &r.Type, &r.Status, &genre, &language, &r.Platform, &r.Episodes, &r.Length,
		&r.MyRating, &r.AverageRating, &r.PriceCents, &r.StartDate, &r.FinishDate,
		&r.PosterURL, &r.IMDbID, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if genre != nil {
		r.Genre = normalize.Genres(json.RawMessage(genre))
	}
	if language != nil {
		r.Language = normalize.Languages(json.RawMessage(language))
	}
	return &r, nil
}
