package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/stancld/rossum-agents-sub001/memory"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	memory     TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
`

// SQLiteStore is a durable Store on a single SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string, optFns ...func(o *Options)) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A shared connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &SQLiteStore{db: db, opts: buildOptions(optFns)}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, id string, mem *memory.AgentMemory, md Metadata) error {
	data, err := mem.MarshalJSON()
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", id, err)
	}

	md.UpdatedAt = s.opts.now().UTC()

	mdJSON, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("session: encode metadata %s: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, memory, metadata, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			memory = excluded.memory,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, id, string(data), string(mdJSON), md.UpdatedAt)
	if err != nil {
		return fmt.Errorf("session: save %s: %w", id, err)
	}

	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*memory.AgentMemory, Metadata, error) {
	var data, mdJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT memory, metadata FROM conversations WHERE id = ?`, id,
	).Scan(&data, &mdJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("session: load %s: %w", id, err)
	}

	mem := memory.New(s.opts.MemoryOptions...)
	if err := mem.UnmarshalJSON([]byte(data)); err != nil {
		return nil, Metadata{}, fmt.Errorf("session: decode %s: %w", id, err)
	}

	var md Metadata
	if err := json.Unmarshal([]byte(mdJSON), &md); err != nil {
		return nil, Metadata{}, fmt.Errorf("session: decode metadata %s: %w", id, err)
	}

	return mem, md, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}

	return nil
}

// List returns conversation ids, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
