package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jordanhubbard/venueflow/pkg/models"

	"encoding/json"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists conversations in SQLite or PostgreSQL. The state record
// is stored as a JSON column next to an integer version; Save performs a
// compare-and-swap on the version so a stale writer is rejected by the
// database itself, regardless of how many processes share it.
type SQLStore struct {
	db      *sql.DB
	backend string // "sqlite3" or "postgres"
}

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.backend != "postgres" {
		return query
	}
	n := 1
	out := strings.Builder{}
	for _, ch := range query {
		if ch == '?' {
			out.WriteString(fmt.Sprintf("$%d", n))
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// NewSQLite opens (or creates) a SQLite-backed store.
func NewSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s := &SQLStore{db: db, backend: "sqlite3"}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres opens a PostgreSQL-backed store.
func NewPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s := &SQLStore{db: db, backend: "postgres"}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hil_tasks (
		task_id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_hil_tasks_conversation ON hil_tasks(conversation_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, id string) (*models.ConversationState, error) {
	var raw []byte
	var version int64
	query := `SELECT state, version FROM conversations WHERE id = ?`
	err := s.db.QueryRowContext(ctx, s.rebind(query), id).Scan(&raw, &version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	var state models.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	state.Version = version
	return &state, nil
}

// Save implements Store. The version column is the CAS token: the UPDATE
// matches only the expected version, so the later of two racing writers
// affects zero rows and gets ErrVersionConflict instead of silently winning.
func (s *SQLStore) Save(ctx context.Context, state *models.ConversationState) error {
	touch(state)
	next := state.Version + 1

	snapshot := state.Clone()
	snapshot.Version = next
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", state.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if state.Version == 0 {
		insert := `INSERT INTO conversations (id, state, version, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`
		res, execErr := tx.ExecContext(ctx, s.rebind(insert), state.ID, raw, next, state.UpdatedAt)
		if execErr != nil {
			err = fmt.Errorf("failed to insert conversation %s: %w", state.ID, execErr)
			return err
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			err = ErrVersionConflict
			return err
		}
	} else {
		update := `UPDATE conversations SET state = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`
		res, execErr := tx.ExecContext(ctx, s.rebind(update), raw, next, state.UpdatedAt, state.ID, state.Version)
		if execErr != nil {
			err = fmt.Errorf("failed to update conversation %s: %w", state.ID, execErr)
			return err
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			err = ErrVersionConflict
			return err
		}
	}

	// Keep the HIL task index in step with the record, in the same
	// transaction.
	if _, execErr := tx.ExecContext(ctx, s.rebind(`DELETE FROM hil_tasks WHERE conversation_id = ?`), state.ID); execErr != nil {
		err = fmt.Errorf("failed to clear hil index for %s: %w", state.ID, execErr)
		return err
	}
	for _, req := range state.PendingHil {
		insert := `INSERT INTO hil_tasks (task_id, conversation_id, created_at) VALUES (?, ?, ?)`
		if _, execErr := tx.ExecContext(ctx, s.rebind(insert), req.TaskID, state.ID, req.CreatedAt); execErr != nil {
			err = fmt.Errorf("failed to index hil task %s: %w", req.TaskID, execErr)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation %s: %w", state.ID, err)
	}
	state.Version = next
	return nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context) ([]*models.ConversationState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, version FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.ConversationState
	for rows.Next() {
		var raw []byte
		var version int64
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		var state models.ConversationState
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("failed to decode conversation: %w", err)
		}
		state.Version = version
		out = append(out, &state)
	}
	return out, rows.Err()
}

// FindHilTask implements Store.
func (s *SQLStore) FindHilTask(ctx context.Context, taskID string) (string, error) {
	var convID string
	query := `SELECT conversation_id FROM hil_tasks WHERE task_id = ?`
	err := s.db.QueryRowContext(ctx, s.rebind(query), taskID).Scan(&convID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up hil task %s: %w", taskID, err)
	}
	return convID, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
