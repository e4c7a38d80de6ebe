package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var migrations = []string{`
CREATE TABLE IF NOT EXISTS taskpoll_history (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT    NOT NULL UNIQUE,
    user_id     TEXT    NOT NULL,
    domain      TEXT    NOT NULL,
    task_id     TEXT    NOT NULL,
    query       TEXT    NOT NULL,
    answer      TEXT    NOT NULL,
    error_msg   TEXT    NOT NULL,
    state       TEXT    NOT NULL,
    created_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS taskpoll_history_key ON taskpoll_history (user_id, domain, seq)`,
}

// SQLStore keeps history in a single table of a database/sql database.
//
// Queries use '?' placeholders and the AUTOINCREMENT column syntax of SQLite.
type SQLStore struct {
	db    *sql.DB
	limit int
}

// NewSQLStore creates a [SQLStore] over db. Call [SQLStore.Migrate] once
// before use. A positive limit keeps only the newest entries per key.
func NewSQLStore(db *sql.DB, limit int) *SQLStore {
	return &SQLStore{db: db, limit: limit}
}

// Migrate creates the history table and index if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if s.db == nil {
		return errors.New("nil db")
	}
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate history table: %w", err)
		}
	}
	return nil
}

// Append inserts entry and prunes key's history to the limit.
func (s *SQLStore) Append(ctx context.Context, key Key, entry Entry) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO taskpoll_history (id, user_id, domain, task_id, query, answer, error_msg, state, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, key.User, key.Domain, entry.TaskID, entry.Query, entry.Answer, entry.Error, entry.State,
		entry.CreatedAt.UnixNano(), entry.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	if s.limit > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM taskpoll_history
			WHERE user_id = ? AND domain = ? AND seq NOT IN (
				SELECT seq FROM taskpoll_history WHERE user_id = ? AND domain = ? ORDER BY seq DESC LIMIT ?
			)`,
			key.User, key.Domain, key.User, key.Domain, s.limit,
		)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history entry: %w", err)
	}
	return nil
}

// List returns key's history, oldest first.
func (s *SQLStore) List(ctx context.Context, key Key) ([]Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, query, answer, error_msg, state, created_at, finished_at
		FROM taskpoll_history WHERE user_id = ? AND domain = ? ORDER BY seq ASC`,
		key.User, key.Domain,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var created, finished int64
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Query, &e.Answer, &e.Error, &e.State, &created, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		e.FinishedAt = time.Unix(0, finished).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}

// Clear deletes key's history.
func (s *SQLStore) Clear(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM taskpoll_history WHERE user_id = ? AND domain = ?`, key.User, key.Domain)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
