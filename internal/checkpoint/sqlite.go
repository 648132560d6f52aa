package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. The checkpoint lives in a
// single-row state table; each save replaces the row inside a transaction,
// which gives the same never-torn guarantee as the file backend while
// tolerating the checkpoint living on a shared volume.
type SQLiteStore struct {
	db     *sql.DB
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer is the design contract; one connection is enough.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS batch_cursor (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_index INTEGER NOT NULL,
		items TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// Load returns the persisted checkpoint; a missing or undecodable row
// yields the zero checkpoint.
func (s *SQLiteStore) Load() (Checkpoint, error) {
	if s.closed {
		return Checkpoint{}, fmt.Errorf("checkpoint store is closed")
	}

	var cp Checkpoint
	err := s.retryOnBusy(func() error {
		row := s.db.QueryRow(`SELECT next_index, items FROM batch_cursor WHERE id = 1`)

		var items string
		if err := row.Scan(&cp.NextIndex, &items); err != nil {
			if err == sql.ErrNoRows {
				cp = Checkpoint{}
				return nil
			}
			return err
		}
		if err := json.Unmarshal([]byte(items), &cp.Items); err != nil {
			cp = Checkpoint{}
		}
		return nil
	})
	if err != nil {
		// Unreadable state resets the batch rather than failing it.
		return Checkpoint{}, nil
	}
	if cp.NextIndex < 0 {
		return Checkpoint{}, nil
	}
	return cp, nil
}

// Save fully rewrites the single cursor row.
func (s *SQLiteStore) Save(cp Checkpoint) error {
	if s.closed {
		return fmt.Errorf("checkpoint store is closed")
	}

	items, err := json.Marshal(cp.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	return s.retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback() // This will be ignored if Commit() succeeds

		query := `
		INSERT INTO batch_cursor (id, next_index, items, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			next_index = excluded.next_index,
			items = excluded.items,
			updated_at = excluded.updated_at
		`

		if _, err := tx.Exec(query, cp.NextIndex, string(items), time.Now()); err != nil {
			return fmt.Errorf("failed to execute insert: %w", err)
		}
		return tx.Commit()
	})
}

// retryOnBusy retries the operation if SQLite is busy.
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	maxRetries := 10
	baseDelay := 50 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if isSQLiteBusyError(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
			continue
		}

		return err
	}

	return nil
}

// isSQLiteBusyError checks if the error is a SQLite busy error.
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.closed = true
	return s.db.Close()
}
