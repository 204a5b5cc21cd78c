// Package sqlitestore persists run states in a single SQLite database. Each
// run is one row holding the same TOML document the file backend writes, so
// states stay human-diffable when exported.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// schema contains the DDL executed on first open. Using IF NOT EXISTS makes
// it safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id     TEXT PRIMARY KEY,
    step       TEXT NOT NULL,
    document   TEXT NOT NULL,
    revision   INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL,
    step       TEXT NOT NULL,
    saved_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Backend implements store.Backend on a local SQLite database in WAL mode.
type Backend struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at dbPath, enables WAL mode and
// busy timeout, and creates the schema tables if they do not exist.
func Open(ctx context.Context, dbPath string) (*Backend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}

	// SQLite only supports a single writer; one connection avoids
	// SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable WAL mode: %w", err)
	}

	// Busy timeout avoids SQLITE_BUSY under concurrent access from external processes.
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: set busy timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}

	return &Backend{db: db}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Load reads and decodes a run's state document.
func (b *Backend) Load(ctx context.Context, runID string) (*story.ProjectState, error) {
	var doc string
	err := b.db.QueryRowContext(ctx, "SELECT document FROM runs WHERE run_id = ?", runID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &story.NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load %s: %w", runID, err)
	}
	state, err := store.Decode([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: run %s: %w", runID, err)
	}
	return state, nil
}

// Save writes the run row and appends a history entry in one transaction. A
// new run is inserted; an existing run is updated only if its stored revision
// is the one the state was derived from, otherwise nothing is written and a
// *store.ConflictError is returned.
func (b *Backend) Save(ctx context.Context, state *story.ProjectState) error {
	doc, err := store.Encode(state)
	if err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var persisted int
	err = tx.QueryRowContext(ctx, "SELECT revision FROM runs WHERE run_id = ?", state.RunID).Scan(&persisted)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlitestore: read revision %s: %w", state.RunID, err)
	}
	if err := store.CheckRevision(state, persisted, exists); err != nil {
		return err
	}

	if exists {
		const update = `
			UPDATE runs SET step = ?, document = ?, revision = ?, updated_at = CURRENT_TIMESTAMP
			WHERE run_id = ? AND revision = ?`
		res, err := tx.ExecContext(ctx, update, string(state.Step), string(doc), state.Revision, state.RunID, persisted)
		if err != nil {
			return fmt.Errorf("sqlitestore: save %s: %w", state.RunID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return &store.ConflictError{RunID: state.RunID, Base: state.Revision - 1, Found: persisted}
		}
	} else {
		const insert = `
			INSERT INTO runs (run_id, step, document, revision, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`
		if _, err := tx.ExecContext(ctx, insert, state.RunID, string(state.Step), string(doc), state.Revision); err != nil {
			return fmt.Errorf("sqlitestore: save %s: %w", state.RunID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO run_history (run_id, step) VALUES (?, ?)", state.RunID, string(state.Step)); err != nil {
		return fmt.Errorf("sqlitestore: record history %s: %w", state.RunID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit %s: %w", state.RunID, err)
	}
	return nil
}

// Delete removes a run and its history.
func (b *Backend) Delete(ctx context.Context, runID string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &story.NotFoundError{RunID: runID}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM run_history WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("sqlitestore: delete history %s: %w", runID, err)
	}
	return tx.Commit()
}

// List returns the ids of every stored run, sorted.
func (b *Backend) List(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT run_id FROM runs ORDER BY run_id")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveCount returns how many times a run has been saved.
func (b *Backend) SaveCount(ctx context.Context, runID string) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_history WHERE run_id = ?", runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitestore: count history %s: %w", runID, err)
	}
	return n, nil
}
