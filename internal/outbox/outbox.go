// Package outbox is a small SQLite-backed spool for conversation
// transcripts whose save failed at session teardown. Entries are replayed
// oldest-first on the next flush so a flaky backend does not lose talks.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const maxAttemptsPerFlush = 3

// SaveFunc replays one spooled payload against the backend.
type SaveFunc func(ctx context.Context, userID string, payload []byte) error

// Outbox is a durable queue of pending conversation saves.
type Outbox struct {
	db *sql.DB
}

// Open opens (and if needed creates) the outbox database at path.
func Open(path string) (*Outbox, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open outbox database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping outbox database: %w", err)
	}

	schema := `
    CREATE TABLE IF NOT EXISTS pending_talks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        payload BLOB NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        attempts INTEGER DEFAULT 0
    );`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize outbox schema: %w", err)
	}
	return &Outbox{db: db}, nil
}

// Close closes the underlying database.
func (o *Outbox) Close() error {
	return o.db.Close()
}

// Put spools one failed save.
func (o *Outbox) Put(userID string, payload []byte) error {
	_, err := o.db.Exec(
		`INSERT INTO pending_talks (user_id, payload) VALUES (?, ?)`,
		userID, payload,
	)
	if err != nil {
		return fmt.Errorf("spool pending talk: %w", err)
	}
	return nil
}

// Pending returns the number of spooled entries.
func (o *Outbox) Pending() (int, error) {
	var n int
	if err := o.db.QueryRow(`SELECT COUNT(*) FROM pending_talks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending talks: %w", err)
	}
	return n, nil
}

// Flush replays spooled entries oldest-first through save. Each entry gets
// up to maxAttemptsPerFlush tries with linear backoff; entries that still
// fail stay spooled for a later flush. Returns the number of entries
// delivered.
func (o *Outbox) Flush(ctx context.Context, save SaveFunc) (int, error) {
	rows, err := o.db.Query(
		`SELECT id, user_id, payload FROM pending_talks ORDER BY id ASC`,
	)
	if err != nil {
		return 0, fmt.Errorf("list pending talks: %w", err)
	}

	type entry struct {
		id      int64
		userID  string
		payload []byte
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.userID, &e.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan pending talk: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate pending talks: %w", err)
	}
	rows.Close()

	delivered := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		var saveErr error
		for attempt := 1; attempt <= maxAttemptsPerFlush; attempt++ {
			saveErr = save(ctx, e.userID, e.payload)
			if saveErr == nil {
				break
			}
			if attempt < maxAttemptsPerFlush {
				select {
				case <-time.After(time.Duration(attempt) * time.Second):
				case <-ctx.Done():
					return delivered, ctx.Err()
				}
			}
		}

		if saveErr != nil {
			if _, err := o.db.Exec(
				`UPDATE pending_talks SET attempts = attempts + ? WHERE id = ?`,
				maxAttemptsPerFlush, e.id,
			); err != nil {
				return delivered, fmt.Errorf("record failed attempts: %w", err)
			}
			continue
		}

		if _, err := o.db.Exec(`DELETE FROM pending_talks WHERE id = ?`, e.id); err != nil {
			return delivered, fmt.Errorf("remove delivered talk: %w", err)
		}
		delivered++
	}
	return delivered, nil
}
