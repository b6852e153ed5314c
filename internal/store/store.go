// Package store manages the SQLite database holding the reminder set. Each
// reminder is persisted as a single JSON record keyed by its ID, which keeps
// the on-disk field names identical to the wire names the rest of the app
// uses and makes a save atomic by construction (one row, one statement).
//
// Only this package may open or query the database. All other packages
// receive a [*Store] and call its methods.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/remindcore/internal/backoff"
	"github.com/njoerd114/remindcore/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS reminders (
    id         TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quarantine (
    id             TEXT PRIMARY KEY,
    data           TEXT NOT NULL,
    reason         TEXT NOT NULL,
    quarantined_at TEXT NOT NULL
);
`

// metaBootKey holds the boot-session ID of the last completed boot
// reconciliation. Cleared implicitly by the next reboot producing a new ID.
const metaBootKey = "reconciled_boot"

// Store is the SQLite-backed reminder repository.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// DefaultDBPath returns the default path for the reminder database:
// ~/.local/share/remindcore/reminders.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "remindcore", "reminders.db"), nil
}

// Open opens (or creates) the database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, log: logger, subs: make(map[int]func())}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the reminder by ID. The record is validated before
// it touches disk; the write is retried with backoff on transient failure.
// Subscribers are notified after the write commits.
func (s *Store) Save(ctx context.Context, r *model.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding reminder %s: %w", r.ID, err)
	}

	const q = `
		INSERT INTO reminders (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    data       = excluded.data,
		    updated_at = excluded.updated_at`

	err = backoff.Do(ctx, backoff.DefaultAttempts, func() error {
		_, execErr := s.db.ExecContext(ctx, q, r.ID, string(data), r.UpdatedAt.Format(time.RFC3339Nano))
		return execErr
	})
	if err != nil {
		return fmt.Errorf("saving reminder %s: %w", r.ID, err)
	}

	s.notify()
	return nil
}

// Get returns the reminder with the given ID, or (nil, nil) if no such
// reminder exists. A malformed record is quarantined and reported as missing.
func (s *Store) Get(ctx context.Context, id string) (*model.Reminder, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM reminders WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("reading reminder %s: %w", id, err)
	}

	r, decErr := decode(data)
	if decErr != nil {
		s.quarantine(ctx, id, data, decErr)
		return nil, nil
	}
	return r, nil
}

// List returns all well-formed reminders. Malformed records are moved to the
// quarantine table with a logged error and never abort the listing; the
// reconciler depends on this per-record isolation.
func (s *Store) List(ctx context.Context) ([]*model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM reminders`)
	if err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reminders []*model.Reminder
	var bad []badRow
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning reminder row: %w", err)
		}
		r, decErr := decode(data)
		if decErr != nil {
			bad = append(bad, badRow{id: id, data: data, err: decErr})
			continue
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reminder rows: %w", err)
	}

	// Quarantine outside the rows cursor: one open conn under WAL.
	for _, b := range bad {
		s.quarantine(ctx, b.id, b.data, b.err)
	}
	return reminders, nil
}

// Delete removes the reminder with the given ID and notifies subscribers.
// The caller is responsible for cancelling the reminder's triggers first.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting reminder %s: %w", id, err)
	}
	s.notify()
	return nil
}

// Subscribe registers a callback invoked after every committed mutation.
// The callback runs on the mutating goroutine and must not block; push-averse
// consumers should hand off to a channel. The returned function unsubscribes.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// BootReconciled reports whether a boot reconciliation has already completed
// for the given boot-session ID.
func (s *Store) BootReconciled(ctx context.Context, bootID string) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaBootKey).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading boot marker: %w", err)
	}
	return value == bootID, nil
}

// MarkBootReconciled records that reconciliation completed for this boot
// session. A later boot presents a different ID, which invalidates the marker
// without any explicit clearing.
func (s *Store) MarkBootReconciled(ctx context.Context, bootID string) error {
	const q = `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, metaBootKey, bootID); err != nil {
		return fmt.Errorf("writing boot marker: %w", err)
	}
	return nil
}

// QuarantinedCount returns the number of records set aside as malformed.
// Observability only.
func (s *Store) QuarantinedCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quarantine`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting quarantined records: %w", err)
	}
	return count, nil
}

// --- helpers -----------------------------------------------------------------

type badRow struct {
	id   string
	data string
	err  error
}

// decode unmarshals and validates a persisted record. Failing closed here is
// what lets a reconcile pass survive one corrupt row.
func decode(data string) (*model.Reminder, error) {
	var r model.Reminder
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validating record: %w", err)
	}
	return &r, nil
}

// quarantine moves a malformed record out of the reminders table so it stops
// poisoning reads, keeping the raw bytes for later inspection.
func (s *Store) quarantine(ctx context.Context, id, data string, reason error) {
	s.log.Error("quarantining malformed reminder record", "id", id, "error", reason)

	const q = `
		INSERT INTO quarantine (id, data, reason, quarantined_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    data           = excluded.data,
		    reason         = excluded.reason,
		    quarantined_at = excluded.quarantined_at`
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, q, id, data, reason.Error(), now); err != nil {
		s.log.Error("writing quarantine record", "id", id, "error", err)
		return
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
		s.log.Error("removing quarantined record", "id", id, "error", err)
	}
}

// notify invokes all subscribers. Callbacks are copied out under the lock so
// an unsubscribe during delivery cannot deadlock.
func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
