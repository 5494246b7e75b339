// Package state persists playback state to a local sqlite database.
// Persistence is best-effort: callers treat every failure as "session
// becomes non-persistent", never as a playback error.
package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	appName    = "cadence"
	dbFileName = "cadence.db"

	// saveDebounce throttles session writes triggered by state
	// transitions.
	saveDebounce = 500 * time.Millisecond

	// defaultMaxSnapshotAge is the staleness threshold past which a
	// saved session is not restored.
	defaultMaxSnapshotAge = time.Hour
)

// Store reads and writes playback snapshots and the volume preference.
type Store struct {
	db     *sql.DB
	maxAge time.Duration

	saveMu    sync.Mutex
	saveTimer *time.Timer
	pending   *Snapshot
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxSnapshotAge overrides the staleness threshold.
func WithMaxSnapshotAge(d time.Duration) StoreOption {
	return func(s *Store) { s.maxAge = d }
}

// Open opens (or creates) the store at the given path.
func Open(dbPath string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, maxAge: defaultMaxSnapshotAge}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenDefault opens the store at the XDG data location.
func OpenDefault(opts ...StoreOption) (*Store, error) {
	dbPath, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, err
	}
	return Open(dbPath, opts...)
}

// SaveSession schedules a debounced write of the snapshot. The latest
// snapshot wins; earlier pending ones are replaced.
func (s *Store) SaveSession(snap Snapshot) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.pending = &snap

	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}

	s.saveTimer = time.AfterFunc(saveDebounce, func() {
		s.saveMu.Lock()
		pending := s.pending
		s.pending = nil
		s.saveMu.Unlock()

		if pending != nil {
			_ = saveSession(s.db, *pending)
		}
	})
}

// SaveSessionNow writes the snapshot synchronously, bypassing the
// debounce. Used on teardown and on the periodic position save.
func (s *Store) SaveSessionNow(snap Snapshot) error {
	s.saveMu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.pending = nil
	s.saveMu.Unlock()

	return saveSession(s.db, snap)
}

// LoadSession returns the saved snapshot, or nil if absent or older
// than the staleness threshold.
func (s *Store) LoadSession() (*Snapshot, error) {
	snap, err := getSession(s.db)
	if err != nil || snap == nil {
		return nil, err
	}
	if time.Since(snap.SavedAt) > s.maxAge {
		return nil, nil
	}
	return snap, nil
}

// ClearSession removes any saved session.
func (s *Store) ClearSession() error {
	s.saveMu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.pending = nil
	s.saveMu.Unlock()

	return clearSession(s.db)
}

// Close flushes any pending session write and closes the database.
func (s *Store) Close() error {
	s.saveMu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	pending := s.pending
	s.pending = nil
	s.saveMu.Unlock()

	if pending != nil {
		_ = saveSession(s.db, *pending)
	}

	return s.db.Close()
}
