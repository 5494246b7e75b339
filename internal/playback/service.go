package playback

import (
	"context"
	"errors"
	"time"

	"github.com/llehouerou/cadence/internal/queue"
	"github.com/llehouerou/cadence/internal/state"
)

var (
	// ErrEmptyCollection is returned when starting playback from an
	// empty track collection.
	ErrEmptyCollection = errors.New("empty track collection")

	// ErrUnknownTrack is returned when a track id is not part of the
	// current collection.
	ErrUnknownTrack = errors.New("track not in current collection")

	// ErrNoCatalog is returned when an operation requires the data
	// service and none is configured.
	ErrNoCatalog = errors.New("no catalog service configured")
)

// Service defines the playback orchestrator contract.
//
// Playback failures (unplayable track, expired URL) never surface as
// returned errors: they are handled internally, reflected in the
// session's LastError field and reported through Error events.
// Navigation intents arriving while a navigation is already in flight
// are dropped silently.
type Service interface {
	// Transport intents
	Start(tracks []queue.Track, startIndex int) error
	StartPlaylist(ctx context.Context, playlistID string, startIndex int) error
	PlayTrack(trackID string) error
	Next() error
	Previous() error
	Pause()
	Resume() error
	Toggle() error
	Stop() error
	Seek(delta time.Duration)
	SeekTo(pos time.Duration)

	// Mode and volume
	ToggleShuffle() bool
	CycleRepeat() RepeatMode
	SetVolume(v int)
	Volume() int

	// State queries
	Session() Session
	State() State
	CurrentTrack() *queue.Track
	Position() time.Duration
	Duration() time.Duration
	Shuffle() bool
	RepeatMode() RepeatMode
	QueueTracks() []queue.Track
	QueueIndex() int

	// Event subscription
	Subscribe() *Subscription

	// Lifecycle
	Close() error
}

// SnapshotStore persists playback state across restarts. *state.Store
// is the production implementation.
type SnapshotStore interface {
	SaveSession(snap state.Snapshot)
	SaveSessionNow(snap state.Snapshot) error
	LoadSession() (*state.Snapshot, error)
	ClearSession() error
	SaveVolume(volume int) error
	LoadVolume() (int, bool, error)
}

// Verify the production store satisfies the contract at compile time.
var _ SnapshotStore = (*state.Store)(nil)

// Session is a read-only snapshot of the live playback session, taken
// for rendering.
type Session struct {
	PlaylistID string
	Tracks     []queue.Track
	Index      int
	Current    *queue.Track
	Position   time.Duration
	Duration   time.Duration
	State      State
	Shuffle    bool
	Repeat     RepeatMode
	Volume     int
	LastError  string
}
