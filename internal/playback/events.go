package playback

import (
	"time"

	"github.com/llehouerou/cadence/internal/queue"
)

// StateChange is emitted when the transport state changes.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange is emitted when playback starts on a different track.
//
// It fires only when a track actually begins playing, so rapid
// navigation that gets debounced produces at most one notification.
type TrackChange struct {
	Track queue.Track
	Index int
}

// QueueChange is emitted when the queue is replaced.
type QueueChange struct {
	Tracks []queue.Track
	Index  int
}

// ModeChange is emitted when repeat or shuffle mode changes.
type ModeChange struct {
	Repeat  RepeatMode
	Shuffle bool
}

// PositionChange is emitted when a seek occurs.
type PositionChange struct {
	Position time.Duration
}

// VolumeChange is emitted when the volume changes.
type VolumeChange struct {
	Volume int
}

// ErrorEvent is emitted when playback of a track fails. The message is
// already formatted for display.
type ErrorEvent struct {
	Operation string
	TrackID   string
	Message   string
	Err       error
}
