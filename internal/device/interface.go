// Package device wraps a single audio output behind a small transport
// interface. At most one source is loaded at a time; a new Load always
// supersedes the previous one cleanly.
package device

import "time"

// EventType classifies device events.
type EventType int

const (
	// Ended fires exactly once per natural completion of a track.
	Ended EventType = iota
	// Failed fires on an unrecoverable load or playback error.
	Failed
)

// Event is emitted on the device's event channel.
type Event struct {
	Type EventType
	Err  error
}

// Device defines the audio output contract for dependency injection
// and testing.
type Device interface {
	// Load prepares a new source, superseding any previous one. It
	// blocks until the source is ready to play or fails with an error
	// wrapping ErrLoad. Volume and pause state carry over.
	Load(url string) error
	// Play starts or resumes playback of the loaded source. If a load
	// is in flight it waits briefly for it; a play superseded by a
	// newer load fails with ErrInterrupted.
	Play() error
	// Pause is idempotent and always succeeds.
	Pause()
	// Seek sets the playback position. No-op if no source is loaded.
	Seek(pos time.Duration)
	// SetVolume sets the output gain (0.0-1.0). It never reloads or
	// recreates the source.
	SetVolume(level float64)
	Position() time.Duration
	Duration() time.Duration
	Events() <-chan Event
	Close() error
}

// Verify implementations satisfy Device at compile time.
var (
	_ Device = (*Output)(nil)
	_ Device = (*Mock)(nil)
)
