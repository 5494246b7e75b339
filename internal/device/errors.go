package device

import "errors"

var (
	// ErrLoad wraps any failure to prepare a source for playback
	// (bad URL, unsupported format, network failure). Not retryable
	// automatically.
	ErrLoad = errors.New("load failed")

	// ErrInterrupted is returned when a load or a pending play was
	// superseded by a newer load. This is an expected artifact of
	// rapid navigation and callers are expected to swallow it.
	ErrInterrupted = errors.New("superseded by a newer load")

	// ErrNoSource is returned by Play when no source is loaded.
	ErrNoSource = errors.New("no source loaded")

	// ErrUnsupported is returned for source formats the device cannot
	// decode.
	ErrUnsupported = errors.New("unsupported format")
)
