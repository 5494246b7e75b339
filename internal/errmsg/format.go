// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Playback operations
	OpPlaybackStart    Op = "start playback"
	OpPlaybackNext     Op = "skip to next track"
	OpPlaybackPrevious Op = "skip to previous track"
	OpPlaybackResume   Op = "resume playback"
	OpPlaybackSeek     Op = "seek"

	// Volume
	OpVolumeSave Op = "save volume preference"

	// Session persistence
	OpSessionSave    Op = "save playback session"
	OpSessionRestore Op = "restore playback session"
	OpSessionClear   Op = "clear playback session"

	// Catalog operations
	OpPlaylistLoad Op = "load playlist"
	OpTrackResolve Op = "resolve track url"

	// Initialization
	OpInitialize Op = "initialize application"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
