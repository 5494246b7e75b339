// Package catalog provides access to the track/playlist data service.
package catalog

import (
	"context"
	"errors"

	"github.com/llehouerou/cadence/internal/queue"
)

// ErrNotFound is returned when a track or playlist id does not resolve.
var ErrNotFound = errors.New("not found")

// Service defines the data service contract for dependency injection
// and testing.
type Service interface {
	// ResolvePlayableURL returns a fresh playable URL for a track.
	// Signed URLs may expire, so callers re-resolve before each load
	// rather than caching across sessions.
	ResolvePlayableURL(ctx context.Context, trackID string) (string, error)
	// PlaylistTracks returns the ordered tracks of a playlist.
	PlaylistTracks(ctx context.Context, playlistID string) ([]queue.Track, error)
}

// Verify implementations satisfy Service at compile time.
var (
	_ Service = (*Client)(nil)
	_ Service = (*Mock)(nil)
)
