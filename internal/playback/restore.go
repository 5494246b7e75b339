package playback

import (
	"context"
	"errors"

	zlog "github.com/rs/zerolog/log"

	"github.com/llehouerou/cadence/internal/catalog"
	"github.com/llehouerou/cadence/internal/queue"
	"github.com/llehouerou/cadence/internal/state"
)

// restore rebuilds the playback session from a persisted snapshot.
// The session comes back paused at the saved position regardless of
// whether it was playing when saved; the user explicitly resumes.
// Any failure discards the snapshot and starts idle.
func (o *orchestrator) restore() {
	if o.store == nil {
		return
	}
	snap, err := o.store.LoadSession()
	if err != nil {
		zlog.Debug().Err(err).Msg("load saved session failed")
		return
	}
	if snap == nil {
		return
	}

	if !o.applySnapshot(snap) {
		zlog.Debug().Msg("discarding unusable saved session")
		if err := o.store.ClearSession(); err != nil {
			zlog.Debug().Err(err).Msg("clear session failed")
		}
	}
}

func (o *orchestrator) applySnapshot(snap *state.Snapshot) bool {
	if len(snap.Tracks) == 0 || snap.TrackIndex < 0 || snap.TrackIndex >= len(snap.Tracks) {
		return false
	}
	if snap.Tracks[snap.TrackIndex].TrackID != snap.TrackID {
		return false
	}

	tracks := make([]queue.Track, len(snap.Tracks))
	for i, r := range snap.Tracks {
		tracks[i] = queue.Track{
			ID:       r.TrackID,
			Title:    r.Title,
			Artist:   r.Artist,
			URL:      r.URL,
			Duration: r.Duration,
		}
	}

	cur := tracks[snap.TrackIndex]
	url := cur.URL
	if o.catalog != nil {
		// Saved URLs may have expired across restarts; prefer a fresh
		// one when the data service answers.
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		resolved, err := o.catalog.ResolvePlayableURL(ctx, cur.ID)
		cancel()
		switch {
		case err == nil:
			url = resolved
		case errors.Is(err, catalog.ErrNotFound):
			return false
		default:
			zlog.Debug().Err(err).Str("track", cur.ID).Msg("url resolution failed, using saved url")
		}
	}
	if url == "" {
		return false
	}

	if err := o.dev.Load(url); err != nil {
		zlog.Debug().Err(err).Str("track", cur.ID).Msg("loading saved track failed")
		return false
	}
	pos := snap.Position
	if pos < 0 {
		pos = 0
	}
	o.dev.Seek(pos)

	o.mu.Lock()
	o.playlistID = snap.PlaylistID
	// The snapshot holds the materialized queue; with shuffle active
	// the canonical order is not recoverable, so the saved order
	// serves as both.
	o.original = tracks
	o.tracks = tracks
	o.index = snap.TrackIndex
	o.shuffle = snap.Shuffle
	o.repeat = RepeatMode(snap.RepeatMode)
	if o.repeat < RepeatOff || o.repeat > RepeatTrack {
		o.repeat = RepeatOff
	}
	o.transport = StatePaused
	o.mu.Unlock()

	zlog.Info().
		Str("track", cur.ID).
		Int("index", snap.TrackIndex).
		Dur("position", pos).
		Time("saved_at", snap.SavedAt).
		Msg("restored saved session")
	return true
}
