package queue

import "time"

// Track is the playback-facing projection of a catalog track.
// The orchestrator never mutates track content; it only references
// tracks by ID.
type Track struct {
	ID          string
	Title       string
	Artist      string
	Description string
	URL         string // resolved playable URL
	Duration    time.Duration
}

// IndexOf returns the position of the track with the given ID, or -1.
// Lookups always run against the canonical (unshuffled) order so that
// track identity is stable across reorderings.
func IndexOf(tracks []Track, id string) int {
	for i := range tracks {
		if tracks[i].ID == id {
			return i
		}
	}
	return -1
}
