// Package queue builds ordered play queues from track collections.
// All functions are pure: queues are always rebuilt wholesale, never
// mutated in place.
package queue

import "math/rand/v2"

// Build constructs a play queue from tracks starting at startIndex.
//
// Without shuffle the input order is kept and the returned position is
// startIndex (clamped to a valid index). With shuffle the selected
// track is pinned to position 0 and only the remaining tracks are
// permuted, so an explicit selection always plays first.
//
// An empty input yields an empty queue and position -1.
func Build(tracks []Track, startIndex int, shuffle bool) ([]Track, int) {
	if len(tracks) == 0 {
		return nil, -1
	}

	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(tracks) {
		startIndex = len(tracks) - 1
	}

	if !shuffle {
		out := make([]Track, len(tracks))
		copy(out, tracks)
		return out, startIndex
	}

	rest := make([]Track, 0, len(tracks)-1)
	rest = append(rest, tracks[:startIndex]...)
	rest = append(rest, tracks[startIndex+1:]...)
	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	out := make([]Track, 0, len(tracks))
	out = append(out, tracks[startIndex])
	out = append(out, rest...)
	return out, 0
}

// Rebuild rebuilds the queue when shuffle is toggled mid-playback,
// keeping the track identified by currentID playing uninterrupted.
//
// original is the canonical (unshuffled) order. Enabling shuffle pins
// the current track at position 0 and permutes the rest; disabling it
// restores the canonical order and returns the current track's natural
// index there. Unknown currentID falls back to position 0.
func Rebuild(original []Track, currentID string, shuffle bool) ([]Track, int) {
	if len(original) == 0 {
		return nil, -1
	}

	idx := IndexOf(original, currentID)
	if idx < 0 {
		idx = 0
	}

	if !shuffle {
		out := make([]Track, len(original))
		copy(out, original)
		return out, idx
	}

	return Build(original, idx, true)
}
