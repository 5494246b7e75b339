package catalog

import (
	"context"
	"sync"

	"github.com/llehouerou/cadence/internal/queue"
)

// Mock is a test double for Service backed by in-memory maps.
type Mock struct {
	mu        sync.Mutex
	urls      map[string]string
	playlists map[string][]queue.Track

	resolveCalls  []string
	playlistCalls []string
}

// NewMock creates an empty mock catalog.
func NewMock() *Mock {
	return &Mock{
		urls:      make(map[string]string),
		playlists: make(map[string][]queue.Track),
	}
}

// AddTrack registers a resolvable track URL.
func (m *Mock) AddTrack(trackID, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls[trackID] = url
}

// AddPlaylist registers a playlist and its tracks' URLs.
func (m *Mock) AddPlaylist(playlistID string, tracks []queue.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlists[playlistID] = tracks
	for _, t := range tracks {
		m.urls[t.ID] = t.URL
	}
}

// RemoveTrack makes a track unresolvable, simulating deletion.
func (m *Mock) RemoveTrack(trackID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.urls, trackID)
}

func (m *Mock) ResolvePlayableURL(_ context.Context, trackID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveCalls = append(m.resolveCalls, trackID)
	url, ok := m.urls[trackID]
	if !ok {
		return "", ErrNotFound
	}
	return url, nil
}

func (m *Mock) PlaylistTracks(_ context.Context, playlistID string) ([]queue.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlistCalls = append(m.playlistCalls, playlistID)
	tracks, ok := m.playlists[playlistID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]queue.Track, len(tracks))
	copy(out, tracks)
	return out, nil
}

// ResolveCalls returns the track ids passed to ResolvePlayableURL.
func (m *Mock) ResolveCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.resolveCalls))
	copy(out, m.resolveCalls)
	return out
}
