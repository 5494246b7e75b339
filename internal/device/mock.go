package device

import (
	"sync"
	"time"
)

// Mock is a test double for Device. It records calls and lets tests
// script failures, load latency, and device events.
type Mock struct {
	mu sync.Mutex

	loadCalls   []string
	playCalls   int
	pauseCalls  int
	seekCalls   []time.Duration
	volumeCalls []float64

	loadErr   error
	playErr   error
	loadDelay time.Duration
	failURLs  map[string]error

	position time.Duration
	duration time.Duration
	playing  bool
	loaded   string

	events chan Event
	closed bool
}

// NewMock creates a mock device.
func NewMock() *Mock {
	return &Mock{
		events:   make(chan Event, eventBufferSize),
		failURLs: make(map[string]error),
	}
}

func (m *Mock) Load(url string) error {
	m.mu.Lock()
	delay := m.loadDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls = append(m.loadCalls, url)
	if err, ok := m.failURLs[url]; ok {
		return err
	}
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = url
	m.position = 0
	m.playing = false
	return nil
}

func (m *Mock) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playCalls++
	if m.playErr != nil {
		return m.playErr
	}
	if m.loaded == "" {
		return ErrNoSource
	}
	m.playing = true
	return nil
}

func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	m.playing = false
}

func (m *Mock) Seek(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls = append(m.seekCalls, pos)
	if m.loaded != "" {
		m.position = pos
	}
}

func (m *Mock) SetVolume(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumeCalls = append(m.volumeCalls, level)
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Test helpers

// SetLoadError makes every Load fail with err.
func (m *Mock) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// SetPlayError makes every Play fail with err.
func (m *Mock) SetPlayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

// FailURL makes loading a specific URL fail with err.
func (m *Mock) FailURL(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failURLs[url] = err
}

// SetLoadDelay makes Load block for d before completing, simulating a
// slow source.
func (m *Mock) SetLoadDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadDelay = d
}

// SetPosition sets the reported position.
func (m *Mock) SetPosition(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = pos
}

// SetDuration sets the reported duration.
func (m *Mock) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

// Loaded returns the currently loaded URL.
func (m *Mock) Loaded() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Playing reports whether the mock considers itself playing.
func (m *Mock) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// LoadCalls returns the URLs passed to Load, in order.
func (m *Mock) LoadCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.loadCalls))
	copy(out, m.loadCalls)
	return out
}

// PlayCalls returns the number of Play invocations.
func (m *Mock) PlayCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playCalls
}

// SeekCalls returns recorded seek positions.
func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.seekCalls))
	copy(out, m.seekCalls)
	return out
}

// VolumeCalls returns recorded volume levels.
func (m *Mock) VolumeCalls() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.volumeCalls))
	copy(out, m.volumeCalls)
	return out
}

// EmitEnded simulates natural completion of the loaded track.
func (m *Mock) EmitEnded() {
	select {
	case m.events <- Event{Type: Ended}:
	default:
	}
}

// EmitFailed simulates an unrecoverable playback error.
func (m *Mock) EmitFailed(err error) {
	select {
	case m.events <- Event{Type: Failed, Err: err}:
	default:
	}
}
