package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/llehouerou/cadence/internal/catalog"
	"github.com/llehouerou/cadence/internal/device"
	"github.com/llehouerou/cadence/internal/queue"
	"github.com/llehouerou/cadence/internal/state"
)

// fakeStore is an in-memory SnapshotStore.
type fakeStore struct {
	mu         sync.Mutex
	snap       *state.Snapshot
	volume     int
	hasVolume  bool
	saveCalls  int
	clearCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{volume: 100}
}

func (f *fakeStore) SaveSession(snap state.Snapshot) {
	_ = f.SaveSessionNow(snap)
}

func (f *fakeStore) SaveSessionNow(snap state.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = &snap
	f.saveCalls++
	return nil
}

func (f *fakeStore) LoadSession() (*state.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return nil, nil
	}
	snap := *f.snap
	return &snap, nil
}

func (f *fakeStore) ClearSession() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = nil
	f.clearCalls++
	return nil
}

func (f *fakeStore) SaveVolume(volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = volume
	f.hasVolume = true
	return nil
}

func (f *fakeStore) LoadVolume() (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume, f.hasVolume, nil
}

func (f *fakeStore) Snapshot() *state.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return nil
	}
	snap := *f.snap
	return &snap
}

func (f *fakeStore) ClearCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clearCalls
}

func makeTracks(n int) []queue.Track {
	tracks := make([]queue.Track, n)
	for i := range tracks {
		id := fmt.Sprintf("t%d", i+1)
		tracks[i] = queue.Track{
			ID:       id,
			Title:    "Track " + id,
			Artist:   "Artist",
			URL:      "http://cdn.example/" + id + ".mp3",
			Duration: 3 * time.Minute,
		}
	}
	return tracks
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestService(t *testing.T, opts ...Option) (Service, *device.Mock) {
	t.Helper()
	dev := device.NewMock()
	svc := New(dev, opts...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, dev
}

func TestStartEmptyCollection(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Start(nil, 0); !errors.Is(err, ErrEmptyCollection) {
		t.Errorf("Start(nil) error = %v, want ErrEmptyCollection", err)
	}
}

func TestStartPlaysSelectedTrack(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(3)

	if err := svc.Start(tracks, 1); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if got := svc.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing", got)
	}
	if got := dev.Loaded(); got != tracks[1].URL {
		t.Errorf("loaded %q, want %q", got, tracks[1].URL)
	}
	if !dev.Playing() {
		t.Error("device should be playing")
	}
	cur := svc.CurrentTrack()
	if cur == nil || cur.ID != "t2" {
		t.Errorf("CurrentTrack() = %+v, want t2", cur)
	}
	if got := svc.QueueIndex(); got != 1 {
		t.Errorf("QueueIndex() = %d, want 1", got)
	}
}

func TestNextAdvances(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(3)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := svc.Next(); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	if got := svc.QueueIndex(); got != 1 {
		t.Errorf("QueueIndex() = %d, want 1", got)
	}
	if got := dev.Loaded(); got != tracks[1].URL {
		t.Errorf("loaded %q, want %q", got, tracks[1].URL)
	}
}

func TestNextAtEndPausesAndKeepsSession(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(2)
	if err := svc.Start(tracks, 1); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	loadsBefore := len(dev.LoadCalls())

	if err := svc.Next(); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	if got := svc.State(); got != StatePaused {
		t.Errorf("State() = %v, want Paused", got)
	}
	// Session context must survive: same track, same queue.
	if got := svc.QueueIndex(); got != 1 {
		t.Errorf("QueueIndex() = %d, want 1", got)
	}
	if cur := svc.CurrentTrack(); cur == nil || cur.ID != "t2" {
		t.Errorf("CurrentTrack() = %+v, want t2", cur)
	}
	if got := len(dev.LoadCalls()); got != loadsBefore {
		t.Errorf("end of queue should not load, got %d extra loads", got-loadsBefore)
	}
}

func TestNextAtEndWrapsWithRepeatPlaylist(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(2)
	if err := svc.Start(tracks, 1); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	svc.CycleRepeat() // off -> playlist

	if err := svc.Next(); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	if got := svc.QueueIndex(); got != 0 {
		t.Errorf("QueueIndex() = %d, want 0", got)
	}
	if got := dev.Loaded(); got != tracks[0].URL {
		t.Errorf("loaded %q, want %q", got, tracks[0].URL)
	}
	if got := svc.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing", got)
	}
}

func TestEndedEventRepeatTrackReplays(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(2)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	svc.CycleRepeat() // playlist
	svc.CycleRepeat() // track
	loadsBefore := len(dev.LoadCalls())

	dev.EmitEnded()

	waitFor(t, func() bool { return len(dev.LoadCalls()) == loadsBefore+1 }, "track was not replayed")
	if got := svc.QueueIndex(); got != 0 {
		t.Errorf("QueueIndex() = %d, want 0 (same track)", got)
	}
	if got := dev.Loaded(); got != tracks[0].URL {
		t.Errorf("loaded %q, want %q", got, tracks[0].URL)
	}
}

func TestEndedEventAdvances(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(3)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	dev.EmitEnded()

	waitFor(t, func() bool { return svc.QueueIndex() == 1 }, "did not advance on ended event")
	if got := dev.Loaded(); got != tracks[1].URL {
		t.Errorf("loaded %q, want %q", got, tracks[1].URL)
	}
}

func TestPreviousAtStartStays(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(3)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	loadsBefore := len(dev.LoadCalls())

	if err := svc.Previous(); err != nil {
		t.Fatalf("Previous() error: %v", err)
	}

	if got := svc.QueueIndex(); got != 0 {
		t.Errorf("QueueIndex() = %d, want 0", got)
	}
	if got := len(dev.LoadCalls()); got != loadsBefore {
		t.Error("Previous at first track should not reload")
	}
}

func TestPreviousAtStartWrapsWithRepeatPlaylist(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(3)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	svc.CycleRepeat() // playlist

	if err := svc.Previous(); err != nil {
		t.Fatalf("Previous() error: %v", err)
	}

	if got := svc.QueueIndex(); got != 2 {
		t.Errorf("QueueIndex() = %d, want 2", got)
	}
	if got := dev.Loaded(); got != tracks[2].URL {
		t.Errorf("loaded %q, want %q", got, tracks[2].URL)
	}
}

func TestRapidNavigationDebounced(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(5)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Slow the device down so the second intent arrives mid-flight.
	dev.SetLoadDelay(100 * time.Millisecond)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Next()
		}()
	}
	wg.Wait()

	if got := svc.QueueIndex(); got != 1 {
		t.Errorf("QueueIndex() = %d, want 1 (second intent dropped)", got)
	}
}

func TestPauseResumeToggle(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(2)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	svc.Pause()
	if got := svc.State(); got != StatePaused {
		t.Errorf("State() = %v, want Paused", got)
	}
	if dev.Playing() {
		t.Error("device should be paused")
	}

	if err := svc.Resume(); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	if got := svc.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing", got)
	}

	if err := svc.Toggle(); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if got := svc.State(); got != StatePaused {
		t.Errorf("State() after Toggle = %v, want Paused", got)
	}
	if err := svc.Toggle(); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if got := svc.State(); got != StatePlaying {
		t.Errorf("State() after second Toggle = %v, want Playing", got)
	}
}

func TestVolumeNeverReloads(t *testing.T) {
	store := newFakeStore()
	svc, dev := newTestService(t, WithStore(store))
	tracks := makeTracks(2)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	loadsBefore := len(dev.LoadCalls())
	volsBefore := len(dev.VolumeCalls())

	svc.SetVolume(30)
	svc.SetVolume(70)
	svc.SetVolume(150) // clamped

	if got := len(dev.LoadCalls()); got != loadsBefore {
		t.Errorf("volume change triggered %d reloads", got-loadsBefore)
	}
	if got := len(dev.VolumeCalls()); got != volsBefore+3 {
		t.Errorf("VolumeCalls = %d, want %d", got, volsBefore+3)
	}
	if got := svc.Volume(); got != 100 {
		t.Errorf("Volume() = %d, want 100 (clamped)", got)
	}
	if store.volume != 100 {
		t.Errorf("persisted volume = %d, want 100", store.volume)
	}
}

func TestVolumePreferenceApplied(t *testing.T) {
	store := newFakeStore()
	store.volume = 40
	store.hasVolume = true

	dev := device.NewMock()
	svc := New(dev, WithStore(store))
	t.Cleanup(func() { _ = svc.Close() })

	if got := svc.Volume(); got != 40 {
		t.Errorf("Volume() = %d, want 40", got)
	}
	calls := dev.VolumeCalls()
	if len(calls) == 0 || calls[0] != 0.4 {
		t.Errorf("VolumeCalls = %v, want initial 0.4", calls)
	}
}

func TestFailedTrackLeavesControlsResponsive(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(3)
	dev.FailURL(tracks[0].URL, errors.New("decode failed"))

	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() should not return playback failures, got: %v", err)
	}

	if got := svc.State(); got != StatePaused {
		t.Errorf("State() = %v, want Paused after failure", got)
	}
	if svc.Session().LastError == "" {
		t.Error("Session().LastError should be set after failure")
	}

	// Controls stay responsive: skip to a playable track.
	if err := svc.Next(); err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if got := svc.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing after Next", got)
	}
	if got := dev.Loaded(); got != tracks[1].URL {
		t.Errorf("loaded %q, want %q", got, tracks[1].URL)
	}
	if svc.Session().LastError != "" {
		t.Error("LastError should clear once playback succeeds")
	}
}

func TestAutoAdvanceSkipsFailedTracks(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(4)
	dev.FailURL(tracks[1].URL, errors.New("gone"))
	dev.FailURL(tracks[2].URL, errors.New("gone"))

	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	dev.EmitEnded()

	waitFor(t, func() bool { return svc.QueueIndex() == 3 }, "did not skip failed tracks")
	if got := svc.State(); got != StatePlaying {
		t.Errorf("State() = %v, want Playing", got)
	}
	if got := dev.Loaded(); got != tracks[3].URL {
		t.Errorf("loaded %q, want %q", got, tracks[3].URL)
	}
}

func TestAutoAdvanceSkipLimitHalts(t *testing.T) {
	svc, dev := newTestService(t, WithAutoSkipLimit(2))
	tracks := makeTracks(6)
	for _, tr := range tracks[1:] {
		dev.FailURL(tr.URL, errors.New("gone"))
	}

	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	loadsBefore := len(dev.LoadCalls())

	dev.EmitEnded()

	waitFor(t, func() bool { return svc.State() == StatePaused }, "did not halt after skip limit")
	// t2, t3, t4 attempted, then halt.
	if got := len(dev.LoadCalls()) - loadsBefore; got != 3 {
		t.Errorf("attempted %d loads after ended, want 3", got)
	}
}

func TestUserNextDoesNotAutoSkip(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(3)
	dev.FailURL(tracks[1].URL, errors.New("gone"))

	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := svc.Next(); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	// Halts on the failed track instead of silently jumping to t3.
	if got := svc.QueueIndex(); got != 1 {
		t.Errorf("QueueIndex() = %d, want 1", got)
	}
	if got := svc.State(); got != StatePaused {
		t.Errorf("State() = %v, want Paused", got)
	}
}

func TestDeviceFailureEventPauses(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(2)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	dev.EmitFailed(errors.New("stream corrupt"))

	waitFor(t, func() bool { return svc.State() == StatePaused }, "device failure did not pause")
	if svc.Session().LastError == "" {
		t.Error("LastError should be set after device failure")
	}
}

func TestPlayTrackByID(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(4)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := svc.PlayTrack("t3"); err != nil {
		t.Fatalf("PlayTrack() error: %v", err)
	}
	if got := dev.Loaded(); got != tracks[2].URL {
		t.Errorf("loaded %q, want %q", got, tracks[2].URL)
	}

	if err := svc.PlayTrack("nope"); !errors.Is(err, ErrUnknownTrack) {
		t.Errorf("PlayTrack(unknown) error = %v, want ErrUnknownTrack", err)
	}
}

func TestStartPlaylistResolvesViaCatalog(t *testing.T) {
	cat := catalog.NewMock()
	tracks := makeTracks(3)
	cat.AddPlaylist("pl1", tracks)
	// Stored URL is stale; the catalog answers with a fresh one.
	cat.AddTrack("t1", "http://cdn.example/fresh/t1.mp3")

	svc, dev := newTestService(t, WithCatalog(cat))

	if err := svc.StartPlaylist(context.Background(), "pl1", 0); err != nil {
		t.Fatalf("StartPlaylist() error: %v", err)
	}
	if got := dev.Loaded(); got != "http://cdn.example/fresh/t1.mp3" {
		t.Errorf("loaded %q, want freshly resolved url", got)
	}

	if err := svc.StartPlaylist(context.Background(), "missing", 0); err == nil {
		t.Error("StartPlaylist(missing) should fail")
	}
}

func TestStartPlaylistWithoutCatalog(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.StartPlaylist(context.Background(), "pl1", 0); !errors.Is(err, ErrNoCatalog) {
		t.Errorf("error = %v, want ErrNoCatalog", err)
	}
}

func TestRemovedTrackFailsPlayback(t *testing.T) {
	cat := catalog.NewMock()
	tracks := makeTracks(2)
	cat.AddPlaylist("pl1", tracks)
	svc, _ := newTestService(t, WithCatalog(cat))

	if err := svc.StartPlaylist(context.Background(), "pl1", 0); err != nil {
		t.Fatalf("StartPlaylist() error: %v", err)
	}

	cat.RemoveTrack("t2")
	if err := svc.Next(); err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if got := svc.State(); got != StatePaused {
		t.Errorf("State() = %v, want Paused for unresolvable track", got)
	}
	if svc.Session().LastError == "" {
		t.Error("LastError should be set")
	}
}

func TestToggleShuffleKeepsCurrentTrack(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(10)
	if err := svc.Start(tracks, 4); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	loadsBefore := len(dev.LoadCalls())

	if on := svc.ToggleShuffle(); !on {
		t.Error("ToggleShuffle() = false, want true")
	}
	if got := len(dev.LoadCalls()); got != loadsBefore {
		t.Error("shuffle toggle must not touch the device")
	}
	if cur := svc.CurrentTrack(); cur == nil || cur.ID != "t5" {
		t.Errorf("CurrentTrack() = %+v, want t5", cur)
	}
	if got := svc.QueueIndex(); got != 0 {
		t.Errorf("QueueIndex() = %d, want 0 (current pinned first)", got)
	}

	if on := svc.ToggleShuffle(); on {
		t.Error("ToggleShuffle() = true, want false")
	}
	// Canonical order and natural position restored.
	if got := svc.QueueIndex(); got != 4 {
		t.Errorf("QueueIndex() = %d, want 4", got)
	}
	q := svc.QueueTracks()
	for i, tr := range q {
		if tr.ID != tracks[i].ID {
			t.Fatalf("queue[%d] = %s, want %s", i, tr.ID, tracks[i].ID)
		}
	}
}

func TestShuffleAppliedOnStart(t *testing.T) {
	svc, _ := newTestService(t)
	svc.ToggleShuffle()

	tracks := makeTracks(10)
	if err := svc.Start(tracks, 6); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if got := svc.QueueIndex(); got != 0 {
		t.Errorf("QueueIndex() = %d, want 0", got)
	}
	if cur := svc.CurrentTrack(); cur == nil || cur.ID != "t7" {
		t.Errorf("CurrentTrack() = %+v, want t7 pinned first", cur)
	}
	if got := len(svc.QueueTracks()); got != 10 {
		t.Errorf("queue length = %d, want 10", got)
	}
}

func TestCycleRepeat(t *testing.T) {
	svc, _ := newTestService(t)

	if got := svc.RepeatMode(); got != RepeatOff {
		t.Errorf("initial RepeatMode() = %v, want Off", got)
	}
	if got := svc.CycleRepeat(); got != RepeatPlaylist {
		t.Errorf("CycleRepeat() = %v, want Playlist", got)
	}
	if got := svc.CycleRepeat(); got != RepeatTrack {
		t.Errorf("CycleRepeat() = %v, want Track", got)
	}
	if got := svc.CycleRepeat(); got != RepeatOff {
		t.Errorf("CycleRepeat() = %v, want Off", got)
	}
}

func TestSeek(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(1)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	svc.SeekTo(30 * time.Second)
	if got := dev.Position(); got != 30*time.Second {
		t.Errorf("Position() = %v, want 30s", got)
	}

	svc.Seek(-45 * time.Second) // clamps at 0
	seeks := dev.SeekCalls()
	if got := seeks[len(seeks)-1]; got != 0 {
		t.Errorf("backward seek past start = %v, want 0", got)
	}
}

func TestStopClearsSession(t *testing.T) {
	store := newFakeStore()
	svc, dev := newTestService(t, WithStore(store))
	tracks := makeTracks(3)
	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if got := svc.State(); got != StateIdle {
		t.Errorf("State() = %v, want Idle", got)
	}
	if cur := svc.CurrentTrack(); cur != nil {
		t.Errorf("CurrentTrack() = %+v, want nil", cur)
	}
	if dev.Playing() {
		t.Error("device should not be playing")
	}
	if store.ClearCalls() == 0 {
		t.Error("Stop should clear the persisted session")
	}
	if store.Snapshot() != nil {
		t.Error("persisted session should be gone")
	}
}

func TestSessionPersisted(t *testing.T) {
	store := newFakeStore()
	svc, dev := newTestService(t, WithStore(store))
	tracks := makeTracks(3)
	dev.SetDuration(3 * time.Minute)

	if err := svc.Start(tracks, 1); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	snap := store.Snapshot()
	if snap == nil {
		t.Fatal("no snapshot saved")
	}
	if snap.TrackID != "t2" || snap.TrackIndex != 1 {
		t.Errorf("snapshot track = %s/%d, want t2/1", snap.TrackID, snap.TrackIndex)
	}
	if !snap.Playing {
		t.Error("snapshot should record playing")
	}
	if len(snap.Tracks) != 3 {
		t.Errorf("snapshot tracks = %d, want 3", len(snap.Tracks))
	}
}

func TestRestoreLeavesPaused(t *testing.T) {
	tracks := makeTracks(3)
	rows := make([]state.TrackRow, len(tracks))
	for i, tr := range tracks {
		rows[i] = state.TrackRow{TrackID: tr.ID, Title: tr.Title, Artist: tr.Artist, URL: tr.URL, Duration: tr.Duration}
	}
	store := newFakeStore()
	store.snap = &state.Snapshot{
		TrackID:    "t2",
		TrackIndex: 1,
		Position:   42 * time.Second,
		Playing:    true, // was playing when saved
		Tracks:     rows,
		SavedAt:    time.Now(),
	}

	dev := device.NewMock()
	svc := New(dev, WithStore(store))
	t.Cleanup(func() { _ = svc.Close() })

	if got := svc.State(); got != StatePaused {
		t.Errorf("State() = %v, want Paused after restore", got)
	}
	if got := dev.Loaded(); got != tracks[1].URL {
		t.Errorf("loaded %q, want %q", got, tracks[1].URL)
	}
	if got := dev.Position(); got != 42*time.Second {
		t.Errorf("Position() = %v, want 42s", got)
	}
	if cur := svc.CurrentTrack(); cur == nil || cur.ID != "t2" {
		t.Errorf("CurrentTrack() = %+v, want t2", cur)
	}
	if dev.Playing() {
		t.Error("device must not be playing after restore")
	}
}

func TestRestoreDiscardsCorruptSnapshot(t *testing.T) {
	store := newFakeStore()
	store.snap = &state.Snapshot{
		TrackID:    "t9", // not in Tracks
		TrackIndex: 0,
		Tracks:     []state.TrackRow{{TrackID: "t1", URL: "http://cdn.example/t1.mp3"}},
		SavedAt:    time.Now(),
	}

	dev := device.NewMock()
	svc := New(dev, WithStore(store))
	t.Cleanup(func() { _ = svc.Close() })

	if got := svc.State(); got != StateIdle {
		t.Errorf("State() = %v, want Idle", got)
	}
	if store.ClearCalls() == 0 {
		t.Error("corrupt snapshot should be cleared")
	}
}

func TestRestoreReResolvesURL(t *testing.T) {
	cat := catalog.NewMock()
	cat.AddTrack("t1", "http://cdn.example/fresh/t1.mp3")

	store := newFakeStore()
	store.snap = &state.Snapshot{
		TrackID:    "t1",
		TrackIndex: 0,
		Tracks:     []state.TrackRow{{TrackID: "t1", Title: "Track t1", URL: "http://cdn.example/stale/t1.mp3"}},
		SavedAt:    time.Now(),
	}

	dev := device.NewMock()
	svc := New(dev, WithStore(store), WithCatalog(cat))
	t.Cleanup(func() { _ = svc.Close() })

	if got := dev.Loaded(); got != "http://cdn.example/fresh/t1.mp3" {
		t.Errorf("loaded %q, want freshly resolved url", got)
	}
}

func TestSubscriptionReceivesEvents(t *testing.T) {
	svc, _ := newTestService(t)
	sub := svc.Subscribe()
	tracks := makeTracks(2)

	if err := svc.Start(tracks, 0); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case e := <-sub.StateChanged:
		if e.Current != StatePlaying {
			t.Errorf("StateChange.Current = %v, want Playing", e.Current)
		}
	case <-time.After(time.Second):
		t.Fatal("no StateChange received")
	}

	select {
	case e := <-sub.TrackChanged:
		if e.Track.ID != "t1" || e.Index != 0 {
			t.Errorf("TrackChange = %s/%d, want t1/0", e.Track.ID, e.Index)
		}
	case <-time.After(time.Second):
		t.Fatal("no TrackChange received")
	}

	svc.SetVolume(55)
	select {
	case e := <-sub.VolumeChanged:
		if e.Volume != 55 {
			t.Errorf("VolumeChange = %d, want 55", e.Volume)
		}
	case <-time.After(time.Second):
		t.Fatal("no VolumeChange received")
	}
}

func TestCloseSignalsSubscribers(t *testing.T) {
	dev := device.NewMock()
	svc := New(dev)
	sub := svc.Subscribe()

	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	// Close is idempotent.
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}

func TestSessionSnapshot(t *testing.T) {
	svc, dev := newTestService(t)
	tracks := makeTracks(3)
	dev.SetDuration(200 * time.Second)
	if err := svc.Start(tracks, 1); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	dev.SetPosition(12 * time.Second)

	s := svc.Session()
	if s.State != StatePlaying {
		t.Errorf("Session.State = %v, want Playing", s.State)
	}
	if s.Current == nil || s.Current.ID != "t2" {
		t.Errorf("Session.Current = %+v, want t2", s.Current)
	}
	if s.Index != 1 {
		t.Errorf("Session.Index = %d, want 1", s.Index)
	}
	if s.Position != 12*time.Second {
		t.Errorf("Session.Position = %v, want 12s", s.Position)
	}
	if s.Duration != 200*time.Second {
		t.Errorf("Session.Duration = %v, want 200s", s.Duration)
	}
	if len(s.Tracks) != 3 {
		t.Errorf("Session.Tracks = %d, want 3", len(s.Tracks))
	}
}
