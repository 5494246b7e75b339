package playback

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/llehouerou/cadence/internal/catalog"
	"github.com/llehouerou/cadence/internal/device"
	"github.com/llehouerou/cadence/internal/errmsg"
	"github.com/llehouerou/cadence/internal/notify"
	"github.com/llehouerou/cadence/internal/queue"
	"github.com/llehouerou/cadence/internal/state"
)

const (
	// defaultNavDebounce is the window during which a second
	// navigation intent is dropped while one is in flight. It doubles
	// as the safety timeout that clears a stuck in-flight flag.
	defaultNavDebounce = 500 * time.Millisecond

	// defaultAutoSkipLimit bounds consecutive unplayable tracks
	// skipped during automatic advancement before halting.
	defaultAutoSkipLimit = 3

	// defaultSaveInterval bounds position drift on ungraceful
	// termination while playing.
	defaultSaveInterval = 2 * time.Second

	resolveTimeout = 10 * time.Second
)

// Verify orchestrator implements Service at compile time.
var _ Service = (*orchestrator)(nil)

type orchestrator struct {
	mu sync.RWMutex

	dev      device.Device
	catalog  catalog.Service
	store    SnapshotStore
	notifier notify.Notifier

	navDebounce   time.Duration
	autoSkipLimit int
	saveInterval  time.Duration

	// session state; every mode flag is read through these fields at
	// call time, never captured at registration time
	playlistID string
	original   []queue.Track // canonical order
	tracks     []queue.Track // materialized queue
	index      int
	shuffle    bool
	repeat     RepeatMode
	transport  State
	volume     int
	lastErr    string

	// navigation-in-flight flag with safety timer
	navBusy  bool
	navTimer *time.Timer

	subs   []*Subscription
	subsMu sync.RWMutex

	done   chan struct{}
	closed bool
}

// Option configures the orchestrator.
type Option func(*orchestrator)

// WithStore wires a persistence store for snapshot/restore.
func WithStore(s SnapshotStore) Option {
	return func(o *orchestrator) { o.store = s }
}

// WithCatalog wires the track/playlist data service.
func WithCatalog(c catalog.Service) Option {
	return func(o *orchestrator) { o.catalog = c }
}

// WithNotifier wires a desktop notifier for playback failures.
func WithNotifier(n notify.Notifier) Option {
	return func(o *orchestrator) { o.notifier = n }
}

// WithDefaultVolume sets the volume used until a preference has been
// saved. A saved preference always wins.
func WithDefaultVolume(v int) Option {
	return func(o *orchestrator) {
		if v >= 0 && v <= 100 {
			o.volume = v
		}
	}
}

// WithNavDebounce overrides the navigation debounce window.
func WithNavDebounce(d time.Duration) Option {
	return func(o *orchestrator) { o.navDebounce = d }
}

// WithAutoSkipLimit overrides how many consecutive unplayable tracks
// an automatic advance skips before halting.
func WithAutoSkipLimit(n int) Option {
	return func(o *orchestrator) { o.autoSkipLimit = n }
}

// WithSaveInterval overrides the periodic position save interval.
func WithSaveInterval(d time.Duration) Option {
	return func(o *orchestrator) { o.saveInterval = d }
}

// New creates the playback orchestrator. It owns the device
// exclusively: no other component may call device methods once the
// orchestrator is constructed.
//
// If a store is wired, the volume preference is applied and a saved
// non-stale session is restored paused; restore failures degrade to
// starting idle.
func New(dev device.Device, opts ...Option) Service {
	o := &orchestrator{
		dev:           dev,
		index:         -1,
		volume:        100,
		transport:     StateIdle,
		navDebounce:   defaultNavDebounce,
		autoSkipLimit: defaultAutoSkipLimit,
		saveInterval:  defaultSaveInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.store != nil {
		if v, ok, err := o.store.LoadVolume(); err != nil {
			zlog.Debug().Err(err).Msg("volume preference unavailable")
		} else if ok {
			o.volume = v
		}
	}
	o.dev.SetVolume(float64(o.volume) / 100)

	o.restore()

	go o.run()
	return o
}

// run consumes device events and drives the periodic position save.
func (o *orchestrator) run() {
	ticker := time.NewTicker(o.saveInterval)
	defer ticker.Stop()

	events := o.dev.Events()
	for {
		select {
		case <-o.done:
			return
		case ev := <-events:
			switch ev.Type {
			case device.Ended:
				o.handleTrackEnded()
			case device.Failed:
				o.handleDeviceFailure(ev.Err)
			}
		case <-ticker.C:
			if o.State() == StatePlaying {
				o.persistNow()
			}
		}
	}
}

// --- Transport intents ---

func (o *orchestrator) Start(tracks []queue.Track, startIndex int) error {
	if len(tracks) == 0 {
		return ErrEmptyCollection
	}
	if !o.beginNav() {
		return nil
	}
	defer o.endNav()

	o.replaceQueue("", tracks, startIndex)
	o.playCurrent(false)
	return nil
}

func (o *orchestrator) StartPlaylist(ctx context.Context, playlistID string, startIndex int) error {
	if o.catalog == nil {
		return ErrNoCatalog
	}
	tracks, err := o.catalog.PlaylistTracks(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("load playlist %s: %w", playlistID, err)
	}
	if len(tracks) == 0 {
		return ErrEmptyCollection
	}
	if !o.beginNav() {
		return nil
	}
	defer o.endNav()

	o.replaceQueue(playlistID, tracks, startIndex)
	o.playCurrent(false)
	return nil
}

// PlayTrack resolves the track's position in the canonical order and
// restarts playback from there. Callers pass a stable track id, not a
// display position, so shuffled or reordered views cannot select the
// wrong track.
func (o *orchestrator) PlayTrack(trackID string) error {
	o.mu.RLock()
	idx := queue.IndexOf(o.original, trackID)
	playlistID := o.playlistID
	original := slices.Clone(o.original)
	o.mu.RUnlock()

	if idx < 0 {
		return ErrUnknownTrack
	}
	if !o.beginNav() {
		return nil
	}
	defer o.endNav()

	o.replaceQueue(playlistID, original, idx)
	o.playCurrent(false)
	return nil
}

// replaceQueue discards any prior queue wholesale and materializes a
// new one using the current shuffle flag.
func (o *orchestrator) replaceQueue(playlistID string, tracks []queue.Track, startIndex int) {
	o.mu.Lock()
	o.playlistID = playlistID
	o.original = slices.Clone(tracks)
	o.tracks, o.index = queue.Build(o.original, startIndex, o.shuffle)
	q := slices.Clone(o.tracks)
	idx := o.index
	o.mu.Unlock()

	o.emitQueue(QueueChange{Tracks: q, Index: idx})
}

func (o *orchestrator) Next() error {
	o.advance(false)
	return nil
}

func (o *orchestrator) Previous() error {
	o.mu.RLock()
	n := len(o.tracks)
	o.mu.RUnlock()
	if n == 0 {
		return nil
	}
	if !o.beginNav() {
		zlog.Debug().Msg("navigation in flight, dropping previous")
		return nil
	}
	defer o.endNav()

	o.mu.Lock()
	switch {
	case o.index > 0:
		o.index--
	case o.repeat == RepeatPlaylist:
		o.index = n - 1
	default:
		// At the first track with no wraparound: stay.
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	o.playCurrent(false)
	return nil
}

// advance applies the next-track transition table. auto marks
// advancement triggered by the device's ended event rather than a
// user intent.
func (o *orchestrator) advance(auto bool) {
	o.mu.RLock()
	n := len(o.tracks)
	o.mu.RUnlock()
	if n == 0 {
		return
	}
	if !o.beginNav() {
		zlog.Debug().Msg("navigation in flight, dropping next")
		return
	}
	defer o.endNav()

	o.mu.Lock()
	switch {
	case o.repeat == RepeatTrack:
		// Replay the same index from the start.
	case o.index < n-1:
		o.index++
	case o.repeat == RepeatPlaylist:
		o.index = 0
	default:
		// End of queue with repeat off: pause, keep the session so
		// the presentation layer retains full context.
		prev := o.transport
		o.transport = StatePaused
		o.mu.Unlock()
		o.dev.Pause()
		if prev != StatePaused {
			o.emitState(StateChange{Previous: prev, Current: StatePaused})
		}
		o.persist()
		return
	}
	o.mu.Unlock()

	o.playCurrent(auto)
}

// playCurrent loads and plays the track at the current index. The
// caller must hold the navigation slot. With auto set, unplayable
// tracks are skipped up to the auto-skip limit before halting paused;
// user-initiated navigation halts on the first failure.
func (o *orchestrator) playCurrent(auto bool) {
	skips := 0
	for {
		o.mu.RLock()
		if o.index < 0 || o.index >= len(o.tracks) {
			o.mu.RUnlock()
			return
		}
		tr := o.tracks[o.index]
		o.mu.RUnlock()

		err := o.loadAndPlay(tr)
		if err == nil {
			o.setPlaying()
			return
		}
		if errors.Is(err, device.ErrInterrupted) {
			// Expected artifact of rapid navigation; never surfaced.
			zlog.Debug().Str("track", tr.ID).Msg("play superseded by newer load")
			return
		}

		o.reportFailure(tr, err)

		if !auto || skips >= o.autoSkipLimit {
			o.setPaused()
			return
		}
		skips++

		advanced := false
		o.mu.Lock()
		switch {
		case o.repeat == RepeatTrack:
			// Replaying the same failing track would spin forever.
		case o.index < len(o.tracks)-1:
			o.index++
			advanced = true
		case o.repeat == RepeatPlaylist && len(o.tracks) > 1:
			o.index = 0
			advanced = true
		}
		o.mu.Unlock()
		if !advanced {
			o.setPaused()
			return
		}
	}
}

// loadAndPlay resolves a fresh URL for the track and runs the device
// load/play sequence.
func (o *orchestrator) loadAndPlay(tr queue.Track) error {
	url := tr.URL
	if o.catalog != nil {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		resolved, err := o.catalog.ResolvePlayableURL(ctx, tr.ID)
		cancel()
		switch {
		case err == nil:
			url = resolved
		case errors.Is(err, catalog.ErrNotFound):
			return fmt.Errorf("resolve track %s: %w", tr.ID, err)
		default:
			// Data service unreachable: fall back to the last known
			// URL rather than failing outright.
			zlog.Debug().Err(err).Str("track", tr.ID).Msg("url resolution failed, using cached url")
		}
	}
	if url == "" {
		return fmt.Errorf("track %s: %w", tr.ID, catalog.ErrNotFound)
	}

	if err := o.dev.Load(url); err != nil {
		return err
	}
	return o.dev.Play()
}

func (o *orchestrator) setPlaying() {
	o.mu.Lock()
	prev := o.transport
	o.transport = StatePlaying
	o.lastErr = ""
	var tr queue.Track
	idx := o.index
	if idx >= 0 && idx < len(o.tracks) {
		tr = o.tracks[idx]
	}
	o.mu.Unlock()

	if prev != StatePlaying {
		o.emitState(StateChange{Previous: prev, Current: StatePlaying})
	}
	o.emitTrack(TrackChange{Track: tr, Index: idx})
	o.persist()
}

func (o *orchestrator) setPaused() {
	o.mu.Lock()
	prev := o.transport
	o.transport = StatePaused
	o.mu.Unlock()

	o.dev.Pause()
	if prev != StatePaused {
		o.emitState(StateChange{Previous: prev, Current: StatePaused})
	}
	o.persist()
}

// reportFailure surfaces an unplayable track: logged, reflected in the
// session, and pushed as a notification. Controls stay fully
// responsive afterwards.
func (o *orchestrator) reportFailure(tr queue.Track, err error) {
	zlog.Warn().Err(err).Str("track", tr.ID).Str("title", tr.Title).Msg("track failed to play")

	msg := errmsg.FormatWith(errmsg.OpPlaybackStart, tr.Title, err)
	o.mu.Lock()
	o.lastErr = msg
	o.mu.Unlock()

	if o.notifier != nil {
		_, _ = o.notifier.Notify(notify.Notification{
			Title:   "Couldn't play this track",
			Body:    tr.Title,
			Urgency: notify.UrgencyNormal,
		})
	}
	o.emitError(ErrorEvent{Operation: string(errmsg.OpPlaybackStart), TrackID: tr.ID, Message: msg, Err: err})
}

func (o *orchestrator) Pause() {
	o.mu.Lock()
	if o.transport != StatePlaying {
		o.mu.Unlock()
		return
	}
	o.transport = StatePaused
	o.mu.Unlock()

	o.dev.Pause()
	o.emitState(StateChange{Previous: StatePlaying, Current: StatePaused})
	o.persist()
}

func (o *orchestrator) Resume() error {
	o.mu.RLock()
	resumable := o.transport == StatePaused && len(o.tracks) > 0
	o.mu.RUnlock()
	if !resumable {
		return nil
	}

	err := o.dev.Play()
	if errors.Is(err, device.ErrInterrupted) {
		return nil
	}
	if err != nil {
		o.mu.RLock()
		var tr queue.Track
		if o.index >= 0 && o.index < len(o.tracks) {
			tr = o.tracks[o.index]
		}
		o.mu.RUnlock()
		o.reportFailure(tr, err)
		return nil
	}

	o.mu.Lock()
	prev := o.transport
	o.transport = StatePlaying
	o.mu.Unlock()

	o.emitState(StateChange{Previous: prev, Current: StatePlaying})
	o.persist()
	return nil
}

func (o *orchestrator) Toggle() error {
	switch o.State() {
	case StatePlaying:
		o.Pause()
		return nil
	case StatePaused:
		return o.Resume()
	default:
		return nil
	}
}

// Stop fully clears the session. Distinct from reaching end of queue,
// which merely pauses.
func (o *orchestrator) Stop() error {
	o.mu.Lock()
	prev := o.transport
	o.playlistID = ""
	o.original = nil
	o.tracks = nil
	o.index = -1
	o.transport = StateIdle
	o.lastErr = ""
	o.mu.Unlock()

	o.dev.Pause()
	if o.store != nil {
		if err := o.store.ClearSession(); err != nil {
			zlog.Debug().Err(err).Msg("clear session failed")
		}
	}
	if prev != StateIdle {
		o.emitState(StateChange{Previous: prev, Current: StateIdle})
	}
	o.emitQueue(QueueChange{Index: -1})
	return nil
}

// --- Device events ---

func (o *orchestrator) handleTrackEnded() {
	// The repeat mode is read here, at event time, from the live
	// session. advance handles RepeatTrack by replaying in place.
	o.advance(true)
}

func (o *orchestrator) handleDeviceFailure(err error) {
	o.mu.RLock()
	var tr queue.Track
	has := o.index >= 0 && o.index < len(o.tracks)
	if has {
		tr = o.tracks[o.index]
	}
	o.mu.RUnlock()
	if !has {
		return
	}

	o.reportFailure(tr, err)
	o.setPaused()
}

// --- Seek and volume ---

func (o *orchestrator) Seek(delta time.Duration) {
	pos := o.dev.Position() + delta
	if pos < 0 {
		pos = 0
	}
	o.SeekTo(pos)
}

func (o *orchestrator) SeekTo(pos time.Duration) {
	o.dev.Seek(pos)
	o.emitPosition(PositionChange{Position: o.dev.Position()})
	o.persist()
}

// SetVolume clamps to [0,100], applies the gain, and persists the
// preference. It never touches the load/play pipeline.
func (o *orchestrator) SetVolume(v int) {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}

	o.mu.Lock()
	o.volume = v
	o.mu.Unlock()

	o.dev.SetVolume(float64(v) / 100)
	if o.store != nil {
		if err := o.store.SaveVolume(v); err != nil {
			zlog.Debug().Err(err).Msg("save volume preference failed")
		}
	}
	o.emitVolume(VolumeChange{Volume: v})
}

func (o *orchestrator) Volume() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.volume
}

// --- Modes ---

// ToggleShuffle rebuilds the queue around the currently playing track
// without touching the device; whatever is playing keeps playing.
func (o *orchestrator) ToggleShuffle() bool {
	o.mu.Lock()
	o.shuffle = !o.shuffle
	enabled := o.shuffle
	if len(o.tracks) > 0 && o.index >= 0 {
		currentID := o.tracks[o.index].ID
		o.tracks, o.index = queue.Rebuild(o.original, currentID, o.shuffle)
	}
	repeat := o.repeat
	q := slices.Clone(o.tracks)
	idx := o.index
	o.mu.Unlock()

	o.emitMode(ModeChange{Repeat: repeat, Shuffle: enabled})
	o.emitQueue(QueueChange{Tracks: q, Index: idx})
	o.persist()
	return enabled
}

func (o *orchestrator) CycleRepeat() RepeatMode {
	o.mu.Lock()
	o.repeat = o.repeat.Cycle()
	mode := o.repeat
	shuffle := o.shuffle
	o.mu.Unlock()

	o.emitMode(ModeChange{Repeat: mode, Shuffle: shuffle})
	o.persist()
	return mode
}

// --- Queries ---

func (o *orchestrator) Session() Session {
	o.mu.RLock()
	s := Session{
		PlaylistID: o.playlistID,
		Tracks:     slices.Clone(o.tracks),
		Index:      o.index,
		State:      o.transport,
		Shuffle:    o.shuffle,
		Repeat:     o.repeat,
		Volume:     o.volume,
		LastError:  o.lastErr,
	}
	if o.index >= 0 && o.index < len(o.tracks) {
		tr := o.tracks[o.index]
		s.Current = &tr
	}
	o.mu.RUnlock()

	s.Position = o.dev.Position()
	s.Duration = o.dev.Duration()
	if s.Duration == 0 && s.Current != nil {
		s.Duration = s.Current.Duration
	}
	return s
}

func (o *orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transport
}

func (o *orchestrator) CurrentTrack() *queue.Track {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.index < 0 || o.index >= len(o.tracks) {
		return nil
	}
	tr := o.tracks[o.index]
	return &tr
}

func (o *orchestrator) Position() time.Duration {
	return o.dev.Position()
}

func (o *orchestrator) Duration() time.Duration {
	return o.dev.Duration()
}

func (o *orchestrator) Shuffle() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.shuffle
}

func (o *orchestrator) RepeatMode() RepeatMode {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.repeat
}

func (o *orchestrator) QueueTracks() []queue.Track {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.tracks)
}

func (o *orchestrator) QueueIndex() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.index
}

// --- Navigation debounce ---

// beginNav claims the navigation slot. Returns false when a navigation
// is already in flight, in which case the caller drops the intent. The
// safety timer clears a stuck flag after the debounce window.
func (o *orchestrator) beginNav() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.navBusy {
		return false
	}
	o.navBusy = true
	if o.navTimer != nil {
		o.navTimer.Stop()
	}
	o.navTimer = time.AfterFunc(o.navDebounce, func() {
		o.mu.Lock()
		o.navBusy = false
		o.mu.Unlock()
	})
	return true
}

func (o *orchestrator) endNav() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.navTimer != nil {
		o.navTimer.Stop()
		o.navTimer = nil
	}
	o.navBusy = false
}

// --- Persistence ---

func (o *orchestrator) persist() {
	if o.store == nil {
		return
	}
	snap, ok := o.buildSnapshot()
	if !ok {
		return
	}
	o.store.SaveSession(snap)
}

func (o *orchestrator) persistNow() {
	if o.store == nil {
		return
	}
	snap, ok := o.buildSnapshot()
	if !ok {
		return
	}
	if err := o.store.SaveSessionNow(snap); err != nil {
		zlog.Debug().Err(err).Msg("save session failed")
	}
}

func (o *orchestrator) buildSnapshot() (state.Snapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(o.tracks) == 0 || o.index < 0 || o.index >= len(o.tracks) {
		return state.Snapshot{}, false
	}

	rows := make([]state.TrackRow, len(o.tracks))
	for i, t := range o.tracks {
		rows[i] = state.TrackRow{
			TrackID:  t.ID,
			Title:    t.Title,
			Artist:   t.Artist,
			URL:      t.URL,
			Duration: t.Duration,
		}
	}

	return state.Snapshot{
		PlaylistID: o.playlistID,
		TrackID:    o.tracks[o.index].ID,
		TrackIndex: o.index,
		Position:   o.dev.Position(),
		Playing:    o.transport == StatePlaying,
		Shuffle:    o.shuffle,
		RepeatMode: int(o.repeat),
		Tracks:     rows,
		SavedAt:    time.Now(),
	}, true
}

// --- Subscriptions ---

func (o *orchestrator) Subscribe() *Subscription {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	sub := newSubscription()
	o.subs = append(o.subs, sub)
	return sub
}

func (o *orchestrator) emitState(e StateChange) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	for _, sub := range o.subs {
		sub.sendState(e)
	}
}

func (o *orchestrator) emitTrack(e TrackChange) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	for _, sub := range o.subs {
		sub.sendTrack(e)
	}
}

func (o *orchestrator) emitQueue(e QueueChange) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	for _, sub := range o.subs {
		sub.sendQueue(e)
	}
}

func (o *orchestrator) emitMode(e ModeChange) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	for _, sub := range o.subs {
		sub.sendMode(e)
	}
}

func (o *orchestrator) emitPosition(e PositionChange) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	for _, sub := range o.subs {
		sub.sendPosition(e)
	}
}

func (o *orchestrator) emitVolume(e VolumeChange) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	for _, sub := range o.subs {
		sub.sendVolume(e)
	}
}

func (o *orchestrator) emitError(e ErrorEvent) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	for _, sub := range o.subs {
		sub.sendError(e)
	}
}

// --- Lifecycle ---

func (o *orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.navTimer != nil {
		o.navTimer.Stop()
		o.navTimer = nil
	}
	o.mu.Unlock()

	close(o.done)
	o.persistNow()

	o.subsMu.Lock()
	for _, sub := range o.subs {
		sub.close()
	}
	o.subs = nil
	o.subsMu.Unlock()

	return o.dev.Close()
}
