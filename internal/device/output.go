package device

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

const (
	// outputSampleRate is the fixed speaker rate; sources with a
	// different rate are resampled.
	outputSampleRate = beep.SampleRate(44100)

	// defaultLoadWait bounds how long Play waits for an in-flight
	// load. Tunable via WithLoadWait.
	defaultLoadWait = 100 * time.Millisecond

	eventBufferSize = 16
)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(outputSampleRate, outputSampleRate.N(time.Second/10))
	})
	return speakerErr
}

// Output plays audio through the system speaker via beep.
//
// Lock ordering: Output.mu may be held while taking the speaker lock,
// never the other way around. The beep end-callback therefore hands
// off to a goroutine before touching Output state.
type Output struct {
	mu sync.Mutex

	client   *http.Client
	events   chan Event
	loadWait time.Duration

	// gen identifies the current load; a stale generation means the
	// source was superseded.
	gen     int
	loading bool

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	vol      *effects.Volume
	started  bool
	level    float64
	closed   bool
}

// Option configures an Output.
type Option func(*Output)

// WithLoadWait sets the bounded wait Play applies to an in-flight load.
func WithLoadWait(d time.Duration) Option {
	return func(o *Output) { o.loadWait = d }
}

// WithHTTPClient sets the client used to fetch remote sources.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Output) { o.client = c }
}

// New creates an Output and initializes the speaker.
func New(opts ...Option) (*Output, error) {
	if err := initSpeaker(); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	o := &Output{
		client:   &http.Client{Timeout: 30 * time.Second},
		events:   make(chan Event, eventBufferSize),
		loadWait: defaultLoadWait,
		level:    1.0,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Load prepares a new source. Any previous source is cleared first and
// its pending end-callback is suppressed via the generation counter.
func (o *Output) Load(rawURL string) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrNoSource
	}
	o.gen++
	myGen := o.gen
	o.loading = true
	o.clearLocked()
	o.mu.Unlock()

	// Network and decode work runs unlocked so volume and position
	// queries stay responsive during slow loads.
	src, ext, err := openSource(o.client, rawURL)
	if err != nil {
		return o.finishLoad(myGen, nil, beep.Format{}, fmt.Errorf("%w: %w", ErrLoad, err))
	}

	streamer, format, err := decode(src, ext)
	if err != nil {
		src.Close()
		return o.finishLoad(myGen, nil, beep.Format{}, fmt.Errorf("%w: %w", ErrLoad, err))
	}

	return o.finishLoad(myGen, streamer, format, nil)
}

func (o *Output) finishLoad(myGen int, streamer beep.StreamSeekCloser, format beep.Format, loadErr error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.gen != myGen || o.closed {
		if streamer != nil {
			streamer.Close()
		}
		return ErrInterrupted
	}

	o.loading = false
	if loadErr != nil {
		return loadErr
	}

	var s beep.Streamer = streamer
	if format.SampleRate != outputSampleRate {
		s = beep.Resample(4, format.SampleRate, outputSampleRate, streamer)
	}

	o.streamer = streamer
	o.format = format
	o.ctrl = &beep.Ctrl{Streamer: s, Paused: true}
	o.vol = &effects.Volume{
		Streamer: o.ctrl,
		Base:     2,
		Volume:   levelToGain(o.level),
		Silent:   o.level <= 0,
	}
	o.started = false
	return nil
}

// Play starts or resumes the loaded source.
func (o *Output) Play() error {
	myGen, err := o.awaitLoad()
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrNoSource
	}
	if o.gen != myGen {
		return ErrInterrupted
	}
	if o.ctrl == nil {
		return ErrNoSource
	}

	if !o.started {
		o.started = true
		gen := o.gen
		speaker.Play(beep.Seq(o.vol, beep.Callback(func() {
			// Runs under the speaker lock; state work must not
			// happen inline (see lock ordering note above).
			go o.streamEnded(gen)
		})))
	}
	speaker.Lock()
	o.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// awaitLoad waits (bounded) for an in-flight load and returns the
// generation observed once loading settles.
func (o *Output) awaitLoad() (int, error) {
	deadline := time.Now().Add(o.loadWait)
	for {
		o.mu.Lock()
		loading, gen := o.loading, o.gen
		o.mu.Unlock()
		if !loading {
			return gen, nil
		}
		if time.Now().After(deadline) {
			return gen, ErrInterrupted
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (o *Output) streamEnded(gen int) {
	o.mu.Lock()
	if o.closed || gen != o.gen || o.streamer == nil {
		o.mu.Unlock()
		return
	}
	o.started = false
	err := o.streamer.Err()
	o.mu.Unlock()

	if err != nil {
		o.emit(Event{Type: Failed, Err: fmt.Errorf("%w: %w", ErrLoad, err)})
		return
	}
	o.emit(Event{Type: Ended})
}

func (o *Output) emit(e Event) {
	select {
	case o.events <- e:
	default:
		// Drop if buffer full
	}
}

// Pause is idempotent.
func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctrl == nil {
		return
	}
	speaker.Lock()
	o.ctrl.Paused = true
	speaker.Unlock()
}

// Seek sets the position within the loaded source.
func (o *Output) Seek(pos time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.streamer == nil {
		return
	}
	n := o.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if l := o.streamer.Len(); n >= l {
		n = l - 1
	}
	speaker.Lock()
	_ = o.streamer.Seek(n)
	speaker.Unlock()
}

// SetVolume adjusts output gain only. It must never reload the source
// or recreate the pipeline; every other playback operation depends on
// this holding.
func (o *Output) SetVolume(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.level = level
	if o.vol == nil {
		return
	}
	speaker.Lock()
	o.vol.Volume = levelToGain(level)
	o.vol.Silent = level <= 0
	speaker.Unlock()
}

// Position returns the current position, 0 if no source.
func (o *Output) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := o.format.SampleRate.D(o.streamer.Position())
	speaker.Unlock()
	return pos
}

// Duration returns the loaded source's duration, 0 if no source.
func (o *Output) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.streamer == nil {
		return 0
	}
	return o.format.SampleRate.D(o.streamer.Len())
}

// Events returns the device event channel. The channel is never
// closed; consumers stop via their own lifecycle.
func (o *Output) Events() <-chan Event {
	return o.events
}

// Close releases the source and silences the output.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.gen++
	o.clearLocked()
	return nil
}

// clearLocked drops the current pipeline. Callers must hold o.mu.
func (o *Output) clearLocked() {
	speaker.Clear()
	if o.streamer != nil {
		o.streamer.Close()
		o.streamer = nil
	}
	o.ctrl = nil
	o.vol = nil
	o.started = false
}

// levelToGain converts a 0.0-1.0 level to beep's logarithmic volume.
// beep uses base-2 "decibels": 0 = unchanged, -1 = half, -2 = quarter.
func levelToGain(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}
