package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zlog "github.com/rs/zerolog/log"

	"github.com/llehouerou/cadence/internal/catalog"
	"github.com/llehouerou/cadence/internal/config"
	"github.com/llehouerou/cadence/internal/device"
	"github.com/llehouerou/cadence/internal/logger"
	"github.com/llehouerou/cadence/internal/mpris"
	"github.com/llehouerou/cadence/internal/notify"
	"github.com/llehouerou/cadence/internal/playback"
	"github.com/llehouerou/cadence/internal/queue"
	"github.com/llehouerou/cadence/internal/state"
	"github.com/llehouerou/cadence/internal/stderr"
)

var (
	playerBarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	playingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

type tickMsg time.Time

// playbackEventMsg wraps any event coming from the playback subscription.
type playbackEventMsg struct {
	event any
}

type model struct {
	svc playback.Service
	sub *playback.Subscription

	tracks   []queue.Track
	index    int // playing index
	cursor   int
	progress progress.Model
	width    int
	height   int
}

func newModel(svc playback.Service) model {
	s := svc.Session()
	return model{
		svc:      svc,
		sub:      svc.Subscribe(),
		tracks:   s.Tracks,
		index:    s.Index,
		cursor:   max(s.Index, 0),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.waitForEvent())
}

// waitForEvent bridges subscription channels into the tea loop.
func (m model) waitForEvent() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		select {
		case e := <-sub.StateChanged:
			return playbackEventMsg{event: e}
		case e := <-sub.TrackChanged:
			return playbackEventMsg{event: e}
		case e := <-sub.PositionChanged:
			return playbackEventMsg{event: e}
		case e := <-sub.QueueChanged:
			return playbackEventMsg{event: e}
		case e := <-sub.ModeChanged:
			return playbackEventMsg{event: e}
		case e := <-sub.VolumeChanged:
			return playbackEventMsg{event: e}
		case e := <-sub.Error:
			return playbackEventMsg{event: e}
		case <-sub.Done:
			return nil
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(msg.Width-4, 10)

	case playbackEventMsg:
		switch e := msg.event.(type) {
		case playback.QueueChange:
			m.tracks = e.Tracks
			m.index = e.Index
			if m.cursor >= len(m.tracks) {
				m.cursor = max(len(m.tracks)-1, 0)
			}
		case playback.TrackChange:
			m.index = e.Index
		}
		return m, m.waitForEvent()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tickCmd()
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.tracks)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor >= 0 && m.cursor < len(m.tracks) {
			_ = m.svc.PlayTrack(m.tracks[m.cursor].ID)
		}
	case " ":
		_ = m.svc.Toggle()
	case "n":
		_ = m.svc.Next()
	case "p":
		_ = m.svc.Previous()
	case "s":
		m.svc.ToggleShuffle()
	case "r":
		m.svc.CycleRepeat()
	case "S":
		_ = m.svc.Stop()
	case "left":
		m.svc.Seek(-5 * time.Second)
	case "right":
		m.svc.Seek(5 * time.Second)
	case "+", "=":
		m.svc.SetVolume(m.svc.Volume() + 5)
	case "-":
		m.svc.SetVolume(m.svc.Volume() - 5)
	}
	return m, nil
}

const playerBarHeight = 4 // borders + two content lines

func (m model) View() string {
	var b strings.Builder

	s := m.svc.Session()

	listHeight := m.height - playerBarHeight - 1
	if listHeight < 1 {
		listHeight = 1
	}

	if len(m.tracks) == 0 {
		b.WriteString(dimStyle.Render("  queue empty"))
		b.WriteString("\n")
	} else {
		start := 0
		if m.cursor >= listHeight {
			start = m.cursor - listHeight + 1
		}
		end := min(start+listHeight, len(m.tracks))
		for i := start; i < end; i++ {
			tr := m.tracks[i]
			line := fmt.Sprintf("%s - %s", tr.Artist, tr.Title)
			marker := "  "
			if i == s.Index {
				marker = "▶ "
				line = playingStyle.Render(line)
			}
			if i == m.cursor {
				line = selectedStyle.Render(marker + line)
			} else {
				line = marker + line
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString(m.playerBar(s))
	return b.String()
}

func (m model) playerBar(s playback.Session) string {
	status := "■"
	switch s.State {
	case playback.StatePlaying:
		status = "▶"
	case playback.StatePaused:
		status = "⏸"
	}

	title := dimStyle.Render("nothing playing")
	if s.Current != nil {
		title = fmt.Sprintf("%s - %s", s.Current.Artist, s.Current.Title)
	}

	modes := fmt.Sprintf("vol %d%%", s.Volume)
	if s.Shuffle {
		modes += "  shuffle"
	}
	if s.Repeat != playback.RepeatOff {
		modes += "  repeat:" + strings.ToLower(s.Repeat.String())
	}

	times := fmt.Sprintf("%s / %s", formatDuration(s.Position), formatDuration(s.Duration))

	innerWidth := max(m.width-2, 10)

	top := fmt.Sprintf(" %s  %s", status, title)
	rightPart := modes + "  " + times + " "
	padding := innerWidth - lipgloss.Width(top) - lipgloss.Width(rightPart)
	if padding < 1 {
		padding = 1
	}
	top += strings.Repeat(" ", padding) + rightPart

	var percent float64
	if s.Duration > 0 {
		percent = float64(s.Position) / float64(s.Duration)
	}
	bottom := " " + m.progress.ViewAs(percent)

	content := top + "\n" + bottom
	if s.LastError != "" {
		content = top + "\n " + errorStyle.Render(s.LastError)
	}

	return playerBarStyle.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", mins, secs)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Native audio libraries write errors straight to fd 2, which would
	// corrupt the alternate screen. Capture and log them instead. Capture
	// must start before the logger so console output binds to the real
	// terminal rather than the capture pipe.
	captureErr := stderr.Start()

	if err := logger.Init(logger.Config(cfg.Log), logger.WithConsoleOut(stderr.Original())); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if captureErr != nil {
		zlog.Debug().Err(captureErr).Msg("stderr capture unavailable")
	}
	go func() {
		for msg := range stderr.Messages {
			zlog.Debug().Str("source", "native").Msg(msg)
		}
	}()

	var store *state.Store
	if cfg.StatePath != "" {
		store, err = state.Open(cfg.StatePath)
	} else {
		store, err = state.OpenDefault()
	}
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	dev, err := device.New()
	if err != nil {
		return fmt.Errorf("init audio device: %w", err)
	}

	notifier, err := notify.New()
	if err != nil {
		zlog.Debug().Err(err).Msg("notifications unavailable")
	}

	pbCfg := cfg.GetPlaybackConfig()
	opts := []playback.Option{
		playback.WithStore(store),
		playback.WithNotifier(notifier),
		playback.WithDefaultVolume(pbCfg.DefaultVolume),
		playback.WithAutoSkipLimit(pbCfg.AutoSkipLimit),
	}
	if cfg.HasCatalogConfig() {
		opts = append(opts, playback.WithCatalog(catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.APIKey)))
	}

	svc := playback.New(dev, opts...)
	defer svc.Close()

	if adapter, err := mpris.New(svc); err == nil {
		defer adapter.Close()
	} else {
		zlog.Debug().Err(err).Msg("mpris unavailable")
	}

	// Optional playlist id argument starts playback immediately.
	if len(os.Args) > 1 {
		if !cfg.HasCatalogConfig() {
			return fmt.Errorf("playlist argument requires a configured catalog")
		}
		if err := svc.StartPlaylist(context.Background(), os.Args[1], 0); err != nil {
			return fmt.Errorf("start playlist %s: %w", os.Args[1], err)
		}
	}

	p := tea.NewProgram(newModel(svc), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
