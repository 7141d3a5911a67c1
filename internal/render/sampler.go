package render

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Kosmasu/EEG-streamer/internal/acquisition"
	"github.com/Kosmasu/EEG-streamer/internal/board"
)

const DefaultInterval = 100 * time.Millisecond

// SnapshotSource is anything that can hand out buffer snapshots
type SnapshotSource interface {
	Snapshot() acquisition.Snapshot
}

// Sampler periodically renders the trailing window of a buffer. It only
// reads the buffer.
type Sampler struct {
	source        SnapshotSource
	selection     board.Selection
	rate          int
	windowSamples int
	interval      time.Duration
	renderer      Renderer

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	ticks    int
	rendered int
}

// NewSampler creates a sampler showing windowSeconds of history every interval
func NewSampler(source SnapshotSource, sel board.Selection, rate, windowSeconds int, interval time.Duration, renderer Renderer) *Sampler {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{
		source:        source,
		selection:     sel,
		rate:          rate,
		windowSamples: windowSeconds * rate,
		interval:      interval,
		renderer:      renderer,
	}
}

// Tick renders once. It returns false when there was nothing to render.
func (s *Sampler) Tick() (bool, error) {
	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()

	w, err := Trailing(s.source.Snapshot(), s.selection, s.rate, s.windowSamples)
	if errors.Is(err, ErrEmptyBuffer) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.renderer.Render(w); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.rendered++
	s.mu.Unlock()
	return true, nil
}

// Start launches the ticker goroutine. Calling Start twice is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stop, s.done)
}

func (s *Sampler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Debug("Render sampler started", "interval", s.interval, "window_samples", s.windowSamples)

	for {
		select {
		case <-stop:
			slog.Debug("Render sampler stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(); err != nil {
				slog.Warn("Render tick failed", "error", err)
			}
		}
	}
}

// Stop halts the ticker and waits until no tick is in flight
func (s *Sampler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Stats returns the number of ticks and of rendered frames so far
func (s *Sampler) Stats() (ticks, rendered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks, s.rendered
}
