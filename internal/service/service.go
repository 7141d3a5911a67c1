package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Kosmasu/EEG-streamer/internal/acquisition"
	"github.com/Kosmasu/EEG-streamer/internal/board"
	"github.com/Kosmasu/EEG-streamer/internal/config"
	"github.com/Kosmasu/EEG-streamer/internal/play"
	"github.com/Kosmasu/EEG-streamer/internal/recording"
	"github.com/Kosmasu/EEG-streamer/internal/render"
)

// DefaultMaxDuration bounds a session when the configuration does not
const DefaultMaxDuration = 3600

// Service represents the core recording service interface
type Service interface {
	// Session operations
	Validate(p Params) error
	Start(p Params) (*SessionInfo, error)
	Stop() (*Outcome, error)
	Wait() *Outcome

	// Information operations
	Status() (Status, *SessionInfo)
	LastOutcome() *Outcome
	LastError() string
	Config() *config.Config
}

// Status represents the current session state
type Status string

const (
	StatusStandby    Status = "STANDBY"
	StatusRecording  Status = "RECORDING"
	StatusFinalizing Status = "FINALIZING"
	StatusError      Status = "ERROR"
)

// Params are the user supplied session parameters
type Params struct {
	Duration int    `json:"duration"` // seconds
	Filename string `json:"filename"`
	Music    string `json:"music"`
}

// SessionInfo describes the running session
type SessionInfo struct {
	Filename     string    `json:"filename"`
	Music        string    `json:"music,omitempty"`
	Duration     int       `json:"duration"`
	StartTime    time.Time `json:"start_time"`
	SamplingRate int       `json:"sampling_rate"`
	Channels     []string  `json:"channels"`
	Samples      int       `json:"samples"`
}

// Elapsed returns the captured time span
func (si *SessionInfo) Elapsed() time.Duration {
	if si.SamplingRate <= 0 {
		return 0
	}
	return time.Duration(si.Samples) * time.Second / time.Duration(si.SamplingRate)
}

// Outcome reports how a session ended
type Outcome struct {
	Filename  string        `json:"filename"`
	Path      string        `json:"path,omitempty"`
	Samples   int           `json:"samples"`
	Duration  time.Duration `json:"duration"`
	Polls     int           `json:"polls"`
	Cancelled bool          `json:"cancelled"`
	Err       error         `json:"-"`
}

// Saved reports whether a recording was written
func (o *Outcome) Saved() bool {
	return o != nil && o.Path != ""
}

// Options injects the collaborators of a service. Zero fields get defaults
// built from the configuration.
type Options struct {
	Source   func() (board.Source, error)
	Store    recording.Store
	Music    Music
	Renderer render.Renderer
	Now      func() time.Time
}

// Music plays an optional track for the length of a session
type Music interface {
	Resolve(name string) (string, error)
	Play(name string) error
	Stop()
}

// EEGService is the main service implementation
type EEGService struct {
	cfg  *config.Config
	opts Options

	mu      sync.RWMutex
	status  Status
	session *SessionInfo
	buffer  *acquisition.Buffer
	cancel  context.CancelFunc
	done    chan struct{}
	outcome *Outcome

	// set while the board is being opened outside the lock
	starting bool

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new service instance
func New(cfg *config.Config, opts Options) *EEGService {
	if opts.Source == nil {
		boardCfg := cfg.Board
		opts.Source = func() (board.Source, error) {
			return board.New(&boardCfg)
		}
	}
	if opts.Store == nil {
		opts.Store = recording.NewFileStore(cfg.Recording.Directory)
	}
	if opts.Renderer == nil {
		opts.Renderer = render.LogRenderer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &EEGService{
		cfg:    cfg,
		opts:   opts,
		status: StatusStandby,
	}
}

// Config returns the current configuration
func (s *EEGService) Config() *config.Config {
	return s.cfg
}

func (s *EEGService) maxDuration() int {
	if s.cfg.Recording.MaxDuration > 0 {
		return s.cfg.Recording.MaxDuration
	}
	return DefaultMaxDuration
}

// Validate checks session parameters without touching any resource
func (s *EEGService) Validate(p Params) error {
	if p.Duration < 1 || p.Duration > s.maxDuration() {
		return newError(KindValidation, fmt.Sprintf("Duration must be between 1 and %d seconds", s.maxDuration()), nil)
	}

	name := strings.TrimSpace(p.Filename)
	if name == "" {
		return newError(KindValidation, "Filename is required", nil)
	}
	if recording.CleanFileName(name) == "" {
		return newError(KindValidation, fmt.Sprintf("Filename '%s' contains no usable characters", name), nil)
	}

	if !play.IsNone(p.Music) {
		if s.opts.Music == nil {
			return newError(KindValidation, "Music playback is not available", nil)
		}
		if _, err := s.opts.Music.Resolve(p.Music); err != nil {
			return newError(KindValidation, fmt.Sprintf("Invalid music selection '%s'", p.Music), err)
		}
	}
	return nil
}

// Start validates p, opens the board and launches the session in the
// background. Only one session may run at a time.
func (s *EEGService) Start(p Params) (*SessionInfo, error) {
	slog.Debug("Service.Start called", "filename", p.Filename, "duration", p.Duration, "music", p.Music)

	s.mu.Lock()
	if s.cancel != nil || s.starting {
		s.mu.Unlock()
		return nil, newError(KindSessionActive, "A recording session is already running", ErrSessionActive)
	}

	if err := s.Validate(p); err != nil {
		s.mu.Unlock()
		s.setLastError(err.Error())
		return nil, err
	}
	p.Filename = strings.TrimSpace(p.Filename)
	s.clearLastError()

	sel := board.SelectionFromConfig(&s.cfg.Board)
	if err := sel.Validate(s.cfg.Board.TotalChannels); err != nil {
		s.mu.Unlock()
		e := newError(KindValidation, "Invalid channel selection", err)
		s.setLastError(e.Error())
		return nil, e
	}
	s.starting = true
	s.mu.Unlock()

	// opening a serial board may take a while; Status and Stop stay responsive
	sess, err := s.openBoard()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	if err != nil {
		return nil, s.failStart(err)
	}

	if r, ok := s.opts.Renderer.(render.Resetter); ok {
		r.Reset()
	}

	rate := sess.SamplingRate()
	buf := acquisition.NewBuffer()
	sampler := render.NewSampler(buf, sel, rate, s.cfg.Render.WindowSeconds, s.cfg.Render.Interval, s.opts.Renderer)
	ctx, cancel := context.WithCancel(context.Background())

	info := &SessionInfo{
		Filename:     p.Filename,
		Duration:     p.Duration,
		StartTime:    s.opts.Now(),
		SamplingRate: rate,
		Channels:     append([]string(nil), sel.Labels...),
	}
	if !play.IsNone(p.Music) {
		info.Music = p.Music
	}

	s.status = StatusRecording
	s.session = info
	s.buffer = buf
	s.cancel = cancel
	s.done = make(chan struct{})
	s.outcome = nil

	slog.Info("Recording started", "filename", p.Filename, "duration", p.Duration, "sampling_rate", rate, "channels", sel.Labels)
	go s.run(ctx, sess, buf, sampler, sel, *info, s.done)

	copied := *info
	return &copied, nil
}

func (s *EEGService) openBoard() (*board.Session, *Error) {
	src, err := s.opts.Source()
	if err != nil {
		return nil, newError(KindHardwareStart, "Failed to create board", err)
	}
	sess, err := board.Open(src)
	if err != nil {
		return nil, newError(KindHardwareStart, "Failed to start board stream", err)
	}
	return sess, nil
}

func (s *EEGService) failStart(err *Error) error {
	slog.Error("Service.Start failed", "kind", err.Kind, "error", err)
	// hardware start failures leave the service idle
	s.status = StatusStandby
	s.outcome = &Outcome{Err: err}
	s.setLastError(err.Error())
	return err
}

func (s *EEGService) run(ctx context.Context, sess *board.Session, buf *acquisition.Buffer, sampler *render.Sampler, sel board.Selection, info SessionInfo, done chan struct{}) {
	defer close(done)

	res := s.capture(ctx, sess, sampler, buf, info)
	buf.Freeze()

	s.mu.Lock()
	s.status = StatusFinalizing
	s.mu.Unlock()

	outcome := s.finalize(buf.Snapshot(), sel, info, res)

	s.mu.Lock()
	s.outcome = outcome
	s.session = nil
	s.buffer = nil
	s.cancel()
	s.cancel = nil
	if outcome.Err != nil {
		s.status = StatusError
	} else {
		s.status = StatusStandby
	}
	s.mu.Unlock()

	if outcome.Err != nil {
		s.setLastError(outcome.Err.Error())
	}
}

// capture runs the acquisition loop with the sampler and music alongside.
// The sampler, music and board are all shut down before it returns.
func (s *EEGService) capture(ctx context.Context, sess *board.Session, sampler *render.Sampler, buf *acquisition.Buffer, info SessionInfo) acquisition.Result {
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Warn("Failed to close board session", "error", err)
		}
	}()

	if info.Music != "" {
		if err := s.opts.Music.Play(info.Music); err != nil {
			slog.Warn("Music playback failed, recording continues without it", "music", info.Music, "error", err)
		} else {
			defer s.opts.Music.Stop()
		}
	}

	sampler.Start()
	defer sampler.Stop()

	loop := acquisition.NewLoop(sess, buf, info.Duration, s.cfg.Recording.PollInterval)
	return loop.Run(ctx)
}

func (s *EEGService) finalize(snap acquisition.Snapshot, sel board.Selection, info SessionInfo, res acquisition.Result) *Outcome {
	outcome := &Outcome{
		Filename:  info.Filename,
		Samples:   snap.Total,
		Polls:     res.Polls,
		Cancelled: res.Cancelled,
	}

	var pollErr *Error
	if res.Err != nil {
		pollErr = newError(KindHardwarePoll, fmt.Sprintf("Board stopped delivering data after %d samples", snap.Total), res.Err)
	}

	rec, err := recording.Assemble(snap, sel, info.SamplingRate)
	if errors.Is(err, recording.ErrNoData) {
		slog.Warn("Recording produced no data", "filename", info.Filename, "polls", res.Polls)
		if pollErr != nil {
			outcome.Err = pollErr
		} else {
			outcome.Err = newError(KindEmptyCapture, "No data captured", err)
		}
		return outcome
	}
	if err != nil {
		outcome.Err = newError(KindPersistence, "Failed to assemble recording", err)
		return outcome
	}
	rec.StartTime = info.StartTime
	outcome.Duration = rec.Duration()

	path, err := s.opts.Store.Save(info.Filename, rec)
	if err != nil {
		outcome.Err = newError(KindPersistence, "Failed to save recording", err)
		return outcome
	}
	outcome.Path = path

	if pollErr != nil {
		outcome.Err = pollErr
		return outcome
	}

	slog.Info("Recording finished", "filename", info.Filename, "path", path, "samples", snap.Total, "cancelled", res.Cancelled)
	return outcome
}

// Stop cancels the running session and waits for it to be finalized
func (s *EEGService) Stop() (*Outcome, error) {
	s.mu.RLock()
	cancel, done := s.cancel, s.done
	s.mu.RUnlock()

	if cancel == nil {
		return nil, ErrNoSession
	}

	slog.Info("Stopping recording")
	cancel()
	<-done

	outcome := s.LastOutcome()
	return outcome, outcome.Err
}

// Wait blocks until the running session ends and returns its outcome.
// Without a running session it returns the last outcome.
func (s *EEGService) Wait() *Outcome {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()

	if done != nil {
		<-done
	}
	return s.LastOutcome()
}

// Status returns the current status and, while recording, the session
func (s *EEGService) Status() (Status, *SessionInfo) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return s.status, nil
	}
	info := *s.session
	if s.buffer != nil {
		info.Samples = s.buffer.TotalSamples()
	}
	return s.status, &info
}

// LastOutcome returns the outcome of the most recent session, if any
func (s *EEGService) LastOutcome() *Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcome
}

// LastError returns the last error message (thread-safe)
func (s *EEGService) LastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *EEGService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *EEGService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
