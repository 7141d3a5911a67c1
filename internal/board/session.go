package board

import (
	"errors"
	"log/slog"
	"sync"
)

// Session is the exclusively-owned handle of a prepared, streaming board.
// Close must be called on every exit path; it is safe to call more than once.
type Session struct {
	src Source

	mu     sync.Mutex
	closed bool
}

// Open prepares the board and starts its stream. On failure any partially
// initialized state is released before returning.
func Open(src Source) (*Session, error) {
	if err := src.Prepare(); err != nil {
		slog.Error("Board prepare failed", "error", err)
		return nil, asHardwareError("prepare session", err)
	}

	if err := src.StartStream(); err != nil {
		slog.Error("Board stream start failed", "error", err)
		if relErr := src.Release(); relErr != nil {
			slog.Warn("Board release after failed start also failed", "error", relErr)
		}
		return nil, asHardwareError("start stream", err)
	}

	slog.Debug("Board session opened", "sampling_rate", src.SamplingRate(), "eeg_channels", src.EEGChannels())
	return &Session{src: src}, nil
}

// Poll reads the samples accumulated since the previous poll
func (s *Session) Poll() (Chunk, error) {
	chunk, err := s.src.Poll()
	if err != nil {
		return Chunk{}, asHardwareError("get board data", err)
	}
	return chunk, nil
}

// SamplingRate returns the board sampling rate in Hz
func (s *Session) SamplingRate() int {
	return s.src.SamplingRate()
}

// EEGChannels returns the board's EEG channel indices
func (s *Session) EEGChannels() []int {
	return s.src.EEGChannels()
}

// Close stops the stream and releases the board
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.src.StopStream(); err != nil {
		errs = append(errs, asHardwareError("stop stream", err))
	}
	if err := s.src.Release(); err != nil {
		errs = append(errs, asHardwareError("release session", err))
	}

	slog.Debug("Board session closed")
	return errors.Join(errs...)
}

func asHardwareError(op string, err error) error {
	var hwErr *HardwareError
	if errors.As(err, &hwErr) {
		return err
	}
	return &HardwareError{Op: op, Err: err}
}
