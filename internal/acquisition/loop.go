package acquisition

import (
	"context"
	"log/slog"
	"time"

	"github.com/Kosmasu/EEG-streamer/internal/board"
)

// Poller is the part of a board session the loop drives
type Poller interface {
	Poll() (board.Chunk, error)
	SamplingRate() int
}

// Result describes how an acquisition loop ended
type Result struct {
	Samples   int
	Polls     int
	Cancelled bool
	Err       error // poll failure, fatal to the session
}

// Loop polls a board into a buffer until a target duration is captured
// or its context is cancelled.
type Loop struct {
	source   Poller
	buffer   *Buffer
	duration int
	idle     time.Duration
}

// NewLoop creates a loop capturing durationSeconds of samples, waiting
// idle between polls that return nothing.
func NewLoop(source Poller, buffer *Buffer, durationSeconds int, idle time.Duration) *Loop {
	return &Loop{
		source:   source,
		buffer:   buffer,
		duration: durationSeconds,
		idle:     idle,
	}
}

// Run blocks until the target is reached, ctx is cancelled or a poll
// fails. Unless a poll failed, one more poll is made after the loop ends
// to collect samples the board buffered in the meantime.
func (l *Loop) Run(ctx context.Context) Result {
	target := l.duration * l.source.SamplingRate()
	var res Result

	slog.Debug("Acquisition loop started", "target_samples", target, "idle", l.idle)

	for res.Samples < target {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}

		n, err := l.pollOnce(&res)
		if err != nil {
			res.Err = err
			slog.Error("Acquisition poll failed", "error", err, "samples", res.Samples)
			return res
		}
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(l.idle):
		}
	}

	// residual samples buffered by the board since the last poll
	if _, err := l.pollOnce(&res); err != nil {
		res.Err = err
		slog.Error("Acquisition drain poll failed", "error", err, "samples", res.Samples)
	}

	slog.Debug("Acquisition loop finished", "samples", res.Samples, "polls", res.Polls, "cancelled", res.Cancelled)
	return res
}

func (l *Loop) pollOnce(res *Result) (int, error) {
	chunk, err := l.source.Poll()
	res.Polls++
	if err != nil {
		return 0, err
	}
	if chunk.Empty() {
		return 0, nil
	}
	if err := l.buffer.Append(chunk); err != nil {
		return 0, err
	}
	res.Samples += chunk.Samples()
	return chunk.Samples(), nil
}
