package recording

import (
	"errors"
	"fmt"
	"time"

	"github.com/Kosmasu/EEG-streamer/internal/acquisition"
	"github.com/Kosmasu/EEG-streamer/internal/board"
)

// MicrovoltsPerVolt converts board units (µV) to recording units (V)
const MicrovoltsPerVolt = 1_000_000

var ErrNoData = errors.New("no data captured")

// Recording is the assembled, scaled, labeled sample matrix of a session
type Recording struct {
	Data         [][]float64 // volts, one row per label
	Labels       []string
	SamplingRate int
	StartTime    time.Time
}

// Samples returns the number of samples per channel
func (r *Recording) Samples() int {
	if len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

// Duration returns the recorded time span
func (r *Recording) Duration() time.Duration {
	if r.SamplingRate <= 0 {
		return 0
	}
	return time.Duration(r.Samples()) * time.Second / time.Duration(r.SamplingRate)
}

// Assemble concatenates the snapshot's chunks in append order, keeps the
// selected channels and rescales them from µV to V. The result depends
// only on the snapshot contents.
func Assemble(snap acquisition.Snapshot, sel board.Selection, rate int) (*Recording, error) {
	if snap.Empty() {
		return nil, ErrNoData
	}
	if len(sel.Indices) != len(sel.Labels) {
		return nil, fmt.Errorf("channel selection has %d indices but %d labels", len(sel.Indices), len(sel.Labels))
	}

	rec := &Recording{
		Data:         make([][]float64, sel.Len()),
		Labels:       append([]string(nil), sel.Labels...),
		SamplingRate: rate,
	}
	for ch := range rec.Data {
		rec.Data[ch] = make([]float64, 0, snap.Total)
	}

	for i, c := range snap.Chunks {
		for ch, idx := range sel.Indices {
			if idx < 0 || idx >= c.Channels() {
				return nil, fmt.Errorf("chunk %d: channel %q index %d out of range for %d rows", i, sel.Labels[ch], idx, c.Channels())
			}
			for _, v := range c.Data[idx] {
				rec.Data[ch] = append(rec.Data[ch], v/MicrovoltsPerVolt)
			}
		}
	}

	return rec, nil
}
