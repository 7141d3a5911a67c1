package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/Kosmasu/EEG-streamer/internal/acquisition"
	"github.com/Kosmasu/EEG-streamer/internal/board"
)

const (
	DefaultWindowSeconds = 3
	Unit                 = "µV"
)

var ErrEmptyBuffer = errors.New("no samples to render")

// Line is one channel of a window
type Line struct {
	Label   string
	Samples []float64
}

// Tick marks a whole second on the time axis. Offset is the sample index
// within the window, Second the label.
type Tick struct {
	Offset int
	Second int
}

// Window is the trailing slice of a session handed to a renderer
type Window struct {
	Lines        []Line
	StartTime    float64 // seconds since session start of the first sample
	TickSpacing  float64 // seconds
	Ticks        []Tick
	SamplingRate int
	Unit         string
	Total        int // samples captured so far
}

// Len returns the number of samples per line
func (w Window) Len() int {
	if len(w.Lines) == 0 {
		return 0
	}
	return len(w.Lines[0].Samples)
}

// Times returns the time axis of the window in seconds
func (w Window) Times() []float64 {
	xs := make([]float64, w.Len())
	for i := range xs {
		xs[i] = w.StartTime + float64(i)/float64(w.SamplingRate)
	}
	return xs
}

// Trailing extracts the last windowSamples samples of the selected
// channels from a snapshot. It walks chunks from the tail so the work is
// bounded by the window size, not the session length.
func Trailing(snap acquisition.Snapshot, sel board.Selection, rate, windowSamples int) (Window, error) {
	if snap.Empty() {
		return Window{}, ErrEmptyBuffer
	}
	if rate <= 0 || windowSamples <= 0 {
		return Window{}, fmt.Errorf("invalid window: rate %d, size %d", rate, windowSamples)
	}

	n := snap.Total
	if n > windowSamples {
		n = windowSamples
	}

	w := Window{
		Lines:        make([]Line, sel.Len()),
		StartTime:    float64(snap.Total-n) / float64(rate),
		TickSpacing:  1,
		SamplingRate: rate,
		Unit:         Unit,
		Total:        snap.Total,
	}
	for ch := range w.Lines {
		w.Lines[ch] = Line{Label: sel.Labels[ch], Samples: make([]float64, n)}
	}

	pos := n
	for i := len(snap.Chunks) - 1; i >= 0 && pos > 0; i-- {
		c := snap.Chunks[i]
		take := c.Samples()
		if take > pos {
			take = pos
		}
		from := c.Samples() - take
		for ch, idx := range sel.Indices {
			if idx >= c.Channels() {
				return Window{}, fmt.Errorf("channel %q index %d out of range for chunk with %d rows", sel.Labels[ch], idx, c.Channels())
			}
			copy(w.Lines[ch].Samples[pos-take:pos], c.Data[idx][from:])
		}
		pos -= take
	}

	for off := 0; off < n; off += rate {
		w.Ticks = append(w.Ticks, Tick{
			Offset: off,
			Second: int(math.Floor(w.StartTime + float64(off)/float64(rate))),
		})
	}

	return w, nil
}
