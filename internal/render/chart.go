package render

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
)

// ChartRenderer draws windows as PNG line charts. The latest frame is
// kept in memory and optionally written to a file.
type ChartRenderer struct {
	width  int
	height int
	output string

	mu       sync.RWMutex
	frame    []byte
	rendered time.Time
}

// NewChartRenderer creates a chart renderer. An empty output keeps frames in memory only.
func NewChartRenderer(width, height int, output string) *ChartRenderer {
	return &ChartRenderer{
		width:  width,
		height: height,
		output: output,
	}
}

func (c *ChartRenderer) Render(w Window) error {
	// go-chart rejects a zero-width x range
	if w.Len() < 2 {
		return nil
	}

	png, err := c.draw(w)
	if err != nil {
		return fmt.Errorf("cannot render chart: %w", err)
	}

	c.mu.Lock()
	c.frame = png
	c.rendered = time.Now()
	c.mu.Unlock()

	if c.output != "" {
		if err := writeFileAtomic(c.output, png); err != nil {
			return fmt.Errorf("cannot write chart to %s: %w", c.output, err)
		}
	}
	return nil
}

// Latest returns the last rendered PNG and when it was rendered
func (c *ChartRenderer) Latest() ([]byte, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame, c.rendered
}

// Reset drops the last frame
func (c *ChartRenderer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = nil
	c.rendered = time.Time{}
}

func (c *ChartRenderer) draw(w Window) ([]byte, error) {
	xs := w.Times()

	series := make([]chart.Series, 0, len(w.Lines))
	lo, hi := 0.0, 0.0
	first := true
	for _, line := range w.Lines {
		for _, v := range line.Samples {
			if first || v < lo {
				lo = v
			}
			if first || v > hi {
				hi = v
			}
			first = false
		}
		series = append(series, chart.ContinuousSeries{
			Name:    line.Label,
			XValues: xs,
			YValues: line.Samples,
		})
	}
	if hi-lo < 1e-9 {
		lo, hi = lo-1, hi+1
	}

	ticks := make([]chart.Tick, 0, len(w.Ticks))
	for _, t := range w.Ticks {
		ticks = append(ticks, chart.Tick{
			Value: w.StartTime + float64(t.Offset)/float64(w.SamplingRate),
			Label: strconv.Itoa(t.Second),
		})
	}

	ch := chart.Chart{
		Width:      c.width,
		Height:     c.height,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		XAxis: chart.XAxis{
			Name:  "Time (s)",
			Ticks: ticks,
			Range: &chart.ContinuousRange{Min: xs[0], Max: xs[len(xs)-1]},
		},
		YAxis: chart.YAxis{
			Name:  "Microvolts (" + w.Unit + ")",
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".frame-*.png")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		slog.Debug("Chart rename failed", "path", path, "error", err)
		return err
	}
	return nil
}
