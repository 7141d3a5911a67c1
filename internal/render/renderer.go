package render

import (
	"context"
	"errors"
	"log/slog"
)

// Renderer draws a window
type Renderer interface {
	Render(w Window) error
}

// RendererFunc adapts a function to a Renderer
type RendererFunc func(w Window) error

func (f RendererFunc) Render(w Window) error {
	return f(w)
}

// MultiRenderer hands every window to each renderer in turn
type MultiRenderer []Renderer

func (m MultiRenderer) Render(w Window) error {
	var errs []error
	for _, r := range m {
		if err := r.Render(w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resetter is implemented by renderers that keep state between sessions
type Resetter interface {
	Reset()
}

// Reset resets every renderer that implements Resetter
func (m MultiRenderer) Reset() {
	for _, r := range m {
		if rs, ok := r.(Resetter); ok {
			rs.Reset()
		}
	}
}

// LogRenderer logs a one-line summary of each window at debug level
type LogRenderer struct{}

func (LogRenderer) Render(w Window) error {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return nil
	}

	attrs := []any{
		"start_s", w.StartTime,
		"samples", w.Len(),
		"total", w.Total,
	}
	for _, line := range w.Lines {
		if len(line.Samples) == 0 {
			continue
		}
		attrs = append(attrs, line.Label, line.Samples[len(line.Samples)-1])
	}
	slog.Debug("Live window", attrs...)
	return nil
}
