package cmd

import (
	"github.com/Kosmasu/EEG-streamer/internal/config"
	"github.com/Kosmasu/EEG-streamer/internal/play"
	"github.com/Kosmasu/EEG-streamer/internal/recording"
	"github.com/Kosmasu/EEG-streamer/internal/render"
	"github.com/Kosmasu/EEG-streamer/internal/service"
)

// app holds the collaborators shared by record and serve
type app struct {
	store   *recording.FileStore
	player  *play.Player
	chart   *render.ChartRenderer
	service *service.EEGService
}

// newApp wires a service from the configuration. The chart renderer
// is only created when withChart is set or a chart output file is configured.
func newApp(cfg *config.Config, withChart bool) *app {
	rt := &app{
		store:  recording.NewFileStore(cfg.Recording.Directory),
		player: play.New(cfg.Recording.MusicDirectory),
	}

	renderers := render.MultiRenderer{render.LogRenderer{}}
	if withChart || cfg.Render.Output != "" {
		rt.chart = render.NewChartRenderer(cfg.Render.Width, cfg.Render.Height, cfg.Render.Output)
		renderers = append(renderers, rt.chart)
	}

	rt.service = service.New(cfg, service.Options{
		Store:    rt.store,
		Music:    rt.player,
		Renderer: renderers,
	})
	return rt
}
