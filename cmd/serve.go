package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Kosmasu/EEG-streamer/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the EEG Streamer web server to control recording via a web interface.
This allows you to start and stop sessions and watch the live signal from
any device on the same network.

The server will display the local network URL for easy access from mobile devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetString("port")
		}

		rt := newApp(cfg, true)
		srv := server.New(cfg, rt.service, rt.store, rt.player, rt.chart)

		slog.Info("EEG Streamer web server starting", "port", cfg.Server.Port, "config", cfgFile, "board", cfg.BoardName)

		// Start server (this blocks)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server (overrides server.port)")
}
