package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Kosmasu/EEG-streamer/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	boardName    string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "eegstream",
	Short: "EEG acquisition and recording tool",
	Long: `EEG Streamer records multi-channel EEG from a board into EDF files.

While a session runs the most recent seconds of signal are rendered as a
live chart, optionally with background music playing. Sessions can be
started from the command line or remotely through the web server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/eegstream.yaml")
		}

		var err error
		cfg, err = config.LoadOrDefault(cfgFile, boardName)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "file", cfgFile, "board", cfg.BoardName)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/eegstream.yaml)")
	rootCmd.PersistentFlags().StringVar(&boardName, "board", "", "board profile to use (overrides active_board from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	// Add subcommands
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}
