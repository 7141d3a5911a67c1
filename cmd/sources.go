package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Kosmasu/EEG-streamer/internal/board"
	"github.com/Kosmasu/EEG-streamer/internal/play"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List board types, serial ports and music tracks",
	Long:  `List the board types that can be configured, the serial ports a serial board can use, and the music tracks available for sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Board types:\n")
		for _, t := range board.AvailableTypes() {
			fmt.Printf("  - %s\n", t)
		}

		ports, err := board.ListSerialPorts()
		if err != nil {
			slog.Warn("Could not enumerate serial ports", "error", err)
		}
		fmt.Printf("\nSerial ports (%d found):\n", len(ports))
		for i, p := range ports {
			fmt.Printf("  %d. %s\n", i+1, p)
		}

		player := play.New(cfg.Recording.MusicDirectory)
		tracks, err := player.Tracks()
		if err != nil {
			return err
		}
		fmt.Printf("\nMusic in %s (%d found):\n", player.Dir(), len(tracks))
		fmt.Printf("  - %s\n", play.NoMusic)
		for _, t := range tracks {
			fmt.Printf("  - %s\n", t.Name)
		}

		fmt.Printf("\nActive board: %s (%s, %d Hz, channels %v)\n",
			cfg.BoardName, cfg.Board.Type, cfg.Board.SamplingRate, cfg.ChannelLabels())
		return nil
	},
}
