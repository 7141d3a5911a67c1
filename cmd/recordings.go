package cmd

import (
	"fmt"

	"github.com/Kosmasu/EEG-streamer/internal/recording"
	"github.com/spf13/cobra"
)

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List saved recordings",
	Long:  `List the EDF recordings in the recordings directory, newest first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := recording.NewFileStore(cfg.Recording.Directory)
		files, err := store.List()
		if err != nil {
			return err
		}

		fmt.Printf("Recordings in %s (%d found):\n", store.Dir(), len(files))
		for i, f := range files {
			fmt.Printf("  %d. %s  %s  %s\n", i+1, f.Name, f.SizeHuman, f.ModTimeHuman)
		}
		return nil
	},
}
