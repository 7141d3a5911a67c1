package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Kosmasu/EEG-streamer/internal/recording"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [recording]",
	Short: "Show duration, sampling rate and channels of a recording",
	Long: `Display the header information of an EDF recording. The argument may be
a path to an EDF file, a file name in the recordings directory, or the name
the recording was saved under.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			info *recording.Info
			err  error
		)
		if fi, statErr := os.Stat(args[0]); statErr == nil && !fi.IsDir() {
			info, err = recording.InspectFile(args[0])
		} else {
			info, err = recording.NewFileStore(cfg.Recording.Directory).Inspect(args[0])
		}
		if err != nil {
			return err
		}

		fmt.Printf("=== RECORDING ===\n")
		fmt.Printf("file: %s\n", info.Path)
		fmt.Printf("start_time: %s\n", info.StartTime.Format("2006-01-02 15:04:05"))
		fmt.Printf("duration: %.1f s\n", info.Duration.Seconds())
		fmt.Printf("sampling_rate: %g Hz\n", info.SamplingRate)
		fmt.Printf("samples: %d\n", info.Samples)
		fmt.Printf("channels: %s\n", strings.Join(info.Channels, ", "))

		if meta, err := recording.ReadMetadata(info.Path); err == nil {
			fmt.Printf("\n=== METADATA ===\n")
			fmt.Printf("name: %s\n", meta.Name)
			fmt.Printf("exact_duration: %.3f s\n", meta.Duration)
		}
		return nil
	},
}
