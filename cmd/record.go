package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Kosmasu/EEG-streamer/internal/play"
	"github.com/Kosmasu/EEG-streamer/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [filename]",
	Short: "Record EEG to an EDF file",
	Long: `Record the selected EEG channels of the configured board for the given
duration. The recording is saved as <filename>_raw.edf in the recordings
directory. Press Ctrl+C to stop early; the data captured so far is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetInt("duration")
		music, _ := cmd.Flags().GetString("music")

		rt := newApp(cfg, false)
		params := service.Params{
			Duration: duration,
			Filename: args[0],
			Music:    music,
		}

		slog.Info("Record command started", "filename", params.Filename, "duration", duration, "board", cfg.BoardName)
		info, err := rt.service.Start(params)
		if err != nil {
			cmd.SilenceUsage = true
			return describeError(err)
		}

		fmt.Printf("Recording %q for %d s at %d Hz (%s) - Press Ctrl+C to stop\n",
			info.Filename, info.Duration, info.SamplingRate, strings.Join(info.Channels, ", "))
		if info.Music != "" {
			fmt.Printf("Playing %s\n", info.Music)
		}

		// Handle interruption
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		done := make(chan *service.Outcome, 1)
		go func() {
			done <- rt.service.Wait()
		}()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		var outcome *service.Outcome
		for outcome == nil {
			select {
			case <-sigChan:
				fmt.Println()
				slog.Info("Stopping recording...")
				rt.service.Stop()
			case <-ticker.C:
				if _, session := rt.service.Status(); session != nil {
					fmt.Printf("\r%6.1f / %d s", session.Elapsed().Seconds(), session.Duration)
				}
			case outcome = <-done:
			}
		}
		fmt.Println()

		printOutcome(outcome)
		if outcome.Err != nil {
			cmd.SilenceUsage = true
			return describeError(outcome.Err)
		}
		return nil
	},
}

func printOutcome(o *service.Outcome) {
	if o == nil {
		return
	}
	if o.Saved() {
		state := "completed"
		if o.Cancelled {
			state = "stopped early"
		}
		fmt.Printf("Recording %s: %.1f s, %d samples per channel\n", state, o.Duration.Seconds(), o.Samples)
		fmt.Printf("Saved to %s\n", o.Path)
	}
}

// describeError prefixes session errors with their kind
func describeError(err error) error {
	if kind := service.KindOf(err); kind != "" {
		return fmt.Errorf("%s error: %w", kind, err)
	}
	return err
}

func init() {
	recordCmd.Flags().IntP("duration", "d", 60, "recording duration in seconds")
	recordCmd.Flags().StringP("music", "m", play.NoMusic, "music file from the music directory to play while recording")
}
