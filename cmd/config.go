package cmd

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Kosmasu/EEG-streamer/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage EEG Streamer configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configBoardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List board profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := config.BoardNames(cfgFile)
		if err != nil {
			return err
		}
		for _, name := range names {
			marker := " "
			if name == cfg.BoardName {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [board]",
	Short: "Set the active board profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile, args[0]); err != nil {
			return err
		}
		if err := config.UpdateActiveBoard(cfgFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active board set to %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configBoardsCmd)
	configCmd.AddCommand(configUseCmd)
}
