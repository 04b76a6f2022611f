package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohitsakala/printcore/internal/statusapi"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the virtual-SD, pause/resume, and print-stats status objects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var combined statusapi.Combined
		if err := doRequest("GET", "/printer/status", &combined); err != nil {
			return err
		}

		fmt.Printf("file:       %s\n", combined.Executor.FilePath)
		fmt.Printf("progress:   %.1f%%\n", combined.Executor.Progress*100)
		fmt.Printf("active:     %v\n", combined.Executor.IsActive)
		fmt.Printf("paused:     %v\n", combined.PauseState.IsPaused)
		fmt.Printf("state:      %s\n", combined.PrintStats.State)
		if combined.PrintStats.Message != "" {
			fmt.Printf("message:    %s\n", combined.PrintStats.Message)
		}
		fmt.Printf("duration:   %.1fs\n", combined.PrintStats.PrintDuration)
		fmt.Printf("filament:   %.2fmm\n", combined.PrintStats.FilamentUsed)
		return nil
	},
}

func init() {
	printCmd.AddCommand(statusCmd)
}
