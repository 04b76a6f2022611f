package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active print job",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doRequest("POST", "/printer/print/pause", nil); err != nil {
			return err
		}
		fmt.Println("Print paused")
		return nil
	},
}

func init() {
	printCmd.AddCommand(pauseCmd)
}
