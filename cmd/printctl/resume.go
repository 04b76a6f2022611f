package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused print job",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doRequest("POST", "/printer/print/resume", nil); err != nil {
			return err
		}
		fmt.Println("Print resumed")
		return nil
	},
}

func init() {
	printCmd.AddCommand(resumeCmd)
}
