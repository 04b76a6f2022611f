package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <filename>",
	Short: "Start printing a G-code file from the configured SD-card directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doRequest("POST", "/printer/print/start?filename="+args[0], nil); err != nil {
			return err
		}
		fmt.Printf("Print started: %s\n", args[0])
		return nil
	},
}

func init() {
	printCmd.AddCommand(startCmd)
}
