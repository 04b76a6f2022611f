package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the active print job",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doRequest("POST", "/printer/print/cancel", nil); err != nil {
			return err
		}
		fmt.Println("Print cancelled")
		return nil
	},
}

func init() {
	printCmd.AddCommand(cancelCmd)
}
