package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var addr string

var RootCmd = &cobra.Command{
	Use:           "printctl",
	Short:         "printctl — control a running printd over its local status API",
	Long:          "A CLI client that drives the print-job execution core's status and control HTTP endpoints.",
	SilenceErrors: true,
	SilenceUsage:  true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Start, pause, resume, cancel, and inspect the active print job",
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8080", "printd status/control API base URL")
	RootCmd.AddCommand(printCmd)
}
