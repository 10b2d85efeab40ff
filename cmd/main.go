package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tuner",
		Short: "Device tuner - parameter scans over a simulated plant",
		Long: `tuner lets operators override the design values of a device sequence,
run the simulation, sweep parameters over a grid of scan spots, and compare
the resulting runs.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default configs/config.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newServeCmd(),
		newSpotsCmd(),
		newScanCmd(),
	)
	return rootCmd
}
