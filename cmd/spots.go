package main

import (
	"encoding/json"
	"fmt"

	"device_tuner/internal/models"
	"device_tuner/internal/scan"

	"github.com/spf13/cobra"
)

func newSpotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spots",
		Short: "Print the scan spots of a set of dimensions",
		Long: `Enumerate the cartesian product of the given dimensions, the way a scan
would run it. Each dimension is start:end:steps.

Examples:
  tuner spots --dim 600:900:4
  tuner spots --dim 600:900:4 --dim 0:300:3 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetStringArray("dim")
			jsonOut, _ := cmd.Flags().GetBool("json")

			dims := make([]models.Dimension, 0, len(raw))
			for _, s := range raw {
				d, err := scan.ParseDimension(s)
				if err != nil {
					return err
				}
				dims = append(dims, d)
			}
			spots, err := scan.Generate(dims)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				type labeled struct {
					Label string `json:"label"`
					models.ScanSpot
				}
				rows := make([]labeled, len(spots))
				for i, sp := range spots {
					rows[i] = labeled{Label: scan.Label(i+1, sp.Indices), ScanSpot: sp}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			for i, sp := range spots {
				fmt.Fprintf(out, "%-16s %v\n", scan.Label(i+1, sp.Indices), sp.Values)
			}
			fmt.Fprintf(out, "%d spots\n", len(spots))
			return nil
		},
	}
	cmd.Flags().StringArray("dim", nil, "Dimension start:end:steps (repeatable, in scan order)")
	_ = cmd.MarkFlagRequired("dim")
	return cmd
}
