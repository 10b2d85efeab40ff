package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"device_tuner/internal/config"
	"device_tuner/internal/diff"
	"device_tuner/internal/history"
	"device_tuner/internal/models"
	"device_tuner/internal/property"
	"device_tuner/internal/scan"
	"device_tuner/internal/service"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a scan plan offline against the thermal model",
		Long: `Load a yaml scan plan, apply its overrides to the configured sequence,
and run every spot through the thermal model. Prints the peak temperature of
each run and the difference between the last and the first run.

Example plan:
  sequence: furnace-a
  overrides:
    "F1:SOAK": 120
  dimensions:
    - key: "F1:TARGET"
      start: 600
      end: 900
      steps: 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			planPath, _ := cmd.Flags().GetString("plan")

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			f, err := os.Open(planPath)
			if err != nil {
				return fmt.Errorf("open scan plan: %w", err)
			}
			defer f.Close()
			plan, err := scan.LoadPlan(f)
			if err != nil {
				return err
			}
			return runPlan(cmd.Context(), cfg, plan, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("plan", "", "Scan plan yaml file")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

// runPlan runs plan on fresh records without any live source. Spot failures
// are printed and returned after the summary.
func runPlan(ctx context.Context, cfg *config.Config, plan scan.Plan, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	catalog, err := property.NewCatalog(cfg.Sequences)
	if err != nil {
		return fmt.Errorf("load sequences: %w", err)
	}
	registry := property.NewRegistry(catalog, nil, nil)
	defer registry.Close()
	if err := registry.Select(plan.Sequence); err != nil {
		return err
	}

	for key, v := range plan.Overrides {
		rec, err := registry.Get(key)
		if err != nil {
			return fmt.Errorf("override: %w", err)
		}
		rec.SetTestValue(v)
	}
	records := make([]*property.Record, len(plan.Dimensions))
	for i, d := range plan.Dimensions {
		rec, err := registry.Get(d.Key)
		if err != nil {
			return fmt.Errorf("dimension: %w", err)
		}
		if err := rec.ConfigureScan(d.Start, d.End, d.Steps); err != nil {
			return err
		}
		rec.SetScanEnabled(true)
		records[i] = rec
	}

	hist := history.New(service.NewThermalModel(cfg.Model), registry)
	runs, scanErr := hist.RunScan(ctx, records)
	if runs == nil && scanErr != nil {
		return scanErr
	}

	for _, r := range runs {
		fmt.Fprintf(out, "%-16s peak %8.2f\n", r.Label, peak(r.Result))
	}
	var oracleErr *history.OracleError
	for _, e := range history.SplitErrors(scanErr) {
		if errors.As(e, &oracleErr) {
			fmt.Fprintf(out, "%-16s FAILED   %v\n", oracleErr.Label, oracleErr.Err)
		}
	}

	if len(runs) >= 2 {
		last, first := runs[len(runs)-1], runs[0]
		cmp := diff.Compare(last, first)
		pos, delta := largestDelta(cmp.Diff)
		fmt.Fprintf(out, "%s - %s: %d points, largest delta %.2f at %g\n",
			cmp.ALabel, cmp.BLabel, len(cmp.Diff), delta, pos)
	}
	return scanErr
}

func peak(s models.PositionSeries) float64 {
	vals := make([]float64, 0, len(s))
	for _, p := range s {
		if !math.IsNaN(p.Value) {
			vals = append(vals, p.Value)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	return floats.Max(vals)
}

// largestDelta returns the point of s with the largest absolute value.
func largestDelta(s models.PositionSeries) (position, delta float64) {
	if len(s) == 0 {
		return math.NaN(), math.NaN()
	}
	abs := make([]float64, len(s))
	for i, p := range s {
		abs[i] = math.Abs(p.Value)
	}
	i := floats.MaxIdx(abs)
	return s[i].Position, s[i].Value
}
