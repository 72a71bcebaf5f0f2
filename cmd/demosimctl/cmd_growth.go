package main

import (
	"math"

	"github.com/spf13/cobra"

	"demosim/internal/dataextract"
	"demosim/pkg/demosim"
)

func newGrowthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "growth <dir>",
		Short: "Summarise a scalar over repeats or sweep cells",
		Long: `Read persisted runs below <dir> and summarise one scalar per run
(n, mean, std, min, max). Without --sweep, <dir> holds rep=0, rep=1, ...
directories. With --sweep, <dir> holds sweep_info.json and one directory
per combination.`,
		Example: `  demosimctl growth model_output/reps
  demosimctl growth --sweep --extractor final-population model_output/fertility`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			req := demosim.ExtractRequest{Root: args[0]}
			req.Extractor, _ = cmd.Flags().GetString("extractor")
			req.Sweep, _ = cmd.Flags().GetBool("sweep")
			req.NoReps, _ = cmd.Flags().GetBool("no-reps")

			client, closeClient, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeClient()

			summary, err := client.Extract(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), jsonSummary(summary))
			}
			return dataextract.WriteSummaryCSV(cmd.OutOrStdout(), summary.Names, summary.Rows)
		},
	}
	cmd.Flags().String("extractor", "growth", "Scalar per run: growth, final-population")
	cmd.Flags().Bool("sweep", false, "Treat <dir> as a sweep directory")
	cmd.Flags().Bool("no-reps", false, "Sweep combinations hold a single run instead of rep= directories")
	return cmd
}

type summaryRow struct {
	Values map[string]any `json:"values,omitempty"`
	N      int            `json:"n"`
	Mean   *float64       `json:"mean"`
	Std    *float64       `json:"std"`
	Min    *float64       `json:"min"`
	Max    *float64       `json:"max"`
}

// jsonSummary maps non-finite statistics to null, which encoding/json
// cannot represent otherwise.
func jsonSummary(summary demosim.ExtractSummary) []summaryRow {
	rows := make([]summaryRow, 0, len(summary.Rows))
	for _, r := range summary.Rows {
		row := summaryRow{
			N:    r.N,
			Mean: finite(r.Mean),
			Std:  finite(r.Std),
			Min:  finite(r.Min),
			Max:  finite(r.Max),
		}
		if len(summary.Names) > 0 {
			row.Values = make(map[string]any, len(summary.Names))
			for i, name := range summary.Names {
				row.Values[name] = r.Values[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newTrajectoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trajectory <dir>",
		Short: "Summarise population size per step across repeats",
		Long: `Read rep=0, rep=1, ... below <dir> and print, for every step, how many
repeats reached it and the mean, std, min and max population size.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			client, closeClient, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeClient()

			points, err := client.Trajectory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), points)
			}
			return dataextract.WriteTrajectoryCSV(cmd.OutOrStdout(), points)
		},
	}
	return cmd
}
