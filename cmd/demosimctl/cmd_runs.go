package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"demosim/pkg/demosim"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List indexed runs",
		Long: `List the runs recorded in the run store, oldest first. Use a persistent
store (--store sqlite or postgres) to see runs from earlier invocations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			var req demosim.RunsRequest
			req.BatchID, _ = cmd.Flags().GetString("batch")
			req.Status, _ = cmd.Flags().GetString("status")
			req.Limit, _ = cmd.Flags().GetInt("limit")

			client, closeClient, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeClient()

			runs, err := client.Runs(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tSTATUS\tOUTPUT\tSEED\tSTEPS\tFINAL\tBATCH")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.CreatedAtUTC, r.Status, r.OutputDir, r.Seed, r.Steps, r.FinalPopulation, r.BatchID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("batch", "", "Only runs of this batch id")
	cmd.Flags().String("status", "", "Only runs with this status: successful, error, skipped")
	cmd.Flags().Int("limit", 0, "Maximum number of runs (0 for all)")
	return cmd
}
