package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"demosim/internal/params"
	"demosim/pkg/demosim"
)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("param", "p", nil, "Parameter override name=value (repeatable)")
	cmd.Flags().String("preset", "default", "Base parameter preset: default, high-mort-high-fert")
	cmd.Flags().StringP("output", "o", "", "Output directory (relative paths are placed under the output root)")
	cmd.Flags().Int64("seed", 0, "Random seed (default: seed parameter, else entropy)")
	cmd.Flags().BoolP("verbose", "v", false, "Log population size at every step")
}

func runRequestFromFlags(cmd *cobra.Command) (demosim.RunRequest, error) {
	var req demosim.RunRequest
	preset, _ := cmd.Flags().GetString("preset")
	overrides, err := presetOverrides(preset)
	if err != nil {
		return req, err
	}
	raw, _ := cmd.Flags().GetStringArray("param")
	for _, kv := range raw {
		name, value, err := parseAssignment(kv)
		if err != nil {
			return req, err
		}
		overrides[name] = parseScalar(value)
	}
	req.Params = overrides
	req.Output, _ = cmd.Flags().GetString("output")
	req.Verbose, _ = cmd.Flags().GetBool("verbose")
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetInt64("seed")
		req.Seed = &seed
	}
	return req, nil
}

// presetOverrides expresses a named preset as overrides so that configured
// parameters still apply to the fields the preset does not change.
func presetOverrides(name string) (map[string]any, error) {
	switch name {
	case "", "default":
		return map[string]any{}, nil
	case "high-mort-high-fert":
		p := params.HighMortHighFert()
		return map[string]any{
			params.MortalityRate: p.MortalityRate,
			params.FertilityRate: p.FertilityRate,
		}, nil
	default:
		return nil, fmt.Errorf("unknown preset %q (valid: default, high-mort-high-fert)", name)
	}
}

func parseAssignment(kv string) (string, string, error) {
	name, value, ok := strings.Cut(kv, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", kv)
	}
	return name, strings.TrimSpace(value), nil
}

// parseScalar types a flag value the way YAML would: 3 is an int, 0.5 a
// float, anything else a string.
func parseScalar(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case int, float64, string, bool:
		return v
	default:
		return s
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation",
		Example: `  demosimctl run -p initialPopulationSize=500 -p maxTime=100 --seed 42
  demosimctl run --preset high-mort-high-fert -o high`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := runRequestFromFlags(cmd)
			if err != nil {
				return err
			}
			client, closeClient, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeClient()

			summary, err := client.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			return reportBatch(cmd, summary)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func newRepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reps",
		Short: "Run repeated simulations of one parameter set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := runRequestFromFlags(cmd)
			if err != nil {
				return err
			}
			reps, _ := cmd.Flags().GetInt("reps")
			client, closeClient, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeClient()

			summary, err := client.Reps(cmd.Context(), demosim.RepsRequest{RunRequest: req, Reps: reps})
			if err != nil {
				return err
			}
			return reportBatch(cmd, summary)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().IntP("reps", "n", 10, "Number of repeats")
	return cmd
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parameter sweep",
		Long: `Run every combination of the swept parameter values, each repeated
--reps times. The sweep is given either as a YAML file (--file) or with
repeated --sweep name=v1,v2 flags. sweep_info.json is written to the
sweep's output directory. With --file the base parameters, output and
repeats come from the file and cannot be given as flags; --seed, --workers
and --verbose still apply, and a positive --workers overrides the file.`,
		Example: `  demosimctl sweep --sweep fertilityRate=0.05,0.1 --reps 3 -o fertility
  demosimctl sweep --file sweep.yaml --workers 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			swept, _ := cmd.Flags().GetStringArray("sweep")
			if (file == "") == (len(swept) == 0) {
				return fmt.Errorf("exactly one of --file or --sweep is required")
			}
			if file != "" {
				for _, name := range []string{"param", "preset", "output", "reps"} {
					if cmd.Flags().Changed(name) {
						return fmt.Errorf("--%s cannot be combined with --file; set it in the sweep file", name)
					}
				}
			}
			req, err := runRequestFromFlags(cmd)
			if err != nil {
				return err
			}
			workers, _ := cmd.Flags().GetInt("workers")
			client, closeClient, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer closeClient()

			var summary demosim.BatchSummary
			if file != "" {
				summary, err = client.SweepFromFile(cmd.Context(), demosim.SweepFileRequest{
					Path:    file,
					Seed:    req.Seed,
					Workers: workers,
					Verbose: req.Verbose,
				})
			} else {
				sweepReq := demosim.SweepRequest{RunRequest: req}
				sweepReq.Reps, _ = cmd.Flags().GetInt("reps")
				sweepReq.Workers = workers
				sweepReq.Names, sweepReq.Values, err = parseSweepFlags(swept)
				if err != nil {
					return err
				}
				summary, err = client.Sweep(cmd.Context(), sweepReq)
			}
			if err != nil {
				return err
			}
			return reportBatch(cmd, summary)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().String("file", "", "YAML sweep file")
	cmd.Flags().StringArray("sweep", nil, "Swept parameter name=v1,v2,... (repeatable, first varies fastest)")
	cmd.Flags().IntP("reps", "n", 1, "Repeats per combination (0 runs each combination once without rep= directories)")
	cmd.Flags().Int("workers", 0, "Worker pool size (default: configured workers)")
	return cmd
}

func parseSweepFlags(flags []string) ([]string, [][]any, error) {
	names := make([]string, 0, len(flags))
	values := make([][]any, 0, len(flags))
	for _, f := range flags {
		name, list, err := parseAssignment(f)
		if err != nil {
			return nil, nil, err
		}
		var vs []any
		for _, item := range strings.Split(list, ",") {
			if item = strings.TrimSpace(item); item != "" {
				vs = append(vs, parseScalar(item))
			}
		}
		names = append(names, name)
		values = append(values, vs)
	}
	return names, values, nil
}

// reportBatch prints the batch and fails when any run failed.
func reportBatch(cmd *cobra.Command, summary demosim.BatchSummary) error {
	out := cmd.OutOrStdout()
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		if err := writeJSON(out, summary); err != nil {
			return err
		}
	} else {
		for _, run := range summary.Runs {
			fmt.Fprintf(out, "%-10s %s seed=%d steps=%d final=%d\n",
				run.Status, run.OutputDir, run.Seed, run.Steps, run.FinalPopulation)
			if run.Error != "" {
				fmt.Fprintf(out, "           error: %s\n", run.Error)
			}
		}
		fmt.Fprintf(out, "batch %s: %d successful, %d skipped, %d failed\n",
			summary.BatchID, summary.Successful, summary.Skipped, summary.Failed)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d runs failed", summary.Failed, len(summary.Runs))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
