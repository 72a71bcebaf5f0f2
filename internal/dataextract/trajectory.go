package dataextract

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// TrajectoryPoint is the cross-repeat summary of one time step.
type TrajectoryPoint struct {
	Step int `json:"step"`
	Summary
}

// MeanTrajectory summarises series step by step. Series may differ in
// length (extinct runs stop early); a series contributes only to the steps
// it reached, so N falls as runs end.
func MeanTrajectory(series [][]float64) []TrajectoryPoint {
	var points []TrajectoryPoint
	for step := 0; ; step++ {
		values := make([]float64, 0, len(series))
		for _, s := range series {
			if step < len(s) {
				values = append(values, s[step])
			}
		}
		if len(values) == 0 {
			return points
		}
		points = append(points, TrajectoryPoint{Step: step, Summary: Summarize(values)})
	}
}

// PopSizeTrajectory reads the population series of every repeat below root.
func PopSizeTrajectory(root string) ([]TrajectoryPoint, error) {
	series, err := FromRepeats(root, popSizeFloats)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no rep=0 directory in %s", ErrNoOutput, root)
	}
	return MeanTrajectory(series), nil
}

func popSizeFloats(runDir string) ([]float64, error) {
	pop, err := PopSizeSeries(runDir)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(pop))
	for i, n := range pop {
		out[i] = float64(n)
	}
	return out, nil
}

// WriteTrajectoryCSV writes step,n,mean,std,min,max rows.
func WriteTrajectoryCSV(w io.Writer, points []TrajectoryPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"step", "n", "mean", "std", "min", "max"}); err != nil {
		return fmt.Errorf("write trajectory header: %w", err)
	}
	for _, p := range points {
		if err := writer.Write([]string{
			strconv.Itoa(p.Step),
			strconv.Itoa(p.N),
			formatStat(p.Mean),
			formatStat(p.Std),
			formatStat(p.Min),
			formatStat(p.Max),
		}); err != nil {
			return fmt.Errorf("write trajectory step %d: %w", p.Step, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
