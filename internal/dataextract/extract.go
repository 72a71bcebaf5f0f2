// Package dataextract reads persisted run directories back into values and
// aggregates them across repeats and sweeps.
package dataextract

import (
	"errors"
	"fmt"
	"math"

	"demosim/internal/model"
	"demosim/internal/stats"
)

var ErrNoOutput = errors.New("run output not found")

// Extractor computes one value from a run directory.
type Extractor[T any] func(runDir string) (T, error)

func TimeSeries(runDir string) (model.TimeSeries, error) {
	ts, ok, err := stats.ReadTimeSeries(runDir)
	if err != nil {
		return model.TimeSeries{}, err
	}
	if !ok {
		return model.TimeSeries{}, fmt.Errorf("%w: %s has no %s", ErrNoOutput, runDir, stats.TimeSeriesFile)
	}
	return ts, nil
}

func PopSizeSeries(runDir string) ([]int, error) {
	ts, err := TimeSeries(runDir)
	if err != nil {
		return nil, err
	}
	return ts.PopSize, nil
}

// Params returns the persisted parameter set as a name to value mapping.
func Params(runDir string) (map[string]any, error) {
	values, ok, err := stats.ReadParamsMap(runDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s", ErrNoOutput, runDir, stats.ParamsFile)
	}
	return values, nil
}

// GrowthRate is ln(last/first) divided by the number of recorded steps.
// A series that ends extinct yields -Inf, or NaN when the first recorded size
// is already 0.
func GrowthRate(runDir string) (float64, error) {
	pop, err := PopSizeSeries(runDir)
	if err != nil {
		return 0, err
	}
	if len(pop) == 0 {
		return 0, fmt.Errorf("growth rate of %s: empty time series", runDir)
	}
	return math.Log(float64(pop[len(pop)-1])/float64(pop[0])) / float64(len(pop)), nil
}

// BirthDeathRatio divides births by deaths per step with float semantics:
// x/0 is +Inf and 0/0 is NaN.
func BirthDeathRatio(runDir string) ([]float64, error) {
	ts, err := TimeSeries(runDir)
	if err != nil {
		return nil, err
	}
	out := make([]float64, ts.Len())
	for i := range out {
		out[i] = ratio(float64(ts.Births[i]), float64(ts.Deaths[i]))
	}
	return out, nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		switch {
		case num > 0:
			return math.Inf(1)
		case num < 0:
			return math.Inf(-1)
		default:
			return math.NaN()
		}
	}
	return num / den
}

func FinalPopulation(runDir string) (float64, error) {
	pop, err := PopSizeSeries(runDir)
	if err != nil {
		return 0, err
	}
	if len(pop) == 0 {
		return math.NaN(), nil
	}
	return float64(pop[len(pop)-1]), nil
}

// Named extractors usable from the command line.
var scalarExtractors = map[string]Extractor[float64]{
	"growth":           GrowthRate,
	"final-population": FinalPopulation,
}

// ScalarExtractor looks up a named scalar extractor.
func ScalarExtractor(name string) (Extractor[float64], error) {
	e, ok := scalarExtractors[name]
	if !ok {
		return nil, fmt.Errorf("unknown extractor %q (valid: growth, final-population)", name)
	}
	return e, nil
}
