package dataextract

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"demosim/internal/params"
	"demosim/internal/platform"
	"demosim/internal/stats"
)

// FromRepeats applies extract to root/rep=0, rep=1, ... stopping at the
// first missing repeat directory.
func FromRepeats[T any](root string, extract Extractor[T]) ([]T, error) {
	var out []T
	for rep := 0; ; rep++ {
		dir := platform.RepDir(root, rep)
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return out, nil
		}
		v, err := extract(dir)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", dir, err)
		}
		out = append(out, v)
	}
}

// SweepGrid holds extracted values per parameter combination of a sweep.
type SweepGrid[T any] struct {
	Names  []string
	Values map[string][]any
	cells  map[string][]T
}

// Cell returns the values of the combination given in Names order.
func (g SweepGrid[T]) Cell(values ...any) ([]T, bool) {
	key, err := cellKey(g.Names, values)
	if err != nil {
		return nil, false
	}
	v, ok := g.cells[key]
	return v, ok
}

// Len reports how many combinations hold values.
func (g SweepGrid[T]) Len() int { return len(g.cells) }

type SweepOptions struct {
	// NoReps reads each combination directory as a single run instead of a
	// set of rep= directories.
	NoReps bool
}

// FromSweep reads sweep_info.json in root and extracts every combination
// directory below it. Parameter values are taken from each combination's
// params file, not from the directory name.
func FromSweep[T any](root string, extract Extractor[T], opts SweepOptions) (SweepGrid[T], error) {
	info, ok, err := stats.ReadSweepInfo(root)
	if err != nil {
		return SweepGrid[T]{}, err
	}
	if !ok {
		return SweepGrid[T]{}, fmt.Errorf("%w: %s has no %s", ErrNoOutput, root, stats.SweepInfoFile)
	}
	grid := SweepGrid[T]{Names: info.Names, Values: info.Values, cells: map[string][]T{}}

	entries, err := os.ReadDir(root)
	if err != nil {
		return SweepGrid[T]{}, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		example := dir
		if !opts.NoReps {
			example = platform.RepDir(dir, 0)
		}
		values, ok, err := stats.ReadParamsMap(example)
		if err != nil {
			return SweepGrid[T]{}, err
		}
		if !ok {
			continue
		}
		combo := make([]any, len(info.Names))
		for i, name := range info.Names {
			combo[i] = values[name]
		}
		key, err := cellKey(info.Names, combo)
		if err != nil {
			return SweepGrid[T]{}, fmt.Errorf("sweep cell %s: %w", dir, err)
		}

		var cell []T
		if opts.NoReps {
			v, err := extract(dir)
			if err != nil {
				return SweepGrid[T]{}, fmt.Errorf("extract %s: %w", dir, err)
			}
			cell = []T{v}
		} else {
			cell, err = FromRepeats(dir, extract)
			if err != nil {
				return SweepGrid[T]{}, err
			}
		}
		grid.cells[key] = cell
	}
	return grid, nil
}

// cellKey coerces values through the parameter schema so that 1, 1.0 and
// json numbers for a float parameter map to the same cell.
func cellKey(names []string, values []any) (string, error) {
	if len(names) != len(values) {
		return "", fmt.Errorf("expected %d values, got %d", len(names), len(values))
	}
	canonical := make([]any, len(values))
	p := params.Default()
	for i, name := range names {
		next, err := p.With(name, values[i])
		if err != nil {
			return "", err
		}
		if canonical[i], err = next.Get(name); err != nil {
			return "", err
		}
	}
	return platform.ParamSetName(names, canonical), nil
}

// Summary describes a sample; NaN values are skipped.
type Summary struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Summarize computes the population (not sample) standard deviation. An
// empty sample has NaN statistics.
func Summarize(values []float64) Summary {
	s := Summary{Mean: math.NaN(), Std: math.NaN(), Min: math.NaN(), Max: math.NaN()}
	var sum float64
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if s.N == 0 || v < s.Min {
			s.Min = v
		}
		if s.N == 0 || v > s.Max {
			s.Max = v
		}
		sum += v
		s.N++
	}
	if s.N == 0 {
		return s
	}
	s.Mean = sum / float64(s.N)
	var sq float64
	for _, v := range values {
		if !math.IsNaN(v) {
			sq += (v - s.Mean) * (v - s.Mean)
		}
	}
	s.Std = math.Sqrt(sq / float64(s.N))
	return s
}

// CellSummary is one row of a summarised sweep.
type CellSummary struct {
	Values []any
	Summary
}

// SummarizeGrid summarises every combination in expansion order. Missing
// combinations are reported with N == 0.
func SummarizeGrid(grid SweepGrid[float64]) []CellSummary {
	lists := make([][]any, len(grid.Names))
	for i, name := range grid.Names {
		lists[i] = grid.Values[name]
	}
	var out []CellSummary
	for _, combo := range platform.Combinations(lists) {
		cell, _ := grid.Cell(combo...)
		out = append(out, CellSummary{Values: combo, Summary: Summarize(cell)})
	}
	return out
}
