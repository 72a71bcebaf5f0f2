package sim

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"time"

	"demosim/internal/logging"
	"demosim/internal/model"
	"demosim/internal/params"
	"demosim/internal/stats"
)

// StepObserver receives the metrics of every completed step.
type StepObserver interface {
	ObserveStep(model.StepMetrics)
}

type RunOptions struct {
	// SkipIfExists returns StatusSkipped when the output directory already
	// exists instead of overwriting it.
	SkipIfExists bool
	// Seed overrides any seed carried by the parameter set.
	Seed *int64
	// Verbose logs the population size of every step at info level.
	Verbose bool
}

// Outcome is the result of one Runner invocation. Err is set exactly when
// Status is StatusError.
type Outcome struct {
	Status    model.Status
	OutputDir string
	Seed      int64
	Series    model.TimeSeries
	Err       error
	Duration  time.Duration
}

// Runner owns one simulation from initialization to persisted output.
type Runner struct {
	Logger   *slog.Logger
	Observer StepObserver
}

// Run executes a full simulation for p. It never returns an error: every
// failure is reported as StatusError on the outcome.
func (r Runner) Run(ctx context.Context, p params.Params, opts RunOptions) (out Outcome) {
	logger := logging.OrDiscard(r.Logger).With("output_dir", p.OutputDirectory)
	started := time.Now()
	out.OutputDir = p.OutputDirectory

	defer func() {
		if rec := recover(); rec != nil {
			out.Status = model.StatusError
			out.Err = fmt.Errorf("simulation panic: %v", rec)
		}
		out.Duration = time.Since(started)
		if out.Status == model.StatusError {
			logger.Error("simulation failed", "error", out.Err, "steps", out.Series.Len())
		}
	}()

	fail := func(err error) Outcome {
		out.Status = model.StatusError
		out.Err = err
		return out
	}

	if err := p.Validate(); err != nil {
		return fail(err)
	}

	claimed, err := ClaimDir(p.OutputDirectory)
	if err != nil {
		return fail(err)
	}
	if !claimed && opts.SkipIfExists {
		logger.Info("skipping simulation because output directory already exists")
		out.Status = model.StatusSkipped
		return out
	}

	seed, err := resolveSeed(p, opts)
	if err != nil {
		return fail(err)
	}
	out.Seed = seed
	p = p.WithSeed(seed)

	if err := stats.WriteParams(p.OutputDirectory, p); err != nil {
		return fail(err)
	}

	engine, err := NewEngine(p.FertilityRate, p.MortalityRate)
	if err != nil {
		return fail(err)
	}

	rng := mathrand.New(mathrand.NewSource(seed))
	population := NewPopulation(rng, p.InitialPopulationSize)
	out.Series = model.TimeSeries{PopSize: []int{}, Deaths: []int{}, Births: []int{}}

	for t := 0; t < p.MaxTime; t++ {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("run interrupted at step %d: %w", t, err))
		}
		if opts.Verbose {
			logger.Info("step", "t", t, "population", population.Len())
		} else {
			logger.Debug("step", "t", t, "population", population.Len())
		}

		metrics, err := engine.Step(rng, population)
		if err != nil {
			return fail(fmt.Errorf("step %d: %w", t, err))
		}
		metrics.Step = t
		logger.Log(ctx, logging.LevelTrace, "step detail",
			"t", t, "births", metrics.Births, "deaths", metrics.Deaths, "population", metrics.PopulationSize)
		out.Series.Append(metrics)
		if r.Observer != nil {
			r.Observer.ObserveStep(metrics)
		}

		if population.Len() == 0 {
			logger.Info("population extinct", "t", t)
			break
		}
	}

	if err := stats.WriteTimeSeries(p.OutputDirectory, out.Series); err != nil {
		return fail(err)
	}
	if opts.Verbose {
		logger.Info("output written", "file", filepath.Join(p.OutputDirectory, stats.TimeSeriesFile))
	}
	out.Status = model.StatusSuccessful
	return out
}

// ClaimDir creates dir, reporting whether this call created it. Parents are
// created as needed; the final directory is created with a single mkdir so
// that exactly one of several concurrent callers observes claimed=true.
func ClaimDir(dir string) (bool, error) {
	if parent := filepath.Dir(dir); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return false, fmt.Errorf("create parent of %s: %w", dir, err)
		}
	}
	err := os.Mkdir(dir, 0o755)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return false, fmt.Errorf("claim %s: %w", dir, err)
	}
	info, statErr := os.Stat(dir)
	if statErr != nil {
		return false, fmt.Errorf("claim %s: %w", dir, statErr)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("claim %s: path exists and is not a directory", dir)
	}
	return false, nil
}

func resolveSeed(p params.Params, opts RunOptions) (int64, error) {
	if opts.Seed != nil {
		return *opts.Seed, nil
	}
	if p.Seed != nil {
		return *p.Seed, nil
	}
	return EntropySeed()
}

// EntropySeed draws a 32-bit seed from the operating system.
func EntropySeed() (int64, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read seed entropy: %w", err)
	}
	return int64(binary.LittleEndian.Uint32(buf[:])), nil
}
