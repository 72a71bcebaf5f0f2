package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"demosim/internal/archive"
	"demosim/internal/logging"
	"demosim/internal/metrics"
	"demosim/internal/model"
	"demosim/internal/params"
	"demosim/internal/sim"
	"demosim/internal/stats"
	"demosim/internal/storage"
)

type Config struct {
	Runner sim.Runner
	// Workers > 0 runs units on a bounded pool; otherwise units run one after
	// another in the calling goroutine.
	Workers int
	// UnitTimeout bounds every unit. Zero means no limit.
	UnitTimeout time.Duration
	Logger      *slog.Logger
	Store       storage.Store
	Metrics     *metrics.Recorder
	Archive     archive.Sink
	// ArchiveRoot is the directory archive keys are relative to. When empty
	// the parent of the batch's base directory is used.
	ArchiveRoot string
}

// Sweep is an ordered list of swept parameters and their candidate values.
type Sweep struct {
	Names  []string
	Values [][]any
}

// Report holds the outcomes of one batch in submission order.
type Report struct {
	BatchID  string
	Outcomes []sim.Outcome
}

func (r Report) Statuses() []model.Status {
	statuses := make([]model.Status, len(r.Outcomes))
	for i, out := range r.Outcomes {
		statuses[i] = out.Status
	}
	return statuses
}

func (r Report) Counts() map[model.Status]int {
	return model.CountStatuses(r.Statuses())
}

// Scheduler dispatches simulation runs and aggregates their statuses. It
// never interprets a status: failed units do not stop the batch.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
}

func NewScheduler(cfg Config) *Scheduler {
	logger := logging.OrDiscard(cfg.Logger)
	if cfg.Runner.Logger == nil {
		cfg.Runner.Logger = logger
	}
	if cfg.Runner.Observer == nil && cfg.Metrics != nil {
		cfg.Runner.Observer = cfg.Metrics
	}
	return &Scheduler{cfg: cfg, logger: logger}
}

// RunSingle runs p as a batch of one.
func (s *Scheduler) RunSingle(ctx context.Context, p params.Params, opts sim.RunOptions) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	return s.dispatch(ctx, s.archiveRoot(p.OutputDirectory), []params.Params{p.Clone()}, opts), nil
}

// RunReps runs numReps repeats of base, each in RepDir(base, r).
func (s *Scheduler) RunReps(ctx context.Context, base params.Params, numReps int, opts sim.RunOptions) (Report, error) {
	if numReps < 0 {
		return Report{}, fmt.Errorf("%w: repeat count must be >= 0, got %d", params.ErrInvalidValue, numReps)
	}
	if err := base.Validate(); err != nil {
		return Report{}, err
	}
	units := make([]params.Params, 0, numReps)
	for r := 0; r < numReps; r++ {
		units = append(units, base.WithOutputDirectory(RepDir(base.OutputDirectory, r)))
	}
	return s.dispatch(ctx, s.archiveRoot(base.OutputDirectory), units, opts), nil
}

// RunSweep expands sweep over base, records sweep_info.json in the base
// directory and runs every combination numReps times.
func (s *Scheduler) RunSweep(ctx context.Context, base params.Params, sweep Sweep, numReps int, opts sim.RunOptions) (Report, error) {
	sets, err := ExpandSweep(sweep.Names, sweep.Values)
	if err != nil {
		return Report{}, err
	}
	units, err := buildUnits(base, sets, numReps)
	if err != nil {
		return Report{}, err
	}
	info, err := stats.NewSweepInfo(sweep.Names, sweep.Values)
	if err != nil {
		return Report{}, err
	}
	if err := stats.WriteSweepInfo(base.OutputDirectory, info); err != nil {
		return Report{}, err
	}
	return s.dispatch(ctx, s.archiveRoot(base.OutputDirectory), units, opts), nil
}

// RunParamSets applies every set to base and runs it in base/<set name>.
// numReps <= 0 runs each set once without a rep= subdirectory.
func (s *Scheduler) RunParamSets(ctx context.Context, base params.Params, sets []ParamSet, numReps int, opts sim.RunOptions) (Report, error) {
	units, err := buildUnits(base, sets, numReps)
	if err != nil {
		return Report{}, err
	}
	return s.dispatch(ctx, s.archiveRoot(base.OutputDirectory), units, opts), nil
}

// buildUnits resolves and validates every unit before anything runs.
func buildUnits(base params.Params, sets []ParamSet, numReps int) ([]params.Params, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	var units []params.Params
	seen := make(map[string]bool)
	add := func(p params.Params) error {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.OutputDirectory] {
			return fmt.Errorf("%w: output directory %s used by more than one run", params.ErrInvalidValue, p.OutputDirectory)
		}
		seen[p.OutputDirectory] = true
		units = append(units, p)
		return nil
	}

	for _, set := range sets {
		if set.Name == "" {
			return nil, errors.New("parameter set name is required")
		}
		p, err := base.Override(set.Overrides)
		if err != nil {
			return nil, fmt.Errorf("parameter set %s: %w", set.Name, err)
		}
		dir := filepath.Join(base.OutputDirectory, set.Name)
		if numReps <= 0 {
			if err := add(p.WithOutputDirectory(dir)); err != nil {
				return nil, fmt.Errorf("parameter set %s: %w", set.Name, err)
			}
			continue
		}
		for r := 0; r < numReps; r++ {
			if err := add(p.WithOutputDirectory(RepDir(dir, r))); err != nil {
				return nil, fmt.Errorf("parameter set %s: %w", set.Name, err)
			}
		}
	}
	return units, nil
}

func (s *Scheduler) archiveRoot(baseDir string) string {
	if s.cfg.ArchiveRoot != "" {
		return s.cfg.ArchiveRoot
	}
	return filepath.Dir(filepath.Clean(baseDir))
}

func (s *Scheduler) dispatch(ctx context.Context, archiveRoot string, units []params.Params, opts sim.RunOptions) Report {
	report := Report{
		BatchID:  uuid.NewString(),
		Outcomes: make([]sim.Outcome, len(units)),
	}
	logger := s.logger.With("batch_id", report.BatchID)
	logger.Info("dispatching batch", "runs", len(units), "workers", s.cfg.Workers)

	if s.cfg.Workers <= 0 {
		for i, p := range units {
			report.Outcomes[i] = s.runUnit(ctx, logger, report.BatchID, archiveRoot, p, opts)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.cfg.Workers)
		for i, p := range units {
			logger.Debug("queued run", "output_dir", p.OutputDirectory)
			g.Go(func() error {
				report.Outcomes[i] = s.runUnit(ctx, logger, report.BatchID, archiveRoot, p, opts)
				return nil
			})
		}
		_ = g.Wait()
	}

	counts := report.Counts()
	logger.Info("batch finished",
		"successful", counts[model.StatusSuccessful],
		"skipped", counts[model.StatusSkipped],
		"error", counts[model.StatusError],
	)
	return report
}

func (s *Scheduler) runUnit(ctx context.Context, logger *slog.Logger, batchID, archiveRoot string, p params.Params, opts sim.RunOptions) sim.Outcome {
	var out sim.Outcome
	if err := ctx.Err(); err != nil {
		out = sim.Outcome{
			Status:    model.StatusError,
			OutputDir: p.OutputDirectory,
			Err:       fmt.Errorf("run not started: %w", err),
		}
	} else {
		unitCtx := ctx
		if s.cfg.UnitTimeout > 0 {
			var cancel context.CancelFunc
			unitCtx, cancel = context.WithTimeout(ctx, s.cfg.UnitTimeout)
			defer cancel()
		}
		done := s.cfg.Metrics.InFlight()
		out = s.cfg.Runner.Run(unitCtx, p, opts)
		done()
	}

	s.cfg.Metrics.ObserveOutcome(out.Status, out.Duration)
	s.record(ctx, logger, batchID, out)
	if out.Status == model.StatusSuccessful && s.cfg.Archive != nil {
		if _, err := archive.ArchiveRun(context.WithoutCancel(ctx), s.cfg.Archive, archiveRoot, out.OutputDir); err != nil {
			logger.Warn("archive failed", "output_dir", out.OutputDir, "error", err)
		}
	}
	logger.Info("completed run", "output_dir", out.OutputDir, "status", out.Status.String(), "duration", out.Duration)
	return out
}

// record indexes the outcome. A skipped run never replaces the record of the
// run that produced the directory.
func (s *Scheduler) record(ctx context.Context, logger *slog.Logger, batchID string, out sim.Outcome) {
	if s.cfg.Store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if out.Status == model.StatusSkipped {
		if _, exists, err := s.cfg.Store.GetRun(ctx, out.OutputDir); err == nil && exists {
			return
		}
	}
	if err := s.cfg.Store.SaveRun(ctx, NewRunRecord(batchID, out)); err != nil {
		logger.Warn("saving run record failed", "output_dir", out.OutputDir, "error", err)
	}
}

// createdAtLayout has fixed width so that records sort lexically by time.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// NewRunRecord converts an outcome into its index entry.
func NewRunRecord(batchID string, out sim.Outcome) model.RunRecord {
	record := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		BatchID:         batchID,
		OutputDir:       out.OutputDir,
		Seed:            out.Seed,
		Status:          out.Status,
		Steps:           out.Series.Len(),
		FinalPopulation: max(out.Series.Final(), 0),
		TotalBirths:     out.Series.TotalBirths(),
		TotalDeaths:     out.Series.TotalDeaths(),
		DurationMS:      out.Duration.Milliseconds(),
		CreatedAtUTC:    time.Now().UTC().Format(createdAtLayout),
	}
	if out.Err != nil {
		record.Error = out.Err.Error()
	}
	return record
}
