package demosim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"demosim/internal/archive"
	"demosim/internal/config"
	"demosim/internal/dataextract"
	"demosim/internal/logging"
	"demosim/internal/metrics"
	"demosim/internal/model"
	"demosim/internal/params"
	"demosim/internal/platform"
	"demosim/internal/sim"
	"demosim/internal/storage"
)

type Options struct {
	// Config defaults to config.Default() when nil.
	Config *config.Config
	Logger *slog.Logger
}

// Client runs simulations with the store, archive and metrics described by
// its configuration.
type Client struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Store
	sink    archive.Sink
	metrics *metrics.Recorder
}

type RunRequest struct {
	// Params overrides the configured parameter set.
	Params map[string]any
	// Output names the run directory. Relative paths are placed under the
	// configured output root.
	Output  string
	Seed    *int64
	Verbose bool
}

type RepsRequest struct {
	RunRequest
	Reps int
}

type SweepRequest struct {
	RunRequest
	Names   []string
	Values  [][]any
	Reps    int
	Workers int
}

// SweepFileRequest names a sweep file and the settings a sweep file does not
// carry. Workers > 0 overrides the file's pool size.
type SweepFileRequest struct {
	Path    string
	Seed    *int64
	Workers int
	Verbose bool
}

type RunResult struct {
	OutputDir       string
	Status          model.Status
	Seed            int64
	Steps           int
	FinalPopulation int
	Error           string
}

type BatchSummary struct {
	BatchID    string
	Successful int
	Skipped    int
	Failed     int
	Runs       []RunResult
}

type RunsRequest struct {
	BatchID string
	Status  string
	Limit   int
}

type ExtractRequest struct {
	Root string
	// Extractor is a named scalar extractor: growth or final-population.
	Extractor string
	// Sweep reads Root as a sweep directory instead of a set of repeats.
	Sweep  bool
	NoReps bool
}

type ExtractSummary struct {
	Names []string
	Rows  []dataextract.CellSummary
}

func New(ctx context.Context, opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, fmt.Errorf("init %s store: %w", cfg.Store.Kind, err)
	}
	sink, err := archive.NewSink(ctx, cfg.ArchiveSinkConfig())
	if err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, fmt.Errorf("archive: %w", err)
	}

	return &Client{
		cfg:     cfg,
		logger:  logging.OrDiscard(opts.Logger),
		store:   store,
		sink:    sink,
		metrics: metrics.NewRecorder(cfg.Metrics.Runtime),
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Config() *config.Config { return c.cfg }

func (c *Client) Metrics() *metrics.Recorder { return c.metrics }

// Run executes one simulation.
func (c *Client) Run(ctx context.Context, req RunRequest) (BatchSummary, error) {
	p, err := c.params(req)
	if err != nil {
		return BatchSummary{}, err
	}
	report, err := c.scheduler(0).RunSingle(ctx, p, c.runOptions(req))
	if err != nil {
		return BatchSummary{}, err
	}
	return summarize(report), nil
}

// Reps executes req.Reps repeats below the run directory.
func (c *Client) Reps(ctx context.Context, req RepsRequest) (BatchSummary, error) {
	p, err := c.params(req.RunRequest)
	if err != nil {
		return BatchSummary{}, err
	}
	report, err := c.scheduler(0).RunReps(ctx, p, req.Reps, c.runOptions(req.RunRequest))
	if err != nil {
		return BatchSummary{}, err
	}
	return summarize(report), nil
}

// Sweep runs the cross product of req.Values. Workers > 0 overrides the
// configured pool size.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (BatchSummary, error) {
	p, err := c.params(req.RunRequest)
	if err != nil {
		return BatchSummary{}, err
	}
	sweep := platform.Sweep{Names: req.Names, Values: req.Values}
	report, err := c.scheduler(req.Workers).RunSweep(ctx, p, sweep, req.Reps, c.runOptions(req.RunRequest))
	if err != nil {
		return BatchSummary{}, err
	}
	return summarize(report), nil
}

// SweepFromFile runs the sweep described by a sweep file.
func (c *Client) SweepFromFile(ctx context.Context, req SweepFileRequest) (BatchSummary, error) {
	file, err := config.LoadSweepFile(req.Path)
	if err != nil {
		return BatchSummary{}, err
	}
	workers := file.Workers
	if req.Workers > 0 {
		workers = req.Workers
	}
	names, values := file.Split()
	return c.Sweep(ctx, SweepRequest{
		RunRequest: RunRequest{Params: file.Base, Output: file.Output, Seed: req.Seed, Verbose: req.Verbose},
		Names:      names,
		Values:     values,
		Reps:       file.Reps,
		Workers:    workers,
	})
}

// Runs lists indexed runs, oldest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	filter := storage.RunFilter{BatchID: req.BatchID, Limit: req.Limit}
	if req.Status != "" {
		status, err := model.ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	return c.store.ListRuns(ctx, filter)
}

// Extract summarises a scalar over the repeats or the sweep cells below
// req.Root.
func (c *Client) Extract(_ context.Context, req ExtractRequest) (ExtractSummary, error) {
	if req.Root == "" {
		return ExtractSummary{}, errors.New("extract root is required")
	}
	extract, err := dataextract.ScalarExtractor(req.Extractor)
	if err != nil {
		return ExtractSummary{}, err
	}
	if !req.Sweep {
		values, err := dataextract.FromRepeats(req.Root, extract)
		if err != nil {
			return ExtractSummary{}, err
		}
		if len(values) == 0 {
			return ExtractSummary{}, fmt.Errorf("%w: no rep=0 directory in %s", dataextract.ErrNoOutput, req.Root)
		}
		return ExtractSummary{Rows: []dataextract.CellSummary{{Summary: dataextract.Summarize(values)}}}, nil
	}
	grid, err := dataextract.FromSweep(req.Root, extract, dataextract.SweepOptions{NoReps: req.NoReps})
	if err != nil {
		return ExtractSummary{}, err
	}
	return ExtractSummary{Names: grid.Names, Rows: dataextract.SummarizeGrid(grid)}, nil
}

// Trajectory summarises population size per step across the repeats below
// root.
func (c *Client) Trajectory(_ context.Context, root string) ([]dataextract.TrajectoryPoint, error) {
	if root == "" {
		return nil, errors.New("trajectory root is required")
	}
	return dataextract.PopSizeTrajectory(root)
}

func (c *Client) params(req RunRequest) (params.Params, error) {
	base, err := c.cfg.BaseParams()
	if err != nil {
		return params.Params{}, err
	}
	p, err := base.Override(req.Params)
	if err != nil {
		return params.Params{}, err
	}
	if req.Output != "" {
		dir := req.Output
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(c.cfg.OutputRoot, dir)
		}
		p = p.WithOutputDirectory(dir)
	}
	return p, nil
}

func (c *Client) runOptions(req RunRequest) sim.RunOptions {
	return sim.RunOptions{
		SkipIfExists: c.cfg.SkipIfExists,
		Seed:         req.Seed,
		Verbose:      req.Verbose,
	}
}

func (c *Client) scheduler(workers int) *platform.Scheduler {
	if workers <= 0 {
		workers = c.cfg.Workers
	}
	return platform.NewScheduler(platform.Config{
		Workers:     workers,
		UnitTimeout: c.cfg.UnitTimeout,
		Logger:      c.logger,
		Store:       c.store,
		Metrics:     c.metrics,
		Archive:     c.sink,
		ArchiveRoot: c.cfg.OutputRoot,
	})
}

func summarize(report platform.Report) BatchSummary {
	summary := BatchSummary{BatchID: report.BatchID, Runs: make([]RunResult, 0, len(report.Outcomes))}
	for _, out := range report.Outcomes {
		result := RunResult{
			OutputDir:       out.OutputDir,
			Status:          out.Status,
			Seed:            out.Seed,
			Steps:           out.Series.Len(),
			FinalPopulation: max(out.Series.Final(), 0),
		}
		if out.Err != nil {
			result.Error = out.Err.Error()
		}
		switch out.Status {
		case model.StatusSuccessful:
			summary.Successful++
		case model.StatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		summary.Runs = append(summary.Runs, result)
	}
	return summary
}
