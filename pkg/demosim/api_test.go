package demosim

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"demosim/internal/archive"
	"demosim/internal/config"
	"demosim/internal/dataextract"
	"demosim/internal/model"
)

func newTestClient(t *testing.T, mutate func(*config.Config)) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.OutputRoot = t.TempDir()
	cfg.Archive.Driver = string(archive.DriverMemory)
	cfg.Params = map[string]any{"initialPopulationSize": 200, "maxTime": 20}
	if mutate != nil {
		mutate(cfg)
	}
	client, err := New(context.Background(), Options{Config: cfg})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func int64Ptr(v int64) *int64 { return &v }

func TestClientRunRunsAndArchive(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{Output: "single", Seed: int64Ptr(42)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.BatchID == "" || summary.Successful != 1 || len(summary.Runs) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	run := summary.Runs[0]
	if run.OutputDir != filepath.Join(client.Config().OutputRoot, "single") || run.Seed != 42 || run.Steps == 0 {
		t.Fatalf("unexpected run result: %+v", run)
	}

	again, err := client.Run(ctx, RunRequest{Output: "single"})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if again.Skipped != 1 {
		t.Fatalf("expected skipped rerun, got %+v", again)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].BatchID != summary.BatchID || runs[0].Status != model.StatusSuccessful {
		t.Fatalf("expected the successful record to be kept: %+v", runs)
	}

	sink := client.sink.(*archive.Memory)
	if _, ok := sink.Get("single/time_series_outputs.csv"); !ok {
		t.Fatalf("expected archived time series, keys=%v", sink.Keys())
	}
}

func TestClientRepsAndExtract(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()

	summary, err := client.Reps(ctx, RepsRequest{RunRequest: RunRequest{Output: "reps"}, Reps: 3})
	if err != nil {
		t.Fatalf("reps: %v", err)
	}
	if summary.Successful != 3 {
		t.Fatalf("expected 3 successful runs, got %+v", summary)
	}

	extracted, err := client.Extract(ctx, ExtractRequest{
		Root:      filepath.Join(client.Config().OutputRoot, "reps"),
		Extractor: "final-population",
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(extracted.Rows) != 1 || extracted.Rows[0].N != 3 {
		t.Fatalf("unexpected extract summary: %+v", extracted)
	}

	points, err := client.Trajectory(ctx, filepath.Join(client.Config().OutputRoot, "reps"))
	if err != nil {
		t.Fatalf("trajectory: %v", err)
	}
	if len(points) == 0 || points[0].N != 3 {
		t.Fatalf("unexpected trajectory: %+v", points)
	}

	_, err = client.Extract(ctx, ExtractRequest{Root: t.TempDir(), Extractor: "growth"})
	if !errors.Is(err, dataextract.ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
	if _, err := client.Extract(ctx, ExtractRequest{Root: t.TempDir(), Extractor: "median"}); err == nil {
		t.Fatal("expected unknown extractor error")
	}
}

func TestClientSweepFromFile(t *testing.T) {
	client := newTestClient(t, nil)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "sweep.yaml")
	writeFile(t, path, `
base:
  maxTime: 10
params:
  - name: fertilityRate
    values: [0.05, 0.1]
reps: 2
workers: 2
output: fertility
`)
	summary, err := client.SweepFromFile(ctx, SweepFileRequest{Path: path, Seed: int64Ptr(7)})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if summary.Successful != 4 {
		t.Fatalf("expected 4 successful runs, got %+v", summary)
	}

	extracted, err := client.Extract(ctx, ExtractRequest{
		Root:      filepath.Join(client.Config().OutputRoot, "fertility"),
		Extractor: "growth",
		Sweep:     true,
	})
	if err != nil {
		t.Fatalf("extract sweep: %v", err)
	}
	if len(extracted.Names) != 1 || extracted.Names[0] != "fertilityRate" || len(extracted.Rows) != 2 {
		t.Fatalf("unexpected sweep summary: %+v", extracted)
	}
	for _, row := range extracted.Rows {
		if row.N != 2 {
			t.Fatalf("expected 2 repeats per cell: %+v", row)
		}
	}

	runs, err := client.Runs(ctx, RunsRequest{BatchID: summary.BatchID, Status: "successful", Limit: 3})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected limit to apply, got %d", len(runs))
	}
	if _, err := client.Runs(ctx, RunsRequest{Status: "done"}); err == nil {
		t.Fatal("expected invalid status error")
	}
}

func TestClientRejectsInvalidInput(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = -1
	if _, err := New(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatal("expected invalid config error")
	}

	client := newTestClient(t, nil)
	if _, err := client.Run(context.Background(), RunRequest{Params: map[string]any{"birthRate": 0.1}}); err == nil {
		t.Fatal("expected unknown parameter error")
	}
	if _, err := client.Reps(context.Background(), RepsRequest{Reps: -1}); err == nil {
		t.Fatal("expected negative reps error")
	}
}

func TestClientWithSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	client := newTestClient(t, func(cfg *config.Config) {
		cfg.Store = config.StoreConfig{Kind: "sqlite", DSN: dbPath}
	})
	ctx := context.Background()
	if _, err := client.Reps(ctx, RepsRequest{RunRequest: RunRequest{Output: "db"}, Reps: 2}); err != nil {
		t.Fatalf("reps: %v", err)
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 indexed runs, got %d", len(runs))
	}
}
