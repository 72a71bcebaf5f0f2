package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demosim/internal/model"
)

func runRecord(batch, dir string, status model.Status, created string) model.RunRecord {
	return model.RunRecord{
		BatchID:         batch,
		OutputDir:       dir,
		Seed:            42,
		Status:          status,
		Steps:           10,
		FinalPopulation: 480,
		TotalBirths:     12,
		TotalDeaths:     32,
		DurationMS:      5,
		CreatedAtUTC:    created,
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	batch := uuid.NewString()
	other := uuid.NewString()
	prefix := "/runs/" + batch

	records := []model.RunRecord{
		runRecord(batch, prefix+"/rep=1", model.StatusSuccessful, "2026-01-01T00:00:02Z"),
		runRecord(batch, prefix+"/rep=0", model.StatusSuccessful, "2026-01-01T00:00:01Z"),
		runRecord(batch, prefix+"/rep=2", model.StatusSkipped, "2026-01-01T00:00:03Z"),
		runRecord(other, prefix+"/other", model.StatusError, "2026-01-01T00:00:00Z"),
	}
	for _, r := range records {
		require.NoError(t, store.SaveRun(ctx, r))
	}

	got, ok, err := store.GetRun(ctx, prefix+"/rep=0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, CurrentVersion(), got.VersionedRecord)
	assert.Equal(t, 480, got.FinalPopulation)

	_, ok, err = store.GetRun(ctx, prefix+"/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := store.ListRuns(ctx, RunFilter{BatchID: batch})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, prefix+"/rep=0", list[0].OutputDir)
	assert.Equal(t, prefix+"/rep=1", list[1].OutputDir)
	assert.Equal(t, prefix+"/rep=2", list[2].OutputDir)

	skipped := model.StatusSkipped
	list, err = store.ListRuns(ctx, RunFilter{BatchID: batch, Status: &skipped})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, prefix+"/rep=2", list[0].OutputDir)

	list, err = store.ListRuns(ctx, RunFilter{BatchID: batch, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	updated := records[2]
	updated.Status = model.StatusSuccessful
	require.NoError(t, store.SaveRun(ctx, updated))
	got, ok, err = store.GetRun(ctx, updated.OutputDir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusSuccessful, got.Status)

	assert.Error(t, store.SaveRun(ctx, model.RunRecord{BatchID: batch}))

	stale := runRecord(batch, prefix+"/stale", model.StatusSuccessful, "2026-01-01T00:00:04Z")
	stale.VersionedRecord = model.VersionedRecord{SchemaVersion: 99, CodecVersion: 1}
	err = store.SaveRun(ctx, stale)
	assert.True(t, errors.Is(err, ErrVersionMismatch))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	exerciseStore(t, store)
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	err := NewMemoryStore().SaveRun(context.Background(), runRecord("b", "/x", model.StatusSuccessful, ""))
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "demosim.db")
	store := NewSQLiteStore(path)
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)

	require.NoError(t, store.Close())
	reopened := NewSQLiteStore(path)
	require.NoError(t, reopened.Init(ctx))
	t.Cleanup(func() { _ = reopened.Close() })
	list, err := reopened.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestSQLiteStoreRequiresPathAndInit(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, NewSQLiteStore("").Init(ctx))
	_, _, err := NewSQLiteStore("unused.db").GetRun(ctx, "/x")
	assert.Error(t, err)
}

// Set DEMOSIM_TEST_POSTGRES_DSN to run against a live database.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DEMOSIM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DEMOSIM_TEST_POSTGRES_DSN not set")
	}
	store := NewPostgresStore(dsn)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func TestPostgresStoreRequiresDSN(t *testing.T) {
	assert.Error(t, NewPostgresStore("").Init(context.Background()))
}

func TestDecodeRunRecordRejectsVersionMismatch(t *testing.T) {
	_, err := DecodeRunRecord([]byte(`{"schema_version":2,"codec_version":1,"output_dir":"/x"}`))
	assert.True(t, errors.Is(err, ErrVersionMismatch))

	_, err = DecodeRunRecord([]byte(`{`))
	assert.Error(t, err)
}
