package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"demosim/internal/model"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name        string
	driver      string
	payloadType string
	// maxOpenConns of 0 leaves the database/sql default.
	maxOpenConns int
	bind         func(n int) string
}

// sqlStore implements Store on database/sql for any dialect.
type sqlStore struct {
	dialect dialect
	dsn     string

	mu sync.RWMutex
	db *sql.DB
}

func (s *sqlStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return fmt.Errorf("%s dsn is required", s.dialect.name)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.dialect.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.dialect.name, err)
	}
	if s.dialect.maxOpenConns > 0 {
		db.SetMaxOpenConns(s.dialect.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping %s: %w", s.dialect.name, err)
	}
	if err := s.createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *sqlStore) SaveRun(ctx context.Context, record model.RunRecord) error {
	if record.OutputDir == "" {
		return errors.New("run record requires an output directory")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRunRecord(record)
	if err != nil {
		return err
	}
	if record.VersionedRecord == (model.VersionedRecord{}) {
		record.VersionedRecord = CurrentVersion()
	}

	b := s.dialect.bind
	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO runs (output_dir, batch_id, status, created_at_utc, schema_version, codec_version, payload)
		VALUES (%s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT(output_dir) DO UPDATE SET
			batch_id = excluded.batch_id,
			status = excluded.status,
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, b(1), b(2), b(3), b(4), b(5), b(6), b(7)),
		record.OutputDir, record.BatchID, int(record.Status), record.CreatedAtUTC,
		record.SchemaVersion, record.CodecVersion, payload)
	if err != nil {
		return fmt.Errorf("save run %s: %w", record.OutputDir, err)
	}
	return nil
}

func (s *sqlStore) GetRun(ctx context.Context, outputDir string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	query := fmt.Sprintf(`SELECT payload FROM runs WHERE output_dir = %s`, s.dialect.bind(1))
	err = db.QueryRowContext(ctx, query, outputDir).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	record, err := DecodeRunRecord(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", outputDir, err)
	}
	return record, true, nil
}

func (s *sqlStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		where = append(where, "batch_id = "+s.dialect.bind(len(args)))
	}
	if filter.Status != nil {
		args = append(args, int(*filter.Status))
		where = append(where, "status = "+s.dialect.bind(len(args)))
	}

	var query strings.Builder
	query.WriteString("SELECT payload FROM runs")
	if len(where) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(where, " AND "))
	}
	query.WriteString(" ORDER BY created_at_utc, output_dir")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query.WriteString(" LIMIT " + s.dialect.bind(len(args)))
	}

	rows, err := db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RunRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		record, err := DecodeRunRecord(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqlStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func (s *sqlStore) createTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS runs (
			output_dir TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			status INTEGER NOT NULL,
			created_at_utc TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload %s NOT NULL
		)`, s.dialect.payloadType),
		`CREATE INDEX IF NOT EXISTS runs_batch_id_idx ON runs (batch_id)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s tables: %w", s.dialect.name, err)
		}
	}
	return nil
}
