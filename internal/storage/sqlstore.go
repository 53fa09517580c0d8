package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"districtevo/internal/model"
)

// dialect holds what differs between the SQL backends.
type dialect struct {
	driver      string
	payloadType string
	positional  bool
}

var (
	sqliteDialect   = dialect{driver: "sqlite", payloadType: "BLOB"}
	postgresDialect = dialect{driver: "pgx", payloadType: "BYTEA", positional: true}
)

// rebind rewrites ? placeholders to $n for dialects with positional
// parameters.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements Store over database/sql. The SQLite and Postgres
// stores differ only in driver and dialect.
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
		return fmt.Errorf("%s dsn is required", s.dialect.driver)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.dialect.driver, s.dsn)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := s.createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
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
		return nil, errNotInitialized
	}
	return s.db, nil
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.dialect.rebind(query), args...)
	return err
}

// payload reads a single payload column; ok is false when no row matched.
func (s *sqlStore) payload(ctx context.Context, query string, args ...any) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, s.dialect.rebind(query), args...).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *sqlStore) SaveGeneration(ctx context.Context, snapshot model.GenerationSnapshot) error {
	payload, err := EncodeGeneration(snapshot)
	if err != nil {
		return err
	}
	stamp(&snapshot.VersionedRecord)
	return s.exec(ctx, `
		INSERT INTO generations (run_id, generation, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, snapshot.RunID, snapshot.Generation, snapshot.SchemaVersion, snapshot.CodecVersion, payload)
}

func (s *sqlStore) GetGeneration(ctx context.Context, runID string, generation int) (model.GenerationSnapshot, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM generations WHERE run_id = ? AND generation = ?`, runID, generation)
	if err != nil || !ok {
		return model.GenerationSnapshot{}, false, err
	}
	snapshot, err := DecodeGeneration(payload)
	if err != nil {
		return model.GenerationSnapshot{}, false, fmt.Errorf("decode generation %s/%d: %w", runID, generation, err)
	}
	return snapshot, true, nil
}

func (s *sqlStore) LatestGeneration(ctx context.Context, runID string) (model.GenerationSnapshot, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM generations WHERE run_id = ? ORDER BY generation DESC LIMIT 1`, runID)
	if err != nil || !ok {
		return model.GenerationSnapshot{}, false, err
	}
	snapshot, err := DecodeGeneration(payload)
	if err != nil {
		return model.GenerationSnapshot{}, false, fmt.Errorf("decode latest generation %s: %w", runID, err)
	}
	return snapshot, true, nil
}

func (s *sqlStore) SaveRun(ctx context.Context, summary model.RunSummary) error {
	payload, err := EncodeRun(summary)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		INSERT INTO runs (run_id, started_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			started_at = excluded.started_at,
			payload = excluded.payload
	`, summary.RunID, summary.StartedAt.UnixNano(), payload)
}

func (s *sqlStore) GetRun(ctx context.Context, runID string) (model.RunSummary, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID)
	if err != nil || !ok {
		return model.RunSummary{}, false, err
	}
	summary, err := DecodeRun(payload)
	if err != nil {
		return model.RunSummary{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return summary, true, nil
}

func (s *sqlStore) ListRuns(ctx context.Context) ([]model.RunSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT payload FROM runs ORDER BY started_at, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.RunSummary, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		summary, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *sqlStore) SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	payload, err := EncodeGenerationDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.saveRunPayload(ctx, "diagnostics", runID, payload)
}

func (s *sqlStore) GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM diagnostics WHERE run_id = ?`, runID)
	if err != nil || !ok {
		return nil, false, err
	}
	diagnostics, err := DecodeGenerationDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *sqlStore) SaveHallOfFame(ctx context.Context, runID string, records []model.HallOfFameRecord) error {
	payload, err := EncodeHallOfFame(records)
	if err != nil {
		return err
	}
	return s.saveRunPayload(ctx, "hall_of_fame", runID, payload)
}

func (s *sqlStore) GetHallOfFame(ctx context.Context, runID string) ([]model.HallOfFameRecord, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM hall_of_fame WHERE run_id = ?`, runID)
	if err != nil || !ok {
		return nil, false, err
	}
	records, err := DecodeHallOfFame(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode hall of fame %s: %w", runID, err)
	}
	return records, true, nil
}

func (s *sqlStore) SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	return s.saveRunPayload(ctx, "lineage", runID, payload)
}

func (s *sqlStore) GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM lineage WHERE run_id = ?`, runID)
	if err != nil || !ok {
		return nil, false, err
	}
	lineage, err := DecodeLineage(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode lineage %s: %w", runID, err)
	}
	return lineage, true, nil
}

// saveRunPayload upserts into one of the per-run tables; table is always a
// package constant.
func (s *sqlStore) saveRunPayload(ctx context.Context, table, runID string, payload []byte) error {
	return s.exec(ctx, `
		INSERT INTO `+table+` (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
}

func (s *sqlStore) createTables(ctx context.Context, db *sql.DB) error {
	payload := s.dialect.payloadType
	statements := []string{
		`CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload ` + payload + ` NOT NULL,
			PRIMARY KEY (run_id, generation)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at BIGINT NOT NULL,
			payload ` + payload + ` NOT NULL
		)`,
	}
	for _, table := range []string{"diagnostics", "hall_of_fame", "lineage"} {
		statements = append(statements, `CREATE TABLE IF NOT EXISTS `+table+` (
			run_id TEXT PRIMARY KEY,
			payload `+payload+` NOT NULL
		)`)
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
