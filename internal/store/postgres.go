package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/db"
	"github.com/sells-group/coi-audit/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgInsertRun = `INSERT INTO runs (id, status, directory, roster, window_start, window_end, total, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	pgFinishRun = `UPDATE runs SET status = $1, state_counts = $2, error = $3, updated_at = $4 WHERE id = $5`
	pgRunCols   = `id, status, directory, roster, window_start, window_end, total, state_counts, error, created_at, updated_at`
	pgGetRun    = `SELECT ` + pgRunCols + ` FROM runs WHERE id = $1`
	pgResults   = `SELECT run_id, position, subcontractor_id, name, state, confidence, action, destination, legacy_status, gap_summary, detail FROM audit_results WHERE run_id = $1 ORDER BY position`
)

// Statement names prepared on every pooled connection. Queries pass the
// name in place of the SQL text so pgx executes the prepared statement.
const (
	stmtInsertRun   = "insert_run"
	stmtFinishRun   = "finish_run"
	stmtGetRun      = "get_run"
	stmtListResults = "list_results"
)

var preparedStatements = map[string]string{
	stmtInsertRun:   pgInsertRun,
	stmtFinishRun:   pgFinishRun,
	stmtGetRun:      pgGetRun,
	stmtListResults: pgResults,
}

var resultColumns = []string{
	"run_id", "position", "subcontractor_id", "name", "state", "confidence",
	"action", "destination", "legacy_status", "gap_summary", "detail",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	zap.L().Debug("postgres: pool ready", zap.Int32("max_conns", maxConns), zap.Int32("min_conns", minConns))
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status       TEXT NOT NULL DEFAULT 'running',
	directory    TEXT NOT NULL,
	roster       TEXT NOT NULL DEFAULT '',
	window_start DATE NOT NULL,
	window_end   DATE NOT NULL,
	total        INTEGER NOT NULL DEFAULT 0,
	state_counts JSONB,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_results (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	position         INTEGER NOT NULL,
	subcontractor_id TEXT NOT NULL,
	name             TEXT NOT NULL,
	state            TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	action           TEXT NOT NULL,
	destination      TEXT NOT NULL,
	legacy_status    TEXT NOT NULL,
	gap_summary      TEXT NOT NULL DEFAULT '',
	detail           JSONB,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_results_state ON audit_results(run_id, state);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.Status = model.RunStatusRunning
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := s.pool.Exec(ctx, stmtInsertRun,
		run.ID, string(run.Status), run.Directory, run.Roster,
		run.Window.Start, run.Window.End, run.Total, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, counts map[string]int, runErr string) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal state counts")
	}
	tag, err := s.pool.Exec(ctx, stmtFinishRun,
		string(status), countsJSON, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, stmtGetRun, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunCols + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// SaveResults upserts on (run_id, position) so a retried save is idempotent.
func (s *PostgresStore) SaveResults(ctx context.Context, runID string, records []model.AuditRecord) error {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		var detail any
		if len(rec.Detail) > 0 {
			detail = string(rec.Detail)
		}
		rows = append(rows, []any{
			runID, rec.Position, rec.SubcontractorID, rec.Name, rec.State, rec.Confidence,
			rec.Action, rec.Destination, rec.LegacyStatus, rec.GapSummary, detail,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "audit_results",
		Columns:      resultColumns,
		ConflictKeys: []string{"run_id", "position"},
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: save results for run %s", runID)
	}
	zap.L().Debug("postgres: results saved", zap.String("run_id", runID), zap.Int64("rows", n))
	return nil
}

func (s *PostgresStore) ListResults(ctx context.Context, runID string) ([]model.AuditRecord, error) {
	rows, err := s.pool.Query(ctx, stmtListResults, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list results %s", runID)
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		var detail []byte
		if err := rows.Scan(&rec.RunID, &rec.Position, &rec.SubcontractorID, &rec.Name, &rec.State,
			&rec.Confidence, &rec.Action, &rec.Destination, &rec.LegacyStatus, &rec.GapSummary, &detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		if len(detail) > 0 {
			rec.Detail = json.RawMessage(detail)
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate results")
}

func scanPgRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var counts []byte

	if err := row.Scan(&r.ID, &status, &r.Directory, &r.Roster, &r.Window.Start, &r.Window.End,
		&r.Total, &counts, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &r.StateCounts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal state counts")
		}
	}
	return &r, nil
}
