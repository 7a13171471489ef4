// Package journal persists cycle reports, decisions, and policy history
// to Postgres. It is optional and strictly best-effort: a missing DSN
// disables it and write failures are logged, never propagated into the
// control loop.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/ploylabs/ploy/internal/governance"
	"github.com/ploylabs/ploy/internal/scan"
)

type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS cycle_reports (
	id          TEXT PRIMARY KEY,
	agent       TEXT NOT NULL,
	domain      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	scanned     INT NOT NULL,
	eligible    INT NOT NULL,
	judged      INT NOT NULL,
	dispatched  BOOLEAN NOT NULL,
	report      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS decisions (
	id         BIGSERIAL PRIMARY KEY,
	cycle_id   TEXT NOT NULL REFERENCES cycle_reports(id),
	market     TEXT NOT NULL,
	action     TEXT NOT NULL,
	reason     TEXT NOT NULL,
	edge       DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS policy_history (
	version    INT PRIMARY KEY,
	committed  TIMESTAMPTZ NOT NULL,
	author     TEXT NOT NULL,
	reason     TEXT NOT NULL,
	document   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Journal writes the decision trail to Postgres. A nil or disabled
// journal is safe to call.
type Journal struct {
	db      *sqlx.DB
	timeout time.Duration
	log     zerolog.Logger
}

// Open connects and prepares the schema. An empty DSN returns a
// disabled journal and no error.
func Open(cfg Config, log zerolog.Logger) (*Journal, error) {
	jlog := log.With().Str("component", "journal").Logger()
	if cfg.DSN == "" {
		jlog.Info().Msg("journal disabled, no DSN configured")
		return &Journal{log: jlog}, nil
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare journal schema: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().QueryTimeout
	}
	return &Journal{db: db, timeout: timeout, log: jlog}, nil
}

func (j *Journal) Enabled() bool {
	return j != nil && j.db != nil
}

func (j *Journal) Close() error {
	if !j.Enabled() {
		return nil
	}
	return j.db.Close()
}

// RecordCycle persists a finished cycle report and its per-candidate
// decision lines.
func (j *Journal) RecordCycle(ctx context.Context, report scan.CycleReport) {
	if !j.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	blob, err := json.Marshal(report)
	if err != nil {
		j.log.Error().Err(err).Str("cycle", report.ID).Msg("cycle report marshal failed")
		return
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO cycle_reports
			(id, agent, domain, started_at, finished_at, scanned, eligible, judged, dispatched, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		report.ID, report.Agent, report.Domain, report.StartedAt, report.FinishedAt,
		report.Scanned, report.Eligible, report.Judged, report.Order != nil, blob)
	if err != nil {
		j.log.Error().Err(err).Str("cycle", report.ID).Msg("cycle report insert failed")
		return
	}

	for _, line := range report.Lines {
		if _, err := j.db.ExecContext(ctx, `
			INSERT INTO decisions (cycle_id, market, action, reason, edge)
			VALUES ($1, $2, $3, $4, $5)`,
			report.ID, line.Market, line.Action, line.Reason, line.Edge); err != nil {
			j.log.Error().Err(err).Str("cycle", report.ID).Str("market", line.Market).Msg("decision insert failed")
		}
	}
}

// PolicyCommitted implements governance.Sink.
func (j *Journal) PolicyCommitted(entry governance.HistoryEntry) {
	if !j.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	doc, err := json.Marshal(entry.Document)
	if err != nil {
		j.log.Error().Err(err).Int("version", entry.Version).Msg("policy document marshal failed")
		return
	}
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO policy_history (version, committed, author, reason, document)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (version) DO NOTHING`,
		entry.Version, entry.Timestamp, entry.Author, entry.Reason, doc); err != nil {
		j.log.Error().Err(err).Int("version", entry.Version).Msg("policy history insert failed")
	}
}
