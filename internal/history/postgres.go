package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/metrics"
	"github.com/kamkard/gltfview/internal/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS load_attempts (
	id          UUID PRIMARY KEY,
	seq         BIGINT NOT NULL,
	source      TEXT NOT NULL,
	root        TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	scene_id    TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL,
	report      JSONB
);
CREATE INDEX IF NOT EXISTS load_attempts_started_idx ON load_attempts (started_at DESC);
CREATE INDEX IF NOT EXISTS load_attempts_scene_idx ON load_attempts (scene_id);
`

// Postgres is a PostgreSQL-backed recorder.
type Postgres struct {
	db    *sql.DB
	retry retry.Config
}

// NewPostgres opens the database and creates the schema.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logging.Warn("history write failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	return &Postgres{db: db, retry: cfg}, nil
}

func (p *Postgres) RecordAttempt(ctx context.Context, a Attempt) error {
	err := retry.Do(ctx, p.retry, func() error {
		_, err := p.db.ExecContext(ctx,
			`INSERT INTO load_attempts (id, seq, source, root, outcome, kind, message, scene_id, started_at, duration_ms)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO NOTHING`,
			a.ID, int64(a.Seq), a.Source, a.Root, a.Outcome, a.Kind, a.Message, a.SceneID, a.StartedAt, a.DurationMs)
		return markTransient(err)
	})
	metrics.RecordHistoryWrite(err == nil)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (p *Postgres) RecordReport(ctx context.Context, sceneID string, report json.RawMessage) error {
	err := retry.Do(ctx, p.retry, func() error {
		_, err := p.db.ExecContext(ctx,
			`UPDATE load_attempts SET report = $1 WHERE scene_id = $2`,
			[]byte(report), sceneID)
		return markTransient(err)
	})
	metrics.RecordHistoryWrite(err == nil)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, seq, source, root, outcome, kind, message, scene_id, started_at, duration_ms, report
		 FROM load_attempts ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var seq int64
		var report []byte
		if err := rows.Scan(&a.ID, &seq, &a.Source, &a.Root, &a.Outcome, &a.Kind,
			&a.Message, &a.SceneID, &a.StartedAt, &a.DurationMs, &report); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Seq = uint64(seq)
		if len(report) > 0 {
			a.Report = json.RawMessage(report)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// markTransient wraps connection-level and serialization failures so they are
// retried.
func markTransient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) {
		return retry.Retryable(err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return retry.Retryable(err)
		}
	}
	return err
}
