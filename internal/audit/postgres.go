package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgRecorder implements Recorder backed by PostgreSQL.
type pgRecorder struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgres constructs a PostgreSQL-backed recorder.
func NewPostgres(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Recorder {
	return &pgRecorder{dbPool: dbPool, log: log}
}

// EnsureSchema creates the audit table if it does not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS login_audit (
  id uuid PRIMARY KEY,
  kind text NOT NULL,
  account_id text,
  outcome text NOT NULL,
  detail text,
  at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS login_audit_account_idx ON login_audit (account_id, at DESC);
`)
	return err
}

func (p *pgRecorder) Record(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := p.dbPool.Exec(ctx,
		`INSERT INTO login_audit(id, kind, account_id, outcome, detail, at) VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.ID, ev.Kind, ev.AccountID, ev.Outcome, ev.Detail, ev.At)
	if err != nil {
		p.log.Warnw("audit write failed", "kind", ev.Kind, "err", err)
	}
	return err
}
