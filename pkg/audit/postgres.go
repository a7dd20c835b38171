// pkg/audit/postgres.go
package audit

import (
	"context"
	"time"

	"chartex/pkg/middleware"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type pgRecorder struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

// NewPostgres returns a recorder persisting audit rows, falling back to the
// log when an insert fails. Auditing must never block the exchange itself.
func NewPostgres(pool *pgxpool.Pool, log *zap.SugaredLogger) Recorder {
	return &pgRecorder{pool: pool, log: log}
}

// EnsureSchema creates the audit table if missing. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS impersonation_events (
  id bigserial PRIMARY KEY,
  service_id text NOT NULL,
  installation_id text NOT NULL,
  request_id text,
  occurred_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS impersonation_events_installation_idx
  ON impersonation_events(installation_id, occurred_at);
`)
	return err
}

func (p *pgRecorder) Impersonation(ctx context.Context, serviceID, installationID string) {
	reqID := middleware.RequestIDFrom(ctx)
	p.log.Infow("impersonation exchange",
		"service", serviceID,
		"installation", installationID,
		"request_id", reqID,
	)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO impersonation_events(service_id, installation_id, request_id, occurred_at)
		VALUES ($1,$2,$3,$4)
	`, serviceID, installationID, reqID, time.Now().UTC())
	if err != nil {
		p.log.Warnw("audit insert failed", "err", err)
	}
}
