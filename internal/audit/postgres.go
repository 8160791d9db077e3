package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewSink creates a postgres-backed sink when configured, otherwise nil
// (events then live only in the log and the in-memory ring).
func NewSink(ctx context.Context, databaseURL string) (Sink, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	return NewPostgresSink(ctx, databaseURL)
}

// PostgresSink persists security events in PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS security_events (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			admin_id TEXT,
			remote_addr TEXT,
			operation TEXT,
			reason TEXT,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_occurred ON security_events (occurred_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresSink) Save(ctx context.Context, ev Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO security_events (id, code, admin_id, remote_addr, operation, reason, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.Code, ev.AdminID, ev.RemoteAddr, ev.Operation, ev.Reason, ev.At,
	)
	if err != nil {
		return fmt.Errorf("save security event: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() {
	s.pool.Close()
}
