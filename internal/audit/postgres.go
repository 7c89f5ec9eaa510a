package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresSink appends events to a `gateway_events` table. Schema
// (assumed pre-migrated, matching the teacher's persistence layer which
// likewise assumes its `trades` table pre-exists):
//
//	CREATE TABLE gateway_events (
//	    id BIGSERIAL PRIMARY KEY,
//	    kind TEXT NOT NULL,
//	    instrument_id TEXT NOT NULL,
//	    client_id TEXT,
//	    broker TEXT,
//	    snapshot JSONB,
//	    at TIMESTAMPTZ NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresSink struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresSink opens a sqlx connection against dsn.
func NewPostgresSink(dsn string, timeout time.Duration) (*PostgresSink, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to connect to postgres: %w", err)
	}
	return &PostgresSink{db: db, timeout: timeout}, nil
}

// Record inserts one event. A duplicate primary key (should the caller
// ever retry with an externally assigned id) is reported distinctly via
// the pq.Error code check, matching the teacher's trades repository.
func (s *PostgresSink) Record(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var snapJSON []byte
	if ev.Snapshot != nil {
		b, err := json.Marshal(ev.Snapshot)
		if err != nil {
			return fmt.Errorf("audit: failed to marshal snapshot: %w", err)
		}
		snapJSON = b
	}

	const query = `
		INSERT INTO gateway_events (kind, instrument_id, client_id, broker, snapshot, at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		ev.Kind, ev.InstrumentID, nullIfEmpty(ev.ClientID), nullIfEmpty(ev.Broker), snapJSON, ev.At)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("audit: duplicate event: %w", err)
		}
		return fmt.Errorf("audit: failed to insert event: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
