// Package postgres records capture progress events in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cardshot/internal/progress"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// EventStoreConfig controls the Postgres connection pool used for event rows.
type EventStoreConfig struct {
	DSN      string
	Table    string
	MaxConns int32
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// EventStore is a progress.Sink that appends every event to a table:
//
//	CREATE TABLE capture_events (
//	  run_id      UUID        NOT NULL,
//	  ts          TIMESTAMPTZ NOT NULL,
//	  stage       TEXT        NOT NULL,
//	  item        TEXT,
//	  worker      INT         NOT NULL,
//	  attempt     INT         NOT NULL,
//	  bytes       BIGINT      NOT NULL,
//	  duration_ms BIGINT      NOT NULL,
//	  note        TEXT
//	);
type EventStore struct {
	pool   execCloser
	table  string
	insert string
}

// NewEventStore connects to cfg.DSN.
func NewEventStore(ctx context.Context, cfg EventStoreConfig) (*EventStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("ledger.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := NewEventStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewEventStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewEventStoreWithPool(pool execCloser, table string) (*EventStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "capture_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &EventStore{
		pool:  pool,
		table: table,
		insert: fmt.Sprintf(`INSERT INTO %s
			(run_id, ts, stage, item, worker, attempt, bytes, duration_ms, note)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, table),
	}, nil
}

// Consume inserts batch in order. The first failed insert stops the batch.
func (s *EventStore) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		_, err := s.pool.Exec(ctx, s.insert,
			uuid.UUID(evt.RunID),
			evt.TS.UTC(),
			string(evt.Stage),
			nullable(evt.Item),
			evt.Worker,
			evt.Attempt,
			evt.Bytes,
			evt.Dur.Milliseconds(),
			nullable(evt.Note),
		)
		if err != nil {
			return fmt.Errorf("insert %s event into %s: %w", evt.Stage, s.table, err)
		}
	}
	return nil
}

// Close releases the pool.
func (s *EventStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ progress.Sink = (*EventStore)(nil)
