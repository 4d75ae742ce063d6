/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createLogsTable = `CREATE TABLE IF NOT EXISTS golmi_logs (
	name       TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	body       JSONB NOT NULL
)`

// PostgresStore keeps logs as JSONB rows in golmi_logs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, createLogsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Save(ctx context.Context, now time.Time, body []byte) (string, error) {
	return saveUnique(now, func(name string) error {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO golmi_logs (name, created_at, body) VALUES ($1, $2, $3)
			 ON CONFLICT (name) DO NOTHING`,
			name, now, string(body),
		)
		if err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrExists
		}
		return nil
	})
}

func (s *PostgresStore) Load(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := s.pool.QueryRow(ctx, `SELECT body::text FROM golmi_logs WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load log: %w", err)
	}
	return []byte(body), nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM golmi_logs ORDER BY name COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
