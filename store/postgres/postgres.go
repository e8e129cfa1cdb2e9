// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

// Package postgres keeps the key-value space in a single two-column table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DefaultTable = "deltawatch_kv"

	connectTimeout = 10 * time.Second
)

type Store struct {
	Pool  *pgxpool.Pool
	table string
}

// New wraps an open pool. Call Migrate before first use.
func New(pool *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{Pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		key   TEXT PRIMARY KEY,
		value BYTEA NOT NULL
	)`)
	return err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.Pool.QueryRow(ctx, `SELECT value FROM `+s.table+` WHERE key = $1`, key).Scan(&value)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO `+s.table+` (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE key = $1`, key)
	return err
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `INSERT INTO `+s.table+` (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING`, key, value)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE `+s.table+` SET value = $3 WHERE key = $1 AND value = $2`, key, old, new)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Close() error {
	s.Pool.Close()
	return nil
}

func Build(config map[string]string) (core.Store, error) {
	var (
		url      = config["url"]
		table    = config["table"]
		maxConns = config["max_conns"]
	)
	if url == "" {
		return nil, fmt.Errorf("postgres: require [url]")
	}

	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	if maxConns != "" {
		n, err := strconv.ParseInt(maxConns, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("postgres: max_conns: %v", err)
		}
		if n < 1 {
			return nil, fmt.Errorf("postgres: max_conns: want at least 1, got %d", n)
		}
		pcfg.MaxConns = int32(n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %v", err)
	}

	s := New(pool, table)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %v", err)
	}
	return s, nil
}

func init() {
	core.StoreBuilders["postgres"] = Build
}
