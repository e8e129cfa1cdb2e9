// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

//go:build integration

package postgres

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/autodns/deltawatch/store/storetest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("deltawatch"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestContractPostgres(t *testing.T) {
	dsn := startPostgres(t)

	var n atomic.Int32
	storetest.Run(t, func(t *testing.T) core.Store {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		require.NoError(t, err)

		s := New(pool, "kv_"+strconv.Itoa(int(n.Add(1))))
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}

func TestBuildPostgres(t *testing.T) {
	dsn := startPostgres(t)

	s, err := core.BuildStore("postgres", map[string]string{"url": dsn, "table": "built", "max_conns": "2"})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, int32(2), s.(*Store).Pool.Config().MaxConns)

	// Migrating twice is harmless.
	require.NoError(t, s.(*Store).Migrate(context.Background()))
}
