// Copyright 2025 Jelly Terra <jellyterra@symboltics.com>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

//go:build integration

package redis

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/autodns/deltawatch/store/storetest"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestContractRedisServer(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := rueidis.ParseURL(url)
	require.NoError(t, err)

	// Every test gets its own key space on the shared server.
	var n atomic.Int32
	storetest.Run(t, func(t *testing.T) core.Store {
		client, err := rueidis.NewClient(opt)
		require.NoError(t, err)
		return New(client, "test"+strconv.Itoa(int(n.Add(1)))+":")
	})
}
