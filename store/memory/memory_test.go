// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package memory

import (
	"context"
	"testing"

	"github.com/autodns/deltawatch/core"
	"github.com/autodns/deltawatch/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) core.Store { return New() })
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, "domain:b.com", []byte("{}")))
	require.NoError(t, s.Put(ctx, "domain:a.com:read", []byte("t")))
	require.NoError(t, s.Put(ctx, "domain:a.com", []byte("{}")))
	require.NoError(t, s.Put(ctx, "other", []byte("x")))

	require.Equal(t, []string{"domain:a.com", "domain:a.com:read"}, s.Keys("domain:a.com"))
	require.Len(t, s.Keys(""), 4)
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New()
	_, _, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, s.Put(ctx, "k", nil), context.Canceled)
	_, err = s.PutIfAbsent(ctx, "k", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuild(t *testing.T) {
	s, err := core.BuildStore("memory", nil)
	require.NoError(t, err)
	require.IsType(t, &Store{}, s)

	_, err = core.BuildStore("nope", nil)
	require.ErrorContains(t, err, "memory")
}
