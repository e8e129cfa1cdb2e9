// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewQuotesTable(t *testing.T) {
	require.Equal(t, `"deltawatch_kv"`, New(nil, "").table)
	require.Equal(t, `"weird""name"`, New(nil, `weird"name`).table)
}

func TestBuildValidates(t *testing.T) {
	_, err := Build(map[string]string{})
	require.ErrorContains(t, err, "require [url]")

	_, err = Build(map[string]string{"url": "postgres://localhost/db", "max_conns": "many"})
	require.ErrorContains(t, err, "max_conns")

	for _, n := range []string{"0", "-3", "4294967296"} {
		_, err = Build(map[string]string{"url": "postgres://localhost/db", "max_conns": n})
		require.ErrorContains(t, err, "max_conns", n)
	}

	_, err = Build(map[string]string{"url": "::not a url::"})
	require.Error(t, err)
}
