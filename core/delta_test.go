// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var at = time.Date(2016, 2, 28, 11, 10, 34, 0, time.UTC)

func TestDiffNew(t *testing.T) {
	events := Diff(Snapshot{"a": "1.1.1.1"}, Snapshot{"a": "1.1.1.1", "b": "2.2.2.2"}, at)
	require.Equal(t, []DeltaEvent{{Kind: KindNew, Hostname: "b", NewAddress: "2.2.2.2", At: at}}, events)
}

func TestDiffUpdated(t *testing.T) {
	events := Diff(Snapshot{"a": "1.1.1.1"}, Snapshot{"a": "1.1.1.2"}, at)
	require.Equal(t, []DeltaEvent{{Kind: KindUpdated, Hostname: "a", OldAddress: "1.1.1.1", NewAddress: "1.1.1.2", At: at}}, events)
}

func TestDiffDeleted(t *testing.T) {
	events := Diff(Snapshot{"c": "3.3.3.3", "a": "1.1.1.1"}, Snapshot{}, at)
	require.Equal(t, []DeltaEvent{
		{Kind: KindDeleted, Hostname: "a", At: at},
		{Kind: KindDeleted, Hostname: "c", At: at},
	}, events)
}

func TestDiffGrouping(t *testing.T) {
	previous := Snapshot{"z": "1", "y": "1", "m": "1", "d": "1"}
	current := Snapshot{"z": "2", "m": "2", "d": "1", "b": "1", "x": "1"}

	var kinds, hostnames []string
	for _, e := range Diff(previous, current, at.Add(999*time.Millisecond)) {
		kinds = append(kinds, string(e.Kind))
		hostnames = append(hostnames, e.Hostname)
		require.Equal(t, at, e.At)
	}
	require.Equal(t, []string{"new", "new", "updated", "updated", "deleted"}, kinds)
	require.Equal(t, []string{"b", "x", "m", "z", "y"}, hostnames)
}

func TestDiffEmpty(t *testing.T) {
	require.Empty(t, Diff(nil, Snapshot{}, at))
	require.Empty(t, Diff(Snapshot{"a": "1"}, Snapshot{"a": "1"}, at))
	require.Len(t, Diff(nil, Snapshot{"a": "1"}, at), 1)
}

func TestDiffAddressExact(t *testing.T) {
	events := Diff(Snapshot{"a": "2001:db8::1"}, Snapshot{"a": "2001:0db8::1"}, at)
	require.Len(t, events, 1)
	require.Equal(t, KindUpdated, events[0].Kind)
}

func TestEventID(t *testing.T) {
	require.Equal(t, "new:www.example.com:127.0.0.1:1456657834",
		DeltaEvent{Kind: KindNew, Hostname: "www.example.com", NewAddress: "127.0.0.1", At: at}.ID())
	require.Equal(t, "updated:www.example.com:127.0.0.1:127.0.0.2:1456657834",
		DeltaEvent{Kind: KindUpdated, Hostname: "www.example.com", OldAddress: "127.0.0.1", NewAddress: "127.0.0.2", At: at}.ID())
	require.Equal(t, "deleted:www.example.com:1456657834",
		DeltaEvent{Kind: KindDeleted, Hostname: "www.example.com", At: at}.ID())
}

func TestValidateSnapshot(t *testing.T) {
	valid, err := ValidateSnapshot(Snapshot{"WWW.Example.com.": "127.0.0.1", "bücher.com": "::1"})
	require.NoError(t, err)
	require.Equal(t, Snapshot{"www.example.com": "127.0.0.1", "xn--bcher-kva.com": "::1"}, valid)

	valid, err = ValidateSnapshot(Snapshot{})
	require.NoError(t, err)
	require.NotNil(t, valid)
	require.Empty(t, valid)

	for name, s := range map[string]Snapshot{
		"nil":       nil,
		"hostname":  {"bad host": "1.1.1.1"},
		"empty":     {"a.com": ""},
		"space":     {"a.com": "1.1.1.1 "},
		"control":   {"a.com": "1.1.1.1\x00"},
		"collision": {"a.com": "1.1.1.1", "A.com": "1.1.1.2"},
	} {
		_, err := ValidateSnapshot(s)
		require.ErrorIs(t, err, ErrInvalidSnapshot, name)
	}

	// Spellings of one name agreeing on the address are merged.
	valid, err = ValidateSnapshot(Snapshot{"a.com": "1.1.1.1", "A.COM.": "1.1.1.1"})
	require.NoError(t, err)
	require.Equal(t, Snapshot{"a.com": "1.1.1.1"}, valid)
}

func TestSnapshotObserve(t *testing.T) {
	s := Snapshot{}
	s.Observe("a.com", "192.0.2.2")
	s.Observe("a.com", "192.0.2.1")
	s.Observe("a.com", "192.0.2.3")
	require.Equal(t, Snapshot{"a.com": "192.0.2.1"}, s)
}
