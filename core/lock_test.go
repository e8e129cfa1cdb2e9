// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyLocks(t *testing.T) {
	locks := NewKeyLocks()

	var (
		wg      sync.WaitGroup
		counter = map[DomainKey]*int{"a.com": new(int), "b.com": new(int)}
	)
	for i := 0; i < 100; i++ {
		key := DomainKey([]string{"a.com", "b.com"}[i%2])
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(key)
			defer unlock()
			*counter[key]++
		}()
	}
	wg.Wait()

	require.Equal(t, 50, *counter["a.com"])
	require.Equal(t, 50, *counter["b.com"])
	require.Equal(t, 0, locks.Len())
}

func TestKeyLocksIndependent(t *testing.T) {
	locks := NewKeyLocks()

	unlockA := locks.Lock("a.com")
	done := make(chan struct{})
	go func() {
		locks.Lock("b.com")()
		close(done)
	}()
	<-done

	require.Equal(t, 1, locks.Len())
	unlockA()
	require.Equal(t, 0, locks.Len())
}
