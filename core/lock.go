// Copyright 2025 Jelly Terra <jellyterra@symboltics.com>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package core

import "sync"

type keyLock struct {
	sync.Mutex
	refs int
}

// KeyLocks serialises callers per domain key. Entries are dropped once the
// last holder unlocks, so the table only holds keys in use.
type KeyLocks struct {
	Locks    map[DomainKey]*keyLock
	LocksMux sync.Mutex
}

func NewKeyLocks() *KeyLocks {
	return &KeyLocks{
		Locks: make(map[DomainKey]*keyLock, 8),
	}
}

// Lock blocks until key is free and returns the matching unlock.
func (l *KeyLocks) Lock(key DomainKey) (unlock func()) {
	l.LocksMux.Lock()
	lock, exist := l.Locks[key]
	if !exist {
		lock = &keyLock{}
		l.Locks[key] = lock
	}
	lock.refs++
	l.LocksMux.Unlock()

	lock.Lock()

	return func() {
		lock.Unlock()

		l.LocksMux.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.Locks, key)
		}
		l.LocksMux.Unlock()
	}
}

// Len reports how many keys are currently held or awaited.
func (l *KeyLocks) Len() int {
	l.LocksMux.Lock()
	defer l.LocksMux.Unlock()
	return len(l.Locks)
}
