// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

// Package storetest is the behavioural contract every core.Store backend runs.
package storetest

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/stretchr/testify/suite"
)

type Suite struct {
	suite.Suite

	// New returns an empty store. It is called once per test.
	New func(t *testing.T) core.Store

	ctx   context.Context
	store core.Store
}

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	suite.Run(t, &Suite{New: newStore})
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.New(s.T())
}

func (s *Suite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *Suite) TestGetMissing() {
	v, ok, err := s.store.Get(s.ctx, "domain:missing.example")
	s.Require().NoError(err)
	s.False(ok)
	s.Nil(v)
}

func (s *Suite) TestPutGetDelete() {
	s.Require().NoError(s.store.Put(s.ctx, "domain:a.example", []byte("one")))
	s.Require().NoError(s.store.Put(s.ctx, "domain:a.example", []byte("two")))

	v, ok, err := s.store.Get(s.ctx, "domain:a.example")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal([]byte("two"), v)

	s.Require().NoError(s.store.Delete(s.ctx, "domain:a.example"))
	_, ok, err = s.store.Get(s.ctx, "domain:a.example")
	s.Require().NoError(err)
	s.False(ok)

	s.NoError(s.store.Delete(s.ctx, "domain:a.example"), "deleting a missing key is not an error")
}

func (s *Suite) TestBinaryValues() {
	value := []byte{0, 1, 2, 0xff, '\n', 0, 'x'}
	s.Require().NoError(s.store.Put(s.ctx, "domain:bin.example", value))

	v, ok, err := s.store.Get(s.ctx, "domain:bin.example")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(value, v)

	// The store keeps its own copy.
	value[0] = 'z'
	v, _, err = s.store.Get(s.ctx, "domain:bin.example")
	s.Require().NoError(err)
	s.Equal(byte(0), v[0])
}

func (s *Suite) TestPutIfAbsent() {
	created, err := s.store.PutIfAbsent(s.ctx, "domain:b.example", []byte("first"))
	s.Require().NoError(err)
	s.True(created)

	created, err = s.store.PutIfAbsent(s.ctx, "domain:b.example", []byte("second"))
	s.Require().NoError(err)
	s.False(created)

	v, _, err := s.store.Get(s.ctx, "domain:b.example")
	s.Require().NoError(err)
	s.Equal([]byte("first"), v)
}

func (s *Suite) TestCompareAndSwap() {
	swapped, err := s.store.CompareAndSwap(s.ctx, "domain:c.example", []byte("x"), []byte("y"))
	s.Require().NoError(err)
	s.False(swapped, "missing keys never swap")

	s.Require().NoError(s.store.Put(s.ctx, "domain:c.example", []byte("v1")))

	swapped, err = s.store.CompareAndSwap(s.ctx, "domain:c.example", []byte("v0"), []byte("v2"))
	s.Require().NoError(err)
	s.False(swapped)

	swapped, err = s.store.CompareAndSwap(s.ctx, "domain:c.example", []byte("v1"), []byte("v2"))
	s.Require().NoError(err)
	s.True(swapped)

	v, _, err := s.store.Get(s.ctx, "domain:c.example")
	s.Require().NoError(err)
	s.Equal([]byte("v2"), v)
}

func (s *Suite) TestConcurrentPutIfAbsent() {
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.PutIfAbsent(s.ctx, "domain:race.example", []byte(strconv.Itoa(i)))
			s.NoError(err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), created.Load())
}

func (s *Suite) TestConcurrentCompareAndSwap() {
	const workers, rounds = 8, 5
	s.Require().NoError(s.store.Put(s.ctx, "domain:counter.example", []byte("0")))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for done := 0; done < rounds; {
				old, _, err := s.store.Get(s.ctx, "domain:counter.example")
				if !s.NoError(err) {
					return
				}
				n, _ := strconv.Atoi(string(old))
				swapped, err := s.store.CompareAndSwap(s.ctx, "domain:counter.example", old, []byte(strconv.Itoa(n+1)))
				if !s.NoError(err) {
					return
				}
				if swapped {
					done++
				}
			}
		}()
	}
	wg.Wait()

	v, _, err := s.store.Get(s.ctx, "domain:counter.example")
	s.Require().NoError(err)
	s.Equal(strconv.Itoa(workers*rounds), string(v))
}

// TestRepository drives the whole domain lifecycle through the backend.
func (s *Suite) TestRepository() {
	repo := core.NewRepository(s.store, core.WithTimeout(10*time.Second))
	key := core.DomainKey("example.com")
	at := time.Date(2016, 2, 28, 11, 10, 34, 0, time.UTC)

	_, err := repo.Register(s.ctx, key)
	s.Require().NoError(err)

	_, err = repo.RecordSnapshot(s.ctx, key, core.Snapshot{"www.example.com": "127.0.0.1"}, at)
	s.Require().NoError(err)

	events, err := repo.RecordSnapshot(s.ctx, key, core.Snapshot{"www.example.com": "127.0.0.2"}, at.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("updated:www.example.com:127.0.0.1:127.0.0.2:1456744234", events[0].ID())

	s.Require().NoError(repo.MarkRead(s.ctx, key, at))
	rec, ok, err := repo.Get(s.ctx, key)
	s.Require().NoError(err)
	s.True(ok)
	s.Len(rec.History, 1)
	s.NotNil(rec.LastReadAt)

	s.Require().NoError(repo.Unregister(s.ctx, key))
	for _, k := range []string{"domain:example.com", "domain:example.com:read"} {
		_, ok, err := s.store.Get(s.ctx, k)
		s.Require().NoError(err)
		s.False(ok, k)
	}
}
