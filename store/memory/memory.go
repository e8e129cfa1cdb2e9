// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

// Package memory is a process-local Store for tests and single-node use.
package memory

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/autodns/deltawatch/core"
)

type Store struct {
	Data     map[string][]byte
	DataLock sync.RWMutex
}

func New() *Store {
	return &Store{
		Data: map[string][]byte{},
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.DataLock.RLock()
	defer s.DataLock.RUnlock()

	v, exist := s.Data[key]
	return bytes.Clone(v), exist, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.DataLock.Lock()
	s.Data[key] = bytes.Clone(value)
	s.DataLock.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.DataLock.Lock()
	delete(s.Data, key)
	s.DataLock.Unlock()
	return nil
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.DataLock.Lock()
	defer s.DataLock.Unlock()

	if _, exist := s.Data[key]; exist {
		return false, nil
	}
	s.Data[key] = bytes.Clone(value)
	return true, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.DataLock.Lock()
	defer s.DataLock.Unlock()

	cur, exist := s.Data[key]
	if !exist || !bytes.Equal(cur, old) {
		return false, nil
	}
	s.Data[key] = bytes.Clone(new)
	return true, nil
}

func (s *Store) Close() error { return nil }

// Keys lists stored keys with the given prefix in order.
func (s *Store) Keys(prefix string) []string {
	s.DataLock.RLock()
	defer s.DataLock.RUnlock()

	var keys []string
	for k := range s.Data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func Build(map[string]string) (core.Store, error) {
	return New(), nil
}

func init() {
	core.StoreBuilders["memory"] = Build
}
