// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

// Package file stores one file per key under a directory. Writes are atomic
// renames; the compare-and-swap guarantees hold within a single process only.
package file

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autodns/deltawatch/core"
)

const DefaultCacheLifetime = 60

type FileCache struct {
	ModTime  int64
	Val      []byte
	lastUsed atomic.Int64
}

type Store struct {
	BaseDir string

	CacheLifetime int64
	lastCheck     atomic.Int64

	Cache     map[string]*FileCache
	cacheLock sync.RWMutex

	// Bumped by every write. A read may only fill the cache while it is unchanged.
	gen uint64

	// Serialises every mutation so check-then-write sequences are atomic.
	writeLock sync.Mutex
}

func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, err
	}
	return &Store{
		BaseDir:       baseDir,
		CacheLifetime: DefaultCacheLifetime,
		Cache:         map[string]*FileCache{},
	}, nil
}

// Keys may contain any byte, so file names are their hex form.
func (s *Store) fName(key string) string {
	return filepath.Join(s.BaseDir, hex.EncodeToString([]byte(key))+".val")
}

func (s *Store) purgeCache() {
	now := time.Now().Unix()
	if now < s.lastCheck.Load()+s.CacheLifetime {
		return
	}

	s.cacheLock.Lock()
	defer s.cacheLock.Unlock()

	// Check twice. The other thread might have gotten the lock and finished the job.
	if now < s.lastCheck.Load()+s.CacheLifetime {
		return
	}
	s.lastCheck.Store(now)

	for k, v := range s.Cache {
		if now > v.lastUsed.Load()+s.CacheLifetime {
			// Expired.
			delete(s.Cache, k)
		}
	}
}

func (s *Store) read(fName string) ([]byte, bool, error) {
	s.purgeCache()

	s.cacheLock.RLock()
	gen := s.gen
	s.cacheLock.RUnlock()

	fStat, err := os.Stat(fName)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.cacheLock.Lock()
		delete(s.Cache, fName)
		s.cacheLock.Unlock()
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	s.cacheLock.RLock()
	cache, exist := s.Cache[fName]
	s.cacheLock.RUnlock()
	if exist && cache.ModTime == fStat.ModTime().UnixNano() {
		// Cache hit.
		cache.lastUsed.Store(time.Now().Unix())
		return bytes.Clone(cache.Val), true, nil
	}

	// Cache miss or disk change.
	b, err := os.ReadFile(fName)
	if err != nil {
		return nil, false, err
	}
	s.remember(fName, b, fStat.ModTime().UnixNano(), gen)
	return bytes.Clone(b), true, nil
}

func (s *Store) remember(fName string, b []byte, modTime int64, gen uint64) {
	cache := &FileCache{ModTime: modTime, Val: b}
	cache.lastUsed.Store(time.Now().Unix())

	s.cacheLock.Lock()
	if s.gen == gen {
		s.Cache[fName] = cache
	}
	s.cacheLock.Unlock()
}

func (s *Store) write(fName string, value []byte) error {
	tmp, err := os.CreateTemp(s.BaseDir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), fName); err != nil {
		return err
	}

	fStat, err := os.Stat(fName)
	if err != nil {
		return err
	}
	cache := &FileCache{ModTime: fStat.ModTime().UnixNano(), Val: bytes.Clone(value)}
	cache.lastUsed.Store(time.Now().Unix())

	s.cacheLock.Lock()
	s.gen++
	s.Cache[fName] = cache
	s.cacheLock.Unlock()
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return s.read(s.fName(key))
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	return s.write(s.fName(key), value)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	fName := s.fName(key)
	err := os.Remove(fName)

	s.cacheLock.Lock()
	s.gen++
	delete(s.Cache, fName)
	s.cacheLock.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	fName := s.fName(key)
	_, exist, err := s.read(fName)
	if err != nil || exist {
		return false, err
	}
	return true, s.write(fName, value)
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	fName := s.fName(key)
	cur, exist, err := s.read(fName)
	if err != nil || !exist || !bytes.Equal(cur, old) {
		return false, err
	}
	return true, s.write(fName, new)
}

// Len counts the keys on disk.
func (s *Store) Len() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.BaseDir, "*.val"))
	return len(matches), err
}

func (s *Store) Close() error { return nil }

func Build(config map[string]string) (core.Store, error) {
	dir := config["dir"]
	if dir == "" {
		return nil, fmt.Errorf("file: require [dir]")
	}

	s, err := New(dir)
	if err != nil {
		return nil, err
	}
	if v := config["cache_lifetime"]; v != "" {
		s.CacheLifetime, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("file: cache_lifetime: %v", err)
		}
	}
	return s, nil
}

func init() {
	core.StoreBuilders["file"] = Build
}
