// Copyright 2025 Jelly Terra <jellyterra@symboltics.com>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/redis/rueidis"
)

const pingTimeout = 5 * time.Second

// Swap only while the stored value is still the one the caller read.
var casScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

type Store struct {
	Client rueidis.Client
	Prefix string
}

func New(client rueidis.Client, prefix string) *Store {
	return &Store{Client: client, Prefix: prefix}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.Client.Do(ctx, s.Client.B().Get().Key(s.Prefix+key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.Client.Do(ctx, s.Client.B().Set().Key(s.Prefix+key).Value(rueidis.BinaryString(value)).Build()).Error()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Client.Do(ctx, s.Client.B().Del().Key(s.Prefix+key).Build()).Error()
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	err := s.Client.Do(ctx, s.Client.B().Set().Key(s.Prefix+key).Value(rueidis.BinaryString(value)).Nx().Build()).Error()
	switch {
	case rueidis.IsRedisNil(err):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	n, err := casScript.Exec(ctx, s.Client, []string{s.Prefix + key}, []string{rueidis.BinaryString(old), rueidis.BinaryString(new)}).AsInt64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Close() error {
	s.Client.Close()
	return nil
}

func Build(config map[string]string) (core.Store, error) {
	var (
		addr   = config["addr"]
		db     = config["db"]
		prefix = config["prefix"]
	)
	if addr == "" {
		return nil, fmt.Errorf("redis: require [addr]")
	}

	opt := rueidis.ClientOption{
		InitAddress:  []string{addr},
		Username:     config["username"],
		Password:     config["password"],
		DisableCache: true,
	}
	if db != "" {
		idx, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("redis: db: %v", err)
		}
		opt.SelectDB = idx
	}

	client, err := rueidis.NewClient(opt)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	err = client.Do(ctx, client.B().Ping().Build()).Error()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis server: %v", err)
	}

	return New(client, prefix), nil
}

func init() {
	core.StoreBuilders["redis"] = Build
}
