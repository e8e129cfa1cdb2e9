// Copyright 2025 Jelly Terra <jellyterra@symboltics.com>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Store is the narrow key-value contract the repository is built on. A single
// call is atomic; sequences of calls are not.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// PutIfAbsent stores value only when key does not exist yet and reports
	// whether it did.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)

	// CompareAndSwap replaces old with new and reports false when the stored
	// value is no longer old.
	CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error)

	Close() error
}

// Source produces a Snapshot for a set of candidate hostnames. An empty set
// asks the source for everything it knows about.
type Source interface {
	Snapshot(ctx context.Context, hostnames []string) (Snapshot, error)
	Close() error
}

type StoreBuilder func(config map[string]string) (Store, error)

type SourceBuilder func(config map[string]string) (Source, error)

var (
	StoreBuilders  = map[string]StoreBuilder{}
	SourceBuilders = map[string]SourceBuilder{}
)

func BuildStore(builder string, config map[string]string) (Store, error) {
	build, ok := StoreBuilders[builder]
	if !ok {
		return nil, fmt.Errorf("no store builder called %s found, have %v", builder, slices.Sorted(maps.Keys(StoreBuilders)))
	}
	return build(config)
}

func BuildSource(builder string, config map[string]string) (Source, error) {
	build, ok := SourceBuilders[builder]
	if !ok {
		return nil, fmt.Errorf("no source builder called %s found, have %v", builder, slices.Sorted(maps.Keys(SourceBuilders)))
	}
	return build(config)
}
