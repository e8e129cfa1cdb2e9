// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/autodns/deltawatch/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultStoreTimeout = 5 * time.Second

	// Appends give up after this many lost compare-and-swap rounds.
	maxAppendAttempts = 8
)

// Repository owns the lifecycle of every DomainRecord. It holds no state of its
// own beyond coordination primitives; all data lives in the Store.
type Repository struct {
	Store   Store
	Timeout time.Duration
	Now     func() time.Time
	Log     zerolog.Logger

	locks   *KeyLocks
	creates singleflight.Group
}

type RepositoryOption func(*Repository)

// WithTimeout bounds every individual store call.
func WithTimeout(d time.Duration) RepositoryOption {
	return func(r *Repository) {
		if d > 0 {
			r.Timeout = d
		}
	}
}

func WithClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) {
		if now != nil {
			r.Now = now
		}
	}
}

func WithLogger(log zerolog.Logger) RepositoryOption {
	return func(r *Repository) { r.Log = log }
}

func NewRepository(store Store, options ...RepositoryOption) *Repository {
	r := &Repository{
		Store:   store,
		Timeout: DefaultStoreTimeout,
		Now:     time.Now,
		Log:     zerolog.Nop(),
		locks:   NewKeyLocks(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Register returns the record for key, creating it on first use. Concurrent
// callers in this process share one creation; callers in other processes are
// arbitrated by the store's PutIfAbsent.
func (r *Repository) Register(ctx context.Context, key DomainKey) (*DomainRecord, error) {
	// The shared call outlives any one waiter; each store call keeps its timeout.
	ch := r.creates.DoChan(string(key), func() (any, error) {
		return r.register(context.WithoutCancel(ctx), key)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: register %s: %w", ErrStorageUnavailable, key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DomainRecord).clone(), nil
	}
}

func (r *Repository) register(ctx context.Context, key DomainKey) (*DomainRecord, error) {
	rec, ok, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return rec, nil
	}

	rec = &DomainRecord{
		Domain:       key,
		State:        Registered,
		RegisteredAt: r.Now().UTC().Truncate(time.Second),
		Version:      1,
	}
	b, err := marshalRecord(rec)
	if err != nil {
		return nil, err
	}

	created, err := call(r, ctx, "put_if_absent", func(ctx context.Context) (bool, error) {
		return r.Store.PutIfAbsent(ctx, recordKey(key), b)
	})
	if err != nil {
		return nil, err
	}
	if created {
		metrics.Registrations.Inc()
		r.Log.Info().Str("domain", string(key)).Msg("Register")
		return rec, nil
	}

	// Another process won the race; adopt its record.
	rec, ok, err = r.load(ctx, key)
	switch {
	case err != nil:
		return nil, err
	case !ok:
		return nil, fmt.Errorf("%w: register %s: %w", ErrStorageUnavailable, key, ErrConflict)
	}
	return rec, nil
}

func (r *Repository) IsRegistered(ctx context.Context, key DomainKey) (bool, error) {
	rec, ok, err := r.load(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && rec.IsRegistered(), nil
}

// Get returns the record including its read marker.
func (r *Repository) Get(ctx context.Context, key DomainKey) (*DomainRecord, bool, error) {
	rec, ok, err := r.load(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	readAt, read, err := r.LastReadAt(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if read {
		rec.LastReadAt = &readAt
	}
	return rec, true, nil
}

// RecordSnapshot diffs snapshot against the last recorded one and appends the
// result. The very first snapshot of a domain only establishes the baseline.
// Every later one must be strictly after the record's Horizon, at whole-second
// precision.
func (r *Repository) RecordSnapshot(ctx context.Context, key DomainKey, snapshot Snapshot, at time.Time) ([]DeltaEvent, error) {
	snapshot, err := ValidateSnapshot(snapshot)
	if err != nil {
		return nil, err
	}
	at = at.UTC().Truncate(time.Second)

	unlock := r.locks.Lock(key)
	defer unlock()

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		old, ok, err := callFound(r, ctx, "get", func(ctx context.Context) ([]byte, bool, error) {
			return r.Store.Get(ctx, recordKey(key))
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			if _, err := r.Register(ctx, key); err != nil {
				return nil, err
			}
			continue
		}

		rec, err := unmarshalRecord(old)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrStorageUnavailable, key, err)
		}

		var events []DeltaEvent
		if rec.LastSnapshot != nil {
			// Ids carry whole seconds, so two writes in one second could repeat one.
			if horizon := rec.Horizon(); !at.After(horizon) {
				return nil, fmt.Errorf("%w: snapshot at %s is not after %s, the latest of %s",
					ErrInvalidSnapshot, at.Format(time.RFC3339), horizon.Format(time.RFC3339), key)
			}
			events = Diff(rec.LastSnapshot, snapshot, at)
			if len(events) == 0 {
				return nil, nil
			}
		}

		rec.History = append(rec.History, events...)
		rec.LastSnapshot = snapshot
		rec.SnapshotAt = at
		rec.Version++

		b, err := marshalRecord(rec)
		if err != nil {
			return nil, err
		}
		swapped, err := call(r, ctx, "compare_and_swap", func(ctx context.Context) (bool, error) {
			return r.Store.CompareAndSwap(ctx, recordKey(key), old, b)
		})
		if err != nil {
			return nil, err
		}
		if swapped {
			for _, e := range events {
				metrics.DeltaEvents.WithLabelValues(string(e.Kind)).Inc()
			}
			r.Log.Debug().Str("domain", string(key)).Int("events", len(events)).Uint64("version", rec.Version).Msg("RecordSnapshot")
			return events, nil
		}

		metrics.CASConflicts.Inc()
		r.Log.Debug().Str("domain", string(key)).Int("attempt", attempt).Msg("RecordSnapshot lost a race, retrying")
	}

	return nil, fmt.Errorf("%w: append to %s: %w", ErrStorageUnavailable, key, ErrConflict)
}

// DeltaHistory returns every recorded event, oldest first.
func (r *Repository) DeltaHistory(ctx context.Context, key DomainKey) ([]DeltaEvent, error) {
	rec, ok, err := r.load(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	return rec.History, nil
}

func (r *Repository) LastReadAt(ctx context.Context, key DomainKey) (time.Time, bool, error) {
	b, ok, err := callFound(r, ctx, "get", func(ctx context.Context) ([]byte, bool, error) {
		return r.Store.Get(ctx, readKey(key))
	})
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: decode read marker of %s: %v", ErrStorageUnavailable, key, err)
	}
	return t, true, nil
}

// MarkRead is a blind write; concurrent markers settle on the last one.
func (r *Repository) MarkRead(ctx context.Context, key DomainKey, at time.Time) error {
	_, err := call(r, ctx, "put", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.Store.Put(ctx, readKey(key), []byte(at.UTC().Format(time.RFC3339Nano)))
	})
	return err
}

// Unregister removes every key of the domain. The record goes first so that an
// interrupted call never leaves history behind an unregistered state.
func (r *Repository) Unregister(ctx context.Context, key DomainKey) error {
	unlock := r.locks.Lock(key)
	defer unlock()

	for _, k := range []string{recordKey(key), readKey(key)} {
		_, err := call(r, ctx, "delete", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.Store.Delete(ctx, k)
		})
		if err != nil {
			return err
		}
	}

	r.Log.Info().Str("domain", string(key)).Msg("Unregister")
	return nil
}

func (r *Repository) load(ctx context.Context, key DomainKey) (*DomainRecord, bool, error) {
	b, ok, err := callFound(r, ctx, "get", func(ctx context.Context) ([]byte, bool, error) {
		return r.Store.Get(ctx, recordKey(key))
	})
	if err != nil || !ok {
		return nil, false, err
	}

	rec, err := unmarshalRecord(b)
	if err != nil {
		return nil, false, fmt.Errorf("%w: decode %s: %v", ErrStorageUnavailable, key, err)
	}
	return rec, true, nil
}

// call runs one store operation under the repository timeout and folds any
// failure into ErrStorageUnavailable.
func call[T any](r *Repository, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	start := time.Now()
	v, err := fn(ctx)
	metrics.ObserveStoreOp(op, start, err)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
	}
	return v, nil
}

func callFound[T any](r *Repository, ctx context.Context, op string, fn func(context.Context) (T, bool, error)) (T, bool, error) {
	type result struct {
		v  T
		ok bool
	}
	res, err := call(r, ctx, op, func(ctx context.Context) (result, error) {
		v, ok, err := fn(ctx)
		return result{v, ok}, err
	})
	return res.v, res.ok, err
}

func (r *DomainRecord) clone() *DomainRecord {
	c := *r
	c.History = slices.Clone(r.History)
	c.LastSnapshot = maps.Clone(r.LastSnapshot)
	return &c
}
