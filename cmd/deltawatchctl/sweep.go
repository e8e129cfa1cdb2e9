// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/autodns/deltawatch/logger"
	"github.com/rs/zerolog"
)

// Sweep returns one pass over the watch list: every domain is snapshotted
// through src and recorded. A failing domain does not stop the others.
//
// Empty hostnames ask the source for everything it knows about the domain.
func Sweep(repo *core.Repository, src core.Source, watch []WatchDef, now func() time.Time, log *zerolog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error

		for _, w := range watch {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}

			key, err := core.Canonicalize(w.Domain)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", w.Domain, err))
				continue
			}

			snapshot, err := src.Snapshot(ctx, w.Hostnames)
			if err != nil {
				log.Warn().Err(err).Str("domain", string(key)).Msg("Snapshot failed")
				errs = append(errs, fmt.Errorf("%s: snapshot: %w", key, err))
				continue
			}

			events, err := repo.RecordSnapshot(ctx, key, snapshot, now())
			if err != nil {
				log.Warn().Err(err).Str("domain", string(key)).Msg("Record failed")
				errs = append(errs, fmt.Errorf("%s: record: %w", key, err))
				continue
			}

			for _, e := range events {
				log.Info().Str("domain", string(key)).Str("kind", string(e.Kind)).Str("hostname", e.Hostname).
					Str("old", e.OldAddress).Str("new", e.NewAddress).Msg("Delta")
			}
			log.Debug().Str("domain", string(key)).Int("hostnames", len(snapshot)).Int("events", len(events)).Msg("Swept")
		}

		return errors.Join(errs...)
	}
}

func _sweep(config *Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(config.Watch) == 0 {
		return fmt.Errorf("nothing to sweep: the configuration has no watch list")
	}

	repo, err := openRepository(config)
	if err != nil {
		return err
	}
	defer repo.Store.Close()

	src, err := core.BuildSource(config.Source.Builder, config.Source.Params)
	if err != nil {
		return err
	}
	defer src.Close()

	go func() {
		select {
		case <-signalC:
			cancel()
		case <-ctx.Done():
		}
	}()

	log := logger.Named("sweep")
	log.Info().Int("domains", len(config.Watch)).Str("source", config.Source.Builder).Msg("Sweep")

	return Sweep(repo, src, config.Watch, time.Now, log)(ctx)
}
