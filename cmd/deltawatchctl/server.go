// Copyright 2025 Jelly Terra <jellyterra@symboltics.com>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/autodns/deltawatch/feed"
	"github.com/autodns/deltawatch/logger"
)

// openRepository builds the configured store and wraps it in a repository.
func openRepository(config *Config) (*core.Repository, error) {
	log := logger.Named("store")

	store, err := core.BuildStore(config.Store.Builder, config.Store.Params)
	if err != nil {
		return nil, err
	}
	log.Info().Str("builder", config.Store.Builder).Msg("Store ready")

	return core.NewRepository(store,
		core.WithTimeout(config.StoreTimeout),
		core.WithLogger(*logger.Named("repository")),
	), nil
}

func _server(config *Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.Named("http")

	repo, err := openRepository(config)
	if err != nil {
		return err
	}
	defer repo.Store.Close()

	go func() {
		<-signalC
		cancel()
	}()

	h := &Handler{
		Repo:     repo,
		Renderer: feed.NewRenderer(config.HTTP.BaseURL).SetWebURL(config.HTTP.WebURL),
		Prefix:   config.HTTP.Prefix,
		Log:      log,
		Now:      time.Now,
	}

	log.Info().Str("listen", config.HTTP.Listen).Str("base_url", config.HTTP.BaseURL).Msg("Listen and serve")

	return Serve(ctx, log, config.HTTP.Listen, h.Router())
}
