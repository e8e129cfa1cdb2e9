// Copyright 2025 Jelly Terra <jellyterra@symboltics.com>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/autodns/deltawatch/feed"
)

type DomainReport struct {
	Domain       core.DomainKey `json:"domain"`
	Token        string         `json:"token"`
	Feed         string         `json:"feed"`
	State        string         `json:"state"`
	RegisteredAt time.Time      `json:"registered_at"`
	Version      uint64         `json:"version"`
	LastSnapshot core.Snapshot  `json:"last_snapshot"`
	SnapshotAt   time.Time      `json:"snapshot_at"`
	History      []Event        `json:"history"`
	LastReadAt   *time.Time     `json:"last_read_at"`
}

func _operator(config *Config) error {
	ctx := context.Background()

	if *domain == "" {
		return fmt.Errorf("nothing to do without -domain")
	}
	key, err := core.Canonicalize(*domain)
	if err != nil {
		return err
	}

	repo, err := openRepository(config)
	if err != nil {
		return err
	}
	defer repo.Store.Close()

	renderer := feed.NewRenderer(config.HTTP.BaseURL).SetWebURL(config.HTTP.WebURL)

	switch {
	case *opSnapshot != "":
		data, err := os.ReadFile(*opSnapshot)
		if err != nil {
			return err
		}
		snapshot, err := UnmarshalJSON(data, &core.Snapshot{})
		if err != nil {
			return fmt.Errorf("parse snapshot: %v", err)
		}
		events, err := repo.RecordSnapshot(ctx, key, *snapshot, time.Now())
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Println(e.ID())
		}
		fmt.Println("Recorded", len(events), "events for", key)
	case *opQuery:
		rec, ok, err := repo.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("domain %s is not registered", key)
		}
		fmt.Println(string(MarshalJSON(&DomainReport{
			Domain:       key,
			Token:        key.Token(),
			Feed:         renderer.FeedURL(key),
			State:        string(rec.State),
			RegisteredAt: rec.RegisteredAt,
			Version:      rec.Version,
			LastSnapshot: rec.LastSnapshot,
			SnapshotAt:   rec.SnapshotAt,
			History:      Events(rec.History),
			LastReadAt:   rec.LastReadAt,
		})))
	case *opRead:
		if err := repo.MarkRead(ctx, key, time.Now()); err != nil {
			return err
		}
		fmt.Println("Feed of", key, "marked as read.")
	case *opDelete:
		if err := repo.Unregister(ctx, key); err != nil {
			return err
		}
		fmt.Println("Domain", key, "unregistered.")
	default:
		if _, err := repo.Register(ctx, key); err != nil {
			return err
		}
		fmt.Println("Domain", key, "registered, feed at", renderer.FeedURL(key))
	}

	return nil
}
