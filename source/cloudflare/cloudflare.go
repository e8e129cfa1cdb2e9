// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

// Package cloudflare snapshots the address records of a Cloudflare zone.
package cloudflare

import (
	"context"
	"fmt"

	"github.com/autodns/deltawatch/core"
	"github.com/cloudflare/cloudflare-go"
)

type Source struct {
	API *cloudflare.API
	RC  *cloudflare.ResourceContainer
}

// Snapshot lists the zone's A and AAAA records. With no hostnames every
// address record of the zone is returned.
func (s *Source) Snapshot(ctx context.Context, hostnames []string) (core.Snapshot, error) {
	var wanted map[core.DomainKey]bool
	if len(hostnames) != 0 {
		wanted = make(map[core.DomainKey]bool, len(hostnames))
		for _, hostname := range hostnames {
			key, err := core.Canonicalize(hostname)
			if err != nil {
				return nil, fmt.Errorf("cloudflare: hostname %q: %v", hostname, err)
			}
			wanted[key] = true
		}
	}

	records, _, err := s.API.ListDNSRecords(ctx, s.RC, cloudflare.ListDNSRecordsParams{})
	if err != nil {
		return nil, err
	}

	snapshot := core.Snapshot{}
	for _, record := range records {
		if record.Type != "A" && record.Type != "AAAA" {
			continue
		}
		// Wildcards and other non-host names cannot be monitored.
		key, err := core.Canonicalize(record.Name)
		if err != nil {
			continue
		}
		if wanted != nil && !wanted[key] {
			continue
		}
		snapshot.Observe(string(key), record.Content)
	}
	return snapshot, nil
}

func (s *Source) Close() error { return nil }

func Build(config map[string]string) (core.Source, error) {
	var (
		apiToken = config["api_token"]
		zone     = config["zone"]
		zoneId   = config["zone_id"]
		baseURL  = config["base_url"]
	)
	if apiToken == "" || zone == "" && zoneId == "" {
		return nil, fmt.Errorf("cloudflare: require [api_token, zone or zone_id]")
	}

	var opts []cloudflare.Option
	if baseURL != "" {
		opts = append(opts, cloudflare.BaseURL(baseURL))
	}

	api, err := cloudflare.NewWithAPIToken(apiToken, opts...)
	if err != nil {
		return nil, err
	}

	if zoneId == "" {
		zoneId, err = api.ZoneIDByName(zone)
		if err != nil {
			return nil, err
		}
	}

	return &Source{
		API: api,
		RC:  cloudflare.ZoneIdentifier(zoneId),
	}, nil
}

func init() {
	core.SourceBuilders["cloudflare"] = Build
}
