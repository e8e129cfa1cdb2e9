// Copyright 2025 Jelly Terra <jellyterra@symboltics.com>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package core

import (
	"encoding/json"
	"time"
)

const (
	PREFIX_DOMAIN = "domain:"
	SUFFIX_READ   = ":read"
)

type RegistrationState string

const (
	Unregistered RegistrationState = "unregistered"
	Registered   RegistrationState = "registered"
)

// DomainRecord is the per-domain aggregate. Everything except LastReadAt is
// persisted as one blob so a single write never tears fields apart.
type DomainRecord struct {
	Domain       DomainKey         `json:"domain"`
	State        RegistrationState `json:"state"`
	RegisteredAt time.Time         `json:"registered_at"`

	// Version increases with every write and guards compare-and-swap appends.
	Version uint64 `json:"version"`

	LastSnapshot Snapshot     `json:"last_snapshot"`
	SnapshotAt   time.Time    `json:"snapshot_at"`
	History      []DeltaEvent `json:"history"`

	LastReadAt *time.Time `json:"-"`
}

func (r *DomainRecord) IsRegistered() bool { return r != nil && r.State == Registered }

// LastEventAt returns the time of the newest history entry.
func (r *DomainRecord) LastEventAt() (time.Time, bool) {
	if r == nil || len(r.History) == 0 {
		return time.Time{}, false
	}
	return r.History[len(r.History)-1].At, true
}

// Horizon is the time a new snapshot has to be strictly after: the later of
// the last written snapshot and the newest event.
func (r *DomainRecord) Horizon() time.Time {
	if r == nil {
		return time.Time{}
	}
	horizon := r.SnapshotAt
	if last, ok := r.LastEventAt(); ok && last.After(horizon) {
		horizon = last
	}
	return horizon
}

func recordKey(key DomainKey) string { return PREFIX_DOMAIN + string(key) }

func readKey(key DomainKey) string { return PREFIX_DOMAIN + string(key) + SUFFIX_READ }

func marshalRecord(r *DomainRecord) ([]byte, error) { return json.Marshal(r) }

func unmarshalRecord(b []byte) (*DomainRecord, error) {
	r := &DomainRecord{}
	if err := json.Unmarshal(b, r); err != nil {
		return nil, err
	}
	return r, nil
}
