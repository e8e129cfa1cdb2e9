// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package core

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Snapshot maps resolved hostnames to addresses at one point in time.
// A nil Snapshot means no snapshot has been taken.
type Snapshot map[string]string

// Observe records addr for hostname. A name seen with several addresses keeps
// the lowest one so repeated sweeps of a round-robin name stay stable.
func (s Snapshot) Observe(hostname, addr string) {
	if old, exist := s[hostname]; !exist || addr < old {
		s[hostname] = addr
	}
}

type DeltaKind string

const (
	KindNew     DeltaKind = "new"
	KindUpdated DeltaKind = "updated"
	KindDeleted DeltaKind = "deleted"
)

type DeltaEvent struct {
	Kind       DeltaKind `json:"kind"`
	Hostname   string    `json:"hostname"`
	OldAddress string    `json:"old_address,omitempty"`
	NewAddress string    `json:"new_address,omitempty"`
	At         time.Time `json:"at"`
}

// ID derives the deduplication identity of the event from its content.
func (e DeltaEvent) ID() string {
	ts := strconv.FormatInt(e.At.Unix(), 10)
	switch e.Kind {
	case KindNew:
		return "new:" + e.Hostname + ":" + e.NewAddress + ":" + ts
	case KindUpdated:
		return "updated:" + e.Hostname + ":" + e.OldAddress + ":" + e.NewAddress + ":" + ts
	default:
		return "deleted:" + e.Hostname + ":" + ts
	}
}

// Diff is an unconditional set difference between two snapshots. Events come
// grouped New, Updated, Deleted, each group ordered by hostname.
func Diff(previous, current Snapshot, at time.Time) []DeltaEvent {
	at = at.UTC().Truncate(time.Second)

	var added, updated, deleted []DeltaEvent

	for _, hostname := range sortedHostnames(current) {
		addr := current[hostname]
		old, exist := previous[hostname]
		switch {
		case !exist:
			added = append(added, DeltaEvent{Kind: KindNew, Hostname: hostname, NewAddress: addr, At: at})
		case old != addr:
			updated = append(updated, DeltaEvent{Kind: KindUpdated, Hostname: hostname, OldAddress: old, NewAddress: addr, At: at})
		}
	}

	for _, hostname := range sortedHostnames(previous) {
		if _, exist := current[hostname]; !exist {
			deleted = append(deleted, DeltaEvent{Kind: KindDeleted, Hostname: hostname, At: at})
		}
	}

	return slices.Concat(added, updated, deleted)
}

func sortedHostnames(s Snapshot) []string {
	hostnames := make([]string, 0, len(s))
	for hostname := range s {
		hostnames = append(hostnames, hostname)
	}
	slices.Sort(hostnames)
	return hostnames
}

// ValidateSnapshot canonicalises hostnames and rejects malformed pairs.
func ValidateSnapshot(s Snapshot) (Snapshot, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: missing snapshot", ErrInvalidSnapshot)
	}

	valid := make(Snapshot, len(s))
	for hostname, addr := range s {
		key, err := Canonicalize(hostname)
		if err != nil {
			return nil, fmt.Errorf("%w: hostname %q: %v", ErrInvalidSnapshot, hostname, err)
		}
		if addr == "" || strings.IndexFunc(addr, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
			return nil, fmt.Errorf("%w: address %q for %s", ErrInvalidSnapshot, addr, key)
		}
		if prev, exist := valid[string(key)]; exist && prev != addr {
			return nil, fmt.Errorf("%w: %s resolves to both %s and %s", ErrInvalidSnapshot, key, prev, addr)
		}
		valid[string(key)] = addr
	}
	return valid, nil
}
