// Copyright 2025 Jelly Terra <jellyterra@symboltics.com>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/json"
	"net/http"

	"github.com/autodns/deltawatch/core"
)

func MarshalJSON[T any](v T) []byte {
	data, _ := json.Marshal(v)
	return data
}

func UnmarshalJSON[T any](data []byte, v T) (T, error) {
	return v, json.Unmarshal(data, v)
}

func WriteJSON[T any](w http.ResponseWriter, code int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(MarshalJSON(v))
}

// Event is the wire form of a DeltaEvent, carrying its feed entry id.
type Event struct {
	ID string `json:"id"`
	core.DeltaEvent
}

func Events(events []core.DeltaEvent) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		out = append(out, Event{ID: e.ID(), DeltaEvent: e})
	}
	return out
}
