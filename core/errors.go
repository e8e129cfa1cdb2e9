// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package core

import (
	"errors"
	"net/http"
)

var (
	// ErrMalformedToken is a client input problem and is never worth retrying.
	ErrMalformedToken = errors.New("malformed domain token")

	// ErrStorageUnavailable wraps every backend failure, including timeouts.
	// Callers may retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidSnapshot rejects a snapshot before any state is touched.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrConflict reports a lost compare-and-swap.
	ErrConflict = errors.New("concurrent modification")
)

// HTTPStatus maps the error taxonomy onto a status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformedToken), errors.Is(err, ErrInvalidSnapshot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
