// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/autodns/deltawatch/feed"
	"github.com/autodns/deltawatch/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxSnapshotBody = 1 << 20

// HandleWrap turns handler results into responses. err is the caller's fault
// and is echoed back; iErr is logged and hidden behind its status text.
func HandleWrap(log *zerolog.Logger, handler func(w http.ResponseWriter, r *http.Request) (int, error, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err, iErr := handler(w, r)
		switch {
		case iErr != nil:
			if code == 0 {
				code = http.StatusInternalServerError
			}
			log.Error().Err(iErr).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Request failed")
			WriteJSON(w, code, &struct {
				Error string `json:"error"`
			}{
				Error: http.StatusText(code),
			})
		case err != nil:
			if code == 0 {
				code = http.StatusBadRequest
			}
			WriteJSON(w, code, &struct {
				Error string `json:"error"`
			}{
				Error: err.Error(),
			})
		}
	}
}

// classify sorts a core error into the HandleWrap result triple.
func classify(err error) (int, error, error) {
	code := core.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		return code, nil, err
	}
	return code, err, nil
}

type Handler struct {
	Repo     *core.Repository
	Renderer *feed.Renderer
	Prefix   string
	Log      *zerolog.Logger
	Now      func() time.Time
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	routes := func(r chi.Router) {
		r.Get("/atom/{token}", HandleWrap(h.Log, h.Atom))
		r.Post("/atom/{token}/snapshot", HandleWrap(h.Log, h.Snapshot))
		r.Delete("/atom/{token}", HandleWrap(h.Log, h.Unregister))
		r.Handle("/metrics", promhttp.Handler())
	}
	if h.Prefix == "" || h.Prefix == "/" {
		routes(r)
	} else {
		r.Route(path.Clean(h.Prefix), routes)
	}
	return r
}

// Atom serves the feed of a domain, registering it on first sight, and marks
// the feed as read.
func (h *Handler) Atom(w http.ResponseWriter, r *http.Request) (int, error, error) {
	token := chi.URLParam(r, "token")

	key, err := core.Decode(token)
	if err != nil {
		if legacy, lErr := core.DecodeLegacy(token); lErr == nil {
			http.Redirect(w, r, path.Join("/", h.Prefix, "atom", legacy.Token()), http.StatusFound)
			return 0, nil, nil
		}
		return classify(err)
	}

	rec, err := h.Repo.Register(r.Context(), key)
	if err != nil {
		return classify(err)
	}

	var buf bytes.Buffer
	if err := h.Renderer.Render(key, rec).Encode(&buf); err != nil {
		return 0, nil, err
	}
	metrics.FeedRenders.WithLabelValues(strconv.FormatBool(len(rec.History) == 0)).Inc()

	if err := h.Repo.MarkRead(r.Context(), key, h.Now()); err != nil {
		return classify(err)
	}

	w.Header().Set("Content-Type", feed.ContentType)
	_, _ = w.Write(buf.Bytes())
	return 0, nil, nil
}

// Snapshot records a hostname to address JSON object. The optional at query
// parameter is an RFC 3339 timestamp and defaults to now.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) (int, error, error) {
	key, err := core.Decode(chi.URLParam(r, "token"))
	if err != nil {
		return classify(err)
	}

	at := h.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		at, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return http.StatusBadRequest, err, nil
		}
	}

	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSnapshotBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, err, nil
		}
		return 0, err, nil
	}

	snapshot, err := UnmarshalJSON(b, &core.Snapshot{})
	if err != nil {
		return http.StatusBadRequest, err, nil
	}

	events, err := h.Repo.RecordSnapshot(r.Context(), key, *snapshot, at)
	if err != nil {
		return classify(err)
	}

	h.Log.Info().Str("domain", string(key)).Int("events", len(events)).Msg("Snapshot recorded")
	WriteJSON(w, http.StatusOK, &struct {
		Events []Event `json:"events"`
	}{
		Events: Events(events),
	})
	return 0, nil, nil
}

func (h *Handler) Unregister(w http.ResponseWriter, r *http.Request) (int, error, error) {
	key, err := core.Decode(chi.URLParam(r, "token"))
	if err != nil {
		return classify(err)
	}
	if err := h.Repo.Unregister(r.Context(), key); err != nil {
		return classify(err)
	}
	WriteJSON(w, http.StatusOK, &struct{}{})
	return 0, nil, nil
}

func Serve(ctx context.Context, log *zerolog.Logger, addr string, handler http.Handler) error {
	s := http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	err := s.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
