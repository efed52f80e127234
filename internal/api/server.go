// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api exposes the bridge over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/canopy/internal/bridge"
	"github.com/Thermoquad/canopy/pkg/ndjson"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// HeaderLastMessageID carries the log cursor on /api/messages
	HeaderLastMessageID = "X-Last-Message-Id"

	contentTypeNDJSON = "application/x-ndjson"
	contentTypeCBOR   = "application/cbor"

	maxBodySize = 4096
)

// Runner executes fn on the goroutine that owns the bridge state
type Runner interface {
	Do(ctx context.Context, fn func(*bridge.State)) error
}

// NetworkStatus reports whether the bridge's network side is up and its address
type NetworkStatus func() (connected bool, ip string)

type Options struct {
	WebDir   string
	Network  NetworkStatus
	Gatherer prometheus.Gatherer
	Hub      *Hub
	Logger   *slog.Logger
}

// Server holds the HTTP handlers
type Server struct {
	runner  Runner
	webDir  string
	network NetworkStatus
	gather  prometheus.Gatherer
	hub     *Hub
	logger  *slog.Logger
}

// NewServer creates the HTTP handlers for runner
func NewServer(runner Runner, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Network == nil {
		opts.Network = func() (bool, string) { return true, "0.0.0.0" }
	}
	return &Server{
		runner:  runner,
		webDir:  opts.WebDir,
		network: opts.Network,
		gather:  opts.Gatherer,
		hub:     opts.Hub,
		logger:  opts.Logger,
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	if s.gather != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/messages", s.handleMessages)
		r.Get("/state", s.handleState)
		r.Post("/cmd", s.handleCommand)
		r.Get("/thresholds", s.handleThresholdsGet)
		r.Post("/thresholds", s.handleThresholdsPost)
		if s.hub != nil {
			r.Get("/stream", s.hub.Handler(s.runner))
		}
	})

	r.NotFound(s.handleStatic)
	return r
}

// requestLogger logs one line per request with slog
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// do runs fn on the bridge loop and reports 503 when the loop is gone
func (s *Server) do(w http.ResponseWriter, r *http.Request, fn func(*bridge.State)) bool {
	if err := s.runner.Do(r.Context(), fn); err != nil {
		s.logger.Warn("bridge unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "bridge unavailable")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var connected bool
	if !s.do(w, r, func(st *bridge.State) { connected = st.Connected() }) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "peerConnected": connected})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var after uint32
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			after = uint32(n)
		}
	}

	var entries []bridge.MessageEntry
	var latest uint32
	if !s.do(w, r, func(st *bridge.State) {
		entries = st.Log.Entries(after)
		latest = st.Log.LatestID()
	}) {
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(HeaderLastMessageID, strconv.FormatUint(uint64(latest), 10))

	if strings.Contains(r.Header.Get("Accept"), contentTypeCBOR) {
		if entries == nil {
			entries = []bridge.MessageEntry{}
		}
		data, err := cbor.Marshal(entries)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode messages")
			return
		}
		w.Header().Set("Content-Type", contentTypeCBOR)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	var body bytes.Buffer
	for _, e := range entries {
		body.WriteString(e.Payload)
		body.WriteByte('\n')
	}
	w.Header().Set("Content-Type", contentTypeNDJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	connected, ip := s.network()

	var resp stateResponse
	if !s.do(w, r, func(st *bridge.State) {
		resp = newStateResponse(st, linkStatus{Connected: connected, IP: ip})
	}) {
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// readBody returns the request body, or writes 400 (413 when larger than
// maxBodySize) and returns false
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body exceeds "+strconv.Itoa(maxBodySize)+" bytes")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, "missing JSON body")
		return nil, false
	}
	return body, true
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	cmd, err := ndjson.DecodeCommand(body)
	switch {
	case errors.Is(err, ndjson.ErrMalformed):
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var id uint32
	var sendErr error
	if !s.do(w, r, func(st *bridge.State) {
		id, sendErr = st.SendCommand(cmd)
	}) {
		return
	}

	if sendErr != nil {
		if ndjson.IsValidationError(sendErr) {
			writeError(w, http.StatusUnprocessableEntity, sendErr.Error())
			return
		}
		s.logger.Warn("command write failed", "command", cmd.String(), "error", sendErr)
		writeError(w, http.StatusInternalServerError, "failed to write to peer: "+sendErr.Error())
		return
	}

	s.logger.Info("command sent", "command", cmd.String(), "id", id)
	writeJSON(w, http.StatusOK, commandResponse{Result: "sent", QueuedID: id})
}

func (s *Server) handleThresholdsGet(w http.ResponseWriter, r *http.Request) {
	var resp thresholdsResponse
	if !s.do(w, r, func(st *bridge.State) { resp = newThresholdsResponse(st) }) {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleThresholdsPost(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	update, err := bridge.DecodeThresholdUpdate(body)
	switch {
	case errors.Is(err, ndjson.ErrMalformed):
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var resp thresholdsResponse
	if !s.do(w, r, func(st *bridge.State) {
		st.Engine.Thresholds.Apply(update)
		resp = newThresholdsResponse(st)
	}) {
		return
	}

	s.logger.Info("thresholds updated", "fields", len(update))
	writeJSON(w, http.StatusOK, resp)
}
