/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api provides the HTTP and WebSocket API over the topology
// engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hubscope/hubscope/pkg/bisect"
	"github.com/hubscope/hubscope/pkg/config"
	"github.com/hubscope/hubscope/pkg/dmesg"
	"github.com/hubscope/hubscope/pkg/events"
	"github.com/hubscope/hubscope/pkg/learning"
	"github.com/hubscope/hubscope/pkg/logger"
	"github.com/hubscope/hubscope/pkg/state"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// APIServer serves the REST routes and the event stream.
type APIServer struct {
	store    *state.Store
	learning *learning.Engine
	bisect   *bisect.Engine
	config   *config.Manager
	dmesg    *dmesg.Watcher
	bus      *events.Bus
	router   *mux.Router
	logger   logger.Logger
}

// NewAPIServer wires the API over the engine components. dmesg may be
// nil.
func NewAPIServer(
	store *state.Store,
	learningEngine *learning.Engine,
	bisectEngine *bisect.Engine,
	configMgr *config.Manager,
	dmesgWatcher *dmesg.Watcher,
	bus *events.Bus,
	log logger.Logger,
) *APIServer {
	if log == nil {
		log = logger.NewTestLogger()
	}

	s := &APIServer{
		store:    store,
		learning: learningEngine,
		bisect:   bisectEngine,
		config:   configMgr,
		dmesg:    dmesgWatcher,
		bus:      bus,
		router:   mux.NewRouter(),
		logger:   log.WithComponent("api"),
	}

	s.setupRoutes()

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.HandleFunc("/api/devices", s.handleGetDevices).Methods(http.MethodGet)
	s.router.HandleFunc("/api/device/{port_path}", s.handleGetDevice).Methods(http.MethodGet)
	s.router.HandleFunc("/api/device/{port_path}/reset", s.handleResetDevice).Methods(http.MethodPost)
	s.router.HandleFunc("/api/device/name", s.handleSetDeviceName).Methods(http.MethodPost)

	s.router.HandleFunc("/api/errors", s.handleGetErrors).Methods(http.MethodGet)

	s.router.HandleFunc("/api/hub-labels", s.handleGetHubLabels).Methods(http.MethodGet)
	s.router.HandleFunc("/api/hub-labels", s.handleSetHubLabel).Methods(http.MethodPost)

	s.router.HandleFunc("/api/physical-groups", s.handleGetGroups).Methods(http.MethodGet)
	s.router.HandleFunc("/api/physical-groups", s.handleAddGroup).Methods(http.MethodPost)
	s.router.HandleFunc("/api/physical-groups/{name}", s.handleUpdateGroup).Methods(http.MethodPut)
	s.router.HandleFunc("/api/physical-groups/{name}", s.handleDeleteGroup).Methods(http.MethodDelete)

	s.router.HandleFunc("/api/learning/status", s.handleLearningStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/learning/start", s.handleLearningStart).Methods(http.MethodPost)
	s.router.HandleFunc("/api/learning/stop", s.handleLearningStop).Methods(http.MethodPost)
	s.router.HandleFunc("/api/learning/preview", s.handleLearningPreview).Methods(http.MethodGet)
	s.router.HandleFunc("/api/learning/hubs", s.handleTestableHubs).Methods(http.MethodGet)
	s.router.HandleFunc("/api/learning/test-hub/{port_path}", s.handleTestHub).Methods(http.MethodPost)

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler exposes the router, mostly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *APIServer) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", addr).Msg("API server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	}
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine failures to HTTP statuses. Permission
// failures get their own status so clients can tell the operator that
// elevated privilege is required.
func (s *APIServer) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, bisect.ErrHubNotFound),
		errors.Is(err, bisect.ErrDeviceNotFound),
		errors.Is(err, config.ErrGroupNotFound):
		status = http.StatusNotFound

	case errors.Is(err, bisect.ErrPermissionDenied):
		status = http.StatusForbidden

	case errors.Is(err, bisect.ErrTestInProgress),
		errors.Is(err, bisect.ErrLearningActive),
		errors.Is(err, learning.ErrSessionActive),
		errors.Is(err, learning.ErrNoSession),
		errors.Is(err, config.ErrMemberTaken):
		status = http.StatusConflict

	case errors.Is(err, bisect.ErrNotAHub),
		errors.Is(err, bisect.ErrNoAuthControl):
		status = http.StatusBadRequest

	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}

	s.writeError(w, err.Error(), status)
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(into)
}
