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

package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *APIServer) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	// A fresh read of the bus keeps the tree honest even if an uevent
	// was dropped.
	if _, err := s.store.Rescan(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Rescan failed, serving cached tree")
	}

	s.writeJSON(w, http.StatusOK, s.store.SnapshotTree())
}

func (s *APIServer) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	portPath := mux.Vars(r)["port_path"]

	device, ok := s.store.Get(portPath)
	if !ok {
		s.writeError(w, "device not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, device)
}

func (s *APIServer) handleResetDevice(w http.ResponseWriter, r *http.Request) {
	portPath := mux.Vars(r)["port_path"]

	if err := s.bisect.ResetDevice(r.Context(), portPath); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "port_path": portPath})
}

type setNameRequest struct {
	VendorID  string `json:"vendor_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
}

func (s *APIServer) handleSetDeviceName(w http.ResponseWriter, r *http.Request) {
	var req setNameRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.VendorID == "" || req.ProductID == "" {
		s.writeError(w, "vendor_id and product_id are required", http.StatusBadRequest)
		return
	}

	if err := s.config.SetDeviceName(req.VendorID, req.ProductID, req.Name); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *APIServer) handleGetErrors(w http.ResponseWriter, _ *http.Request) {
	if s.dmesg == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}

	s.writeJSON(w, http.StatusOK, s.dmesg.Recent())
}

func (s *APIServer) handleGetHubLabels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.config.HubLabels())
}

type setHubLabelRequest struct {
	PortPath string `json:"port_path"`
	Label    string `json:"label"`
}

func (s *APIServer) handleSetHubLabel(w http.ResponseWriter, r *http.Request) {
	var req setHubLabelRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.PortPath == "" {
		s.writeError(w, "port_path is required", http.StatusBadRequest)
		return
	}

	if err := s.config.SetHubLabel(req.PortPath, req.Label); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
