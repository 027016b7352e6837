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

type groupRequest struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Members []string `json:"members"`
}

func (s *APIServer) handleGetGroups(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.config.PhysicalGroups())
}

func (s *APIServer) handleAddGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Members) == 0 {
		s.writeError(w, "members must not be empty", http.StatusBadRequest)
		return
	}

	group, err := s.config.AddPhysicalGroup(req.Name, req.Label, req.Members)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, group)
}

func (s *APIServer) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req groupRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.config.UpdatePhysicalGroup(name, req.Label, req.Members); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *APIServer) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := s.config.DeletePhysicalGroup(name); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
