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

func (s *APIServer) handleLearningStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.learning.Status())
}

type learningStartRequest struct {
	ExcludeStorage bool `json:"exclude_storage"`
}

func (s *APIServer) handleLearningStart(w http.ResponseWriter, r *http.Request) {
	var req learningStartRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	info, err := s.learning.StartSession(req.ExcludeStorage)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, info)
}

type learningStopRequest struct {
	Save bool `json:"save"`
}

func (s *APIServer) handleLearningStop(w http.ResponseWriter, r *http.Request) {
	var req learningStopRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	proposal, err := s.learning.StopSession(req.Save)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if req.Save && proposal != nil && len(proposal.Members) > 0 {
		if _, err := s.config.AddPhysicalGroup("", "", proposal.Members); err != nil {
			s.writeEngineError(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"saved":    req.Save,
		"proposal": proposal,
	})
}

func (s *APIServer) handleLearningPreview(w http.ResponseWriter, _ *http.Request) {
	proposal, err := s.learning.Preview()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, proposal)
}

func (s *APIServer) handleTestableHubs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.TestableHubs())
}

func (s *APIServer) handleTestHub(w http.ResponseWriter, r *http.Request) {
	portPath := mux.Vars(r)["port_path"]

	proposal, err := s.bisect.TestHub(r.Context(), portPath)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, proposal)
}
