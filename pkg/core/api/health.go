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
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/hubscope/hubscope/pkg/version"
)

type healthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	Hostname      string    `json:"hostname,omitempty"`
	KernelVersion string    `json:"kernel_version,omitempty"`
	UptimeSeconds uint64    `json:"uptime_seconds,omitempty"`
	DeviceCount   int       `json:"device_count"`
	Subscribers   int       `json:"ws_subscribers"`
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Version:     version.GetVersion(),
		Timestamp:   time.Now(),
		DeviceCount: len(s.store.Devices()),
		Subscribers: s.bus.SubscriberCount(),
	}

	if info, err := host.InfoWithContext(r.Context()); err == nil {
		resp.Hostname = info.Hostname
		resp.KernelVersion = info.KernelVersion
		resp.UptimeSeconds = info.Uptime
	} else {
		s.logger.Debug().Err(err).Msg("Host info unavailable")
	}

	s.writeJSON(w, http.StatusOK, resp)
}
