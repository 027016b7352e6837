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

// Package topology assembles flat device collections into rooted forests
// using port-path structure.
package topology

import (
	"sort"

	"github.com/hubscope/hubscope/pkg/models"
)

// BuildForest arranges devices into a forest of root devices with
// children populated. Every input device appears exactly once in the
// output: as a root (root hubs and orphans whose parent is not indexed)
// or under exactly one parent. Children slices on the inputs are reset;
// the devices themselves are not copied.
func BuildForest(devices []*models.Device) []*models.Device {
	// The index covers every device regardless of processing order; the
	// by-length sort only makes parents appear before their descendants
	// in the output ordering.
	index := make(map[string]*models.Device, len(devices))

	for _, dev := range devices {
		dev.Children = nil
		index[dev.PortPath] = dev
	}

	sorted := make([]*models.Device, len(devices))
	copy(sorted, devices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].PortPath) < len(sorted[j].PortPath)
	})

	var roots []*models.Device

	for _, dev := range sorted {
		if dev.IsRootHub || models.IsRootPath(dev.PortPath) {
			roots = append(roots, dev)
			continue
		}

		parentPath := models.ParentPortPath(dev.PortPath)
		if parentPath == "" {
			roots = append(roots, dev)
			continue
		}

		parent, ok := index[parentPath]
		if !ok {
			// Orphan: keep it visible as a root rather than dropping it.
			roots = append(roots, dev)
			continue
		}

		dev.ParentPath = parentPath
		parent.Children = append(parent.Children, dev)
	}

	return roots
}
