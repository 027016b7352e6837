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

package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubscope/hubscope/pkg/models"
)

func device(portPath string, isRoot bool) *models.Device {
	return &models.Device{PortPath: portPath, IsRootHub: isRoot}
}

func countDevices(forest []*models.Device) int {
	total := 0

	for _, root := range forest {
		total++
		total += countDevices(root.Children)
	}

	return total
}

func findRoot(t *testing.T, forest []*models.Device, portPath string) *models.Device {
	t.Helper()

	for _, root := range forest {
		if root.PortPath == portPath {
			return root
		}
	}

	require.Failf(t, "root not found", "no root with port path %q", portPath)

	return nil
}

func TestBuildForestNesting(t *testing.T) {
	devices := []*models.Device{
		device("3-2.1", false),
		device("usb3", true),
		device("3-2", false),
		device("3-2.1.4", false),
		device("3-1", false),
	}

	forest := BuildForest(devices)

	require.Len(t, forest, 1)
	assert.Equal(t, len(devices), countDevices(forest))

	root := forest[0]
	assert.Equal(t, "usb3", root.PortPath)
	require.Len(t, root.Children, 2)

	var hub *models.Device

	for _, child := range root.Children {
		assert.Equal(t, "usb3", child.ParentPath)

		if child.PortPath == "3-2" {
			hub = child
		}
	}

	require.NotNil(t, hub)
	require.Len(t, hub.Children, 1)
	assert.Equal(t, "3-2.1", hub.Children[0].PortPath)
	require.Len(t, hub.Children[0].Children, 1)
	assert.Equal(t, "3-2.1.4", hub.Children[0].Children[0].PortPath)
}

func TestBuildForestMultipleBuses(t *testing.T) {
	devices := []*models.Device{
		device("usb1", true),
		device("usb2", true),
		device("1-3", false),
		device("2-1", false),
	}

	forest := BuildForest(devices)

	require.Len(t, forest, 2)
	assert.Equal(t, 4, countDevices(forest))

	assert.Len(t, findRoot(t, forest, "usb1").Children, 1)
	assert.Len(t, findRoot(t, forest, "usb2").Children, 1)
}

func TestBuildForestOrphanBecomesRoot(t *testing.T) {
	// 4-1.2's parent 4-1 is absent; the device must stay visible.
	devices := []*models.Device{
		device("usb4", true),
		device("4-1.2", false),
	}

	forest := BuildForest(devices)

	require.Len(t, forest, 2)
	findRoot(t, forest, "4-1.2")
}

func TestBuildForestResetsStaleChildren(t *testing.T) {
	hub := device("3-2", false)
	hub.Children = []*models.Device{device("3-9.9", false)}

	forest := BuildForest([]*models.Device{device("usb3", true), hub})

	root := findRoot(t, forest, "usb3")
	require.Len(t, root.Children, 1)
	assert.Empty(t, root.Children[0].Children)
}

func TestBuildForestEmpty(t *testing.T) {
	assert.Empty(t, BuildForest(nil))
}
