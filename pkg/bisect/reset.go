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

package bisect

import (
	"context"
	"fmt"
)

// ResetDevice power-cycles one device by toggling its authorization
// attribute. It shares the engine's single in-flight guard: a reset and
// a hub test must not interleave their sysfs writes.
func (e *Engine) ResetDevice(ctx context.Context, portPath string) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrTestInProgress
	}
	defer e.inFlight.Store(false)

	if !e.store.Has(portPath) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, portPath)
	}

	if !e.auth.Exists(portPath) {
		return fmt.Errorf("%w: %s", ErrNoAuthControl, portPath)
	}

	if err := e.auth.SetAuthorized(portPath, false); err != nil {
		return fmt.Errorf("disabling %s: %w", portPath, err)
	}

	waitErr := e.sleep(ctx, e.settle.Reset)

	if restoreErr := e.auth.SetAuthorized(portPath, true); restoreErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrRestoreFailed, portPath, restoreErr)
	}

	if waitErr != nil {
		return waitErr
	}

	e.logger.Info().Str("port_path", portPath).Msg("Device reset complete")

	return nil
}
