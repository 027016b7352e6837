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

// Package bisect implements the active bisection engine: a two-phase
// de-authorize/observe hardware experiment that confirms which hubs
// share a physical enclosure with a target hub.
package bisect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hubscope/hubscope/pkg/logger"
	"github.com/hubscope/hubscope/pkg/models"
)

var (
	// ErrHubNotFound is returned when the target port path is unknown.
	ErrHubNotFound = errors.New("hub not found")

	// ErrDeviceNotFound is returned by device-level operations for an
	// unknown port path.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNotAHub is returned when the target is not a hub device.
	ErrNotAHub = errors.New("device is not a hub")

	// ErrNoAuthControl is returned when the target exposes no writable
	// authorization attribute.
	ErrNoAuthControl = errors.New("authorization control unavailable")

	// ErrPermissionDenied indicates insufficient privilege to write the
	// authorization control. Reported distinctly so callers can tell the
	// operator that elevated privilege is required.
	ErrPermissionDenied = errors.New("permission denied writing authorization control")

	// ErrTestInProgress rejects a second test while one is running.
	// Concurrent sysfs writes would conflict.
	ErrTestInProgress = errors.New("hub test already in progress")

	// ErrLearningActive rejects a test during a learning session: the
	// disconnects it provokes would pollute correlation data.
	ErrLearningActive = errors.New("hub test refused while a learning session is active")

	// ErrRestoreFailed reports that a restoring authorize write failed
	// after a de-authorize, leaving hardware disabled. The worst failure
	// mode of this engine; never swallowed.
	ErrRestoreFailed = errors.New("failed to restore device authorization")

	// ErrEmptyGroup guards against the confirmed set ending up empty,
	// which means the target itself never came back.
	ErrEmptyGroup = errors.New("no hubs detected in group")
)

// Authorizer is the per-device hardware control point: a boolean
// "authorized" attribute addressed by port path. Clearing it logically
// disconnects the device and its descendants.
type Authorizer interface {
	// Exists reports whether the port path exposes an authorization
	// attribute.
	Exists(portPath string) bool

	// SetAuthorized writes the attribute. Implementations wrap
	// permission failures in ErrPermissionDenied.
	SetAuthorized(portPath string, authorized bool) error
}

// StoreView is the slice of the live state store the engine observes
// between hardware writes.
type StoreView interface {
	Get(portPath string) (*models.Device, bool)
	Has(portPath string) bool
	HubPaths() map[string]bool
}

// SessionChecker reports whether a learning session is open.
type SessionChecker interface {
	Active() bool
}

// Settle holds the fixed wait intervals between hardware writes and
// state observations.
type Settle struct {
	// Phase1 follows the target de-authorize, long enough for removal
	// notifications to land.
	Phase1 time.Duration

	// Reconnect follows the target re-authorize; full reconnection takes
	// longer than removal.
	Reconnect time.Duration

	// Candidate follows each candidate de-authorize.
	Candidate time.Duration

	// CandidateRecover follows each candidate re-authorize.
	CandidateRecover time.Duration

	// Result precedes display-metadata collection, giving members a last
	// chance to reappear.
	Result time.Duration

	// Reset is the off interval of a device power-cycle.
	Reset time.Duration
}

// DefaultSettle returns the production settle intervals.
func DefaultSettle() Settle {
	return Settle{
		Phase1:           400 * time.Millisecond,
		Reconnect:        800 * time.Millisecond,
		Candidate:        300 * time.Millisecond,
		CandidateRecover: 500 * time.Millisecond,
		Result:           300 * time.Millisecond,
		Reset:            500 * time.Millisecond,
	}
}

// Engine runs bisection tests. A single test may be in flight at a time.
type Engine struct {
	store    StoreView
	auth     Authorizer
	learning SessionChecker
	settle   Settle
	inFlight atomic.Bool
	logger   logger.Logger
}

// NewEngine creates a bisection engine. learning may be nil.
func NewEngine(store StoreView, auth Authorizer, learning SessionChecker, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Engine{
		store:    store,
		auth:     auth,
		learning: learning,
		settle:   DefaultSettle(),
		logger:   log.WithComponent("bisect"),
	}
}

// SetSettle overrides the settle intervals. Tests use near-zero waits.
func (e *Engine) SetSettle(settle Settle) {
	e.settle = settle
}

// TestHub runs the two-phase experiment against a hub and returns the
// confirmed physical group: the target plus every candidate with a
// bidirectional dependency on it. Every de-authorize performed during
// the test is paired with a restoring authorize write, on error and
// abort paths included.
func (e *Engine) TestHub(ctx context.Context, portPath string) (*models.GroupProposal, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTestInProgress
	}
	defer e.inFlight.Store(false)

	if e.learning != nil && e.learning.Active() {
		return nil, ErrLearningActive
	}

	dev, ok := e.store.Get(portPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHubNotFound, portPath)
	}

	if dev.DeviceClass != models.DeviceClassHub {
		return nil, fmt.Errorf("%w: %s", ErrNotAHub, portPath)
	}

	if !e.auth.Exists(portPath) {
		return nil, fmt.Errorf("%w: %s", ErrNoAuthControl, portPath)
	}

	candidates, err := e.findCandidates(ctx, portPath)
	if err != nil {
		return nil, err
	}

	e.logger.Info().Str("target", portPath).Int("candidates", len(candidates)).Msg("Phase 1 complete")

	members := []string{portPath}

	for _, candidate := range candidates {
		same, err := e.confirmCandidate(ctx, portPath, candidate)
		if err != nil {
			return nil, err
		}

		if same {
			e.logger.Info().Str("candidate", candidate).Msg("Candidate is same physical device")
			members = append(members, candidate)
		} else {
			e.logger.Info().Str("candidate", candidate).Msg("Candidate is downstream only")
		}
	}

	if err := e.sleep(ctx, e.settle.Result); err != nil {
		return nil, err
	}

	if len(members) == 0 {
		return nil, ErrEmptyGroup
	}

	return e.buildProposal(portPath, members), nil
}

// findCandidates is phase 1: disable the target, record which non-root
// hubs vanish, re-enable. The restoring write runs on every path after a
// successful disable.
func (e *Engine) findCandidates(ctx context.Context, target string) ([]string, error) {
	before := e.store.HubPaths()

	if err := e.auth.SetAuthorized(target, false); err != nil {
		return nil, fmt.Errorf("disabling target %s: %w", target, err)
	}

	waitErr := e.sleep(ctx, e.settle.Phase1)

	var candidates []string

	if waitErr == nil {
		after := e.store.HubPaths()

		for path := range before {
			if path != target && !after[path] {
				candidates = append(candidates, path)
			}
		}

		sort.Strings(candidates)
	}

	if restoreErr := e.auth.SetAuthorized(target, true); restoreErr != nil {
		return nil, fmt.Errorf("%w: target %s: %w", ErrRestoreFailed, target, restoreErr)
	}

	if waitErr != nil {
		return nil, waitErr
	}

	if err := e.sleep(ctx, e.settle.Reconnect); err != nil {
		return nil, err
	}

	return candidates, nil
}

// confirmCandidate is one phase-2 probe: disable the candidate and check
// whether the target vanishes with it. Only a bidirectional dependency
// marks the same physical enclosure; a candidate that leaves the target
// attached is merely downstream.
func (e *Engine) confirmCandidate(ctx context.Context, target, candidate string) (bool, error) {
	if !e.auth.Exists(candidate) {
		e.logger.Warn().Str("candidate", candidate).Msg("Candidate has no authorization control, skipping")
		return false, nil
	}

	if err := e.auth.SetAuthorized(candidate, false); err != nil {
		// The candidate stays untested; the target is unaffected.
		e.logger.Warn().Err(err).Str("candidate", candidate).Msg("Failed to disable candidate, skipping")
		return false, nil
	}

	waitErr := e.sleep(ctx, e.settle.Candidate)

	same := false
	if waitErr == nil {
		same = !e.store.Has(target)
	}

	if restoreErr := e.auth.SetAuthorized(candidate, true); restoreErr != nil {
		return false, fmt.Errorf("%w: candidate %s: %w", ErrRestoreFailed, candidate, restoreErr)
	}

	if waitErr != nil {
		return false, waitErr
	}

	if err := e.sleep(ctx, e.settle.CandidateRecover); err != nil {
		return false, err
	}

	return same, nil
}

// buildProposal attaches display metadata to the confirmed members. A
// member that has not reconnected yet at result time falls back to bare
// port-path naming.
func (e *Engine) buildProposal(target string, members []string) *models.GroupProposal {
	proposal := &models.GroupProposal{
		ID:        uuid.NewString(),
		Members:   members,
		TestedHub: target,
		Timestamp: time.Now(),
	}

	for _, member := range members {
		if dev, ok := e.store.Get(member); ok {
			proposal.Devices = append(proposal.Devices, models.GroupMember{
				PortPath:    member,
				Name:        dev.DisplayName(),
				DeviceClass: dev.DeviceClass,
			})

			continue
		}

		proposal.Devices = append(proposal.Devices, models.GroupMember{
			PortPath:    member,
			Name:        member,
			DeviceClass: models.DeviceClassHub,
		})
	}

	return proposal
}

// sleep waits a settle interval. Cancellation aborts the wait; callers
// still execute their restoring writes before propagating the error.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
