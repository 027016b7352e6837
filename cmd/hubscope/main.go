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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/hubscope/hubscope/pkg/bisect"
	"github.com/hubscope/hubscope/pkg/config"
	"github.com/hubscope/hubscope/pkg/core/api"
	"github.com/hubscope/hubscope/pkg/dmesg"
	"github.com/hubscope/hubscope/pkg/events"
	"github.com/hubscope/hubscope/pkg/learning"
	"github.com/hubscope/hubscope/pkg/lifecycle"
	"github.com/hubscope/hubscope/pkg/state"
	"github.com/hubscope/hubscope/pkg/usb"
	"github.com/hubscope/hubscope/pkg/usbids"
	"github.com/hubscope/hubscope/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/hubscope/config.yaml", "Path to config file")
	listenAddr := flag.String("listen", "", "Listen address override (host:port)")
	usbIDsPath := flag.String("usb-ids", "", "Path to usb.ids database (auto-detected when empty)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersion())
		return nil
	}

	cfg := config.NewManager(*configPath, nil)
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logr, err := lifecycle.CreateLogger(cfg.Logging())
	if err != nil {
		return err
	}

	ctx, cancel := lifecycle.SignalContext()
	defer cancel()

	names := usbids.New(*usbIDsPath, logr)
	builder := usb.NewBuilder(names, cfg.DeviceName, logr)
	source := usb.NewSysfsSource(logr)
	bus := events.NewBus(logr)

	store := state.NewStore(source, builder, bus, logr)
	if _, err := store.Rescan(ctx); err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	learner := learning.NewEngine(store, cfg, bus, logr)
	store.SetDisconnectRecorder(learner)

	tester := bisect.NewEngine(store, bisect.NewSysfsAuthorizer(), learner, logr)

	watcher := dmesg.NewWatcher(store, bus, logr)

	server := api.NewAPIServer(store, learner, tester, cfg, watcher, bus, logr)

	addr := cfg.ListenAddr()
	if *listenAddr != "" {
		addr = *listenAddr
	}

	monitor := state.NewMonitor(store, source, logr)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return monitor.Run(groupCtx)
	})

	group.Go(func() error {
		return watcher.Run(groupCtx)
	})

	group.Go(func() error {
		return server.Run(groupCtx, addr)
	})

	if err := group.Wait(); err != nil && !isShutdown(err) {
		return err
	}

	logr.Info().Msg("Shutdown complete")

	return nil
}

func isShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
