// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AleutianAI/launchpad/cmd/launchpad/config"
	"github.com/AleutianAI/launchpad/internal/deploy"
	"github.com/AleutianAI/launchpad/internal/workspace"
	"github.com/AleutianAI/launchpad/pkg/logging"
	"github.com/AleutianAI/launchpad/pkg/telemetry"
	"github.com/AleutianAI/launchpad/pkg/ux"
)

const shutdownTimeout = 5 * time.Second

// cliEnv is everything a command needs after the workspace was found.
//
// # Description
//
// One registry is shared by the run metrics and the OpenTelemetry
// Prometheus exporter, so --metrics-file captures both.
type cliEnv struct {
	paths    config.Paths
	ws       *workspace.Workspace
	printer  *ux.Printer
	logger   *logging.Logger
	rootLog  *logging.Logger
	registry *prometheus.Registry
	metrics  *deploy.Metrics
	shutdown func(context.Context) error
}

// newEnv loads the workspace and starts logging and telemetry.
func newEnv(ctx context.Context) (*cliEnv, error) {
	mode := ux.DetectMode(os.Stdout)
	if outputMode != "" {
		mode = ux.ParseMode(outputMode)
	}
	printer := ux.NewPrinter(os.Stdout, os.Stderr, mode)

	root, err := config.FindRoot(workspaceDir)
	if err != nil {
		return nil, err
	}
	ws, err := config.LoadWorkspace(root)
	if err != nil {
		return nil, err
	}
	paths := config.Paths{Root: root}

	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  paths.LogsDir(),
		Service: "launchpad",
		JSON:    mode == ux.ModeMachine,
		Output:  os.Stderr,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	tcfg := telemetry.DefaultConfig()
	if traceMode != "" {
		tcfg.TraceExporter = traceMode
	}
	if stage != "" {
		tcfg.Environment = stage
	}
	tcfg.Registerer = registry
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("starting telemetry: %w", err)
	}

	logger.Debug("workspace loaded", "root", root, "apps", len(ws.Apps))
	return &cliEnv{
		paths:    paths,
		ws:       ws,
		printer:  printer,
		logger:   logger.With("workspace", ws.Name),
		rootLog:  logger,
		registry: registry,
		metrics:  deploy.NewMetrics(registry),
		shutdown: shutdown,
	}, nil
}

// close writes the metrics file, flushes telemetry and closes the log file.
func (e *cliEnv) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if e.shutdown != nil {
		if err := e.shutdown(ctx); err != nil {
			e.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
	if metricsFile != "" {
		if err := telemetry.WriteTextfile(e.registry, metricsFile); err != nil {
			e.printer.Warning(fmt.Sprintf("could not write metrics to %s: %v", metricsFile, err))
		}
	}
	e.rootLog.Close()
}
