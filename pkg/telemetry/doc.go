// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry tracing and metrics for launchpad.
//
// Deploy and undeploy runs open spans through otel.Tracer; Init decides
// where they go. Trace exporters are "otlp", "stdout" or "none". Metric
// exporters are "prometheus", "stdout" or "none"; the prometheus exporter
// registers with the same registry the deploy metrics live in, so one
// textfile dump (WriteTextfile) carries both.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Registerer = reg
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - LAUNCHPAD_ENV: environment name (default: development)
package telemetry
