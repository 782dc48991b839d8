// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deploy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/launchpad/internal/reconcile"
	"github.com/AleutianAI/launchpad/internal/workspace"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "launchpad"

// Metrics holds the Prometheus metrics of deploy and undeploy runs.
//
// # Fields
//
//   - AppsTotal: Apps processed, by type and result (success, failed).
//   - AppDurationSeconds: Wall time of one app, by type.
//   - ReconcileTotal: Reconciled resources, by resource and action.
//   - UndeployStepErrorsTotal: Failed teardown steps, by step.
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	AppsTotal               *prometheus.CounterVec
	AppDurationSeconds      *prometheus.HistogramVec
	ReconcileTotal          *prometheus.CounterVec
	UndeployStepErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AppsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "deploy",
				Name:      "apps_total",
				Help:      "Apps processed by deploy runs",
			},
			[]string{"type", "result"},
		),
		AppDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "deploy",
				Name:      "app_duration_seconds",
				Help:      "Time to deploy one app",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"type"},
		),
		ReconcileTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "reconcile_total",
				Help:      "Remote resources reconciled, by how they were obtained",
			},
			[]string{"resource", "action"},
		),
		UndeployStepErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "undeploy",
				Name:      "step_errors_total",
				Help:      "Failed teardown steps",
			},
			[]string{"step"},
		),
	}
}

// RecordApp counts a finished app.
func (m *Metrics) RecordApp(t workspace.AppType, success bool, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failed"
	}
	m.AppsTotal.WithLabelValues(string(t), result).Inc()
	m.AppDurationSeconds.WithLabelValues(string(t)).Observe(seconds)
}

// RecordReconcile counts one reconciled resource.
func (m *Metrics) RecordReconcile(resource string, action reconcile.Action) {
	if m == nil {
		return
	}
	m.ReconcileTotal.WithLabelValues(resource, string(action)).Inc()
}

// RecordUndeployError counts one failed teardown step.
func (m *Metrics) RecordUndeployError(step string) {
	if m == nil {
		return
	}
	m.UndeployStepErrorsTotal.WithLabelValues(step).Inc()
}
