// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ClientMetrics are the outbound HTTP instruments recorded by Transport.
type ClientMetrics struct {
	RequestsTotal   metric.Int64Counter
	RequestDuration metric.Float64Histogram
}

// NewClientMetrics registers the client instruments with meter.
func NewClientMetrics(meter metric.Meter) (*ClientMetrics, error) {
	m := &ClientMetrics{}
	var err error

	m.RequestsTotal, err = meter.Int64Counter(
		"launchpad_http_client_requests_total",
		metric.WithDescription("Outbound HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_client_requests_total: %w", err)
	}

	m.RequestDuration, err = meter.Float64Histogram(
		"launchpad_http_client_request_duration_seconds",
		metric.WithDescription("Outbound HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_client_request_duration: %w", err)
	}
	return m, nil
}

// Transport is an http.RoundTripper that opens a client span per request,
// injects the trace context into the request headers, and records
// ClientMetrics.
//
// Description:
//
//	Requests are labelled with a caller-chosen target (for example
//	"controlplane") rather than the URL, because platform URLs embed
//	resource ids. Response status >= 500 and transport errors mark the
//	span as failed.
//
// Thread Safety: Safe for concurrent use.
type Transport struct {
	Base    http.RoundTripper
	Target  string
	Metrics *ClientMetrics

	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, target string, metrics *ClientMetrics) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		Base:       base,
		Target:     target,
		Metrics:    metrics,
		tracer:     otel.Tracer("launchpad.http"),
		propagator: otel.GetTextMapPropagator(),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), t.Target+" "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.host", req.URL.Host),
			attribute.String("http.target", req.URL.Path),
		),
	)
	defer span.End()

	req = req.Clone(ctx)
	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	elapsed := time.Since(start).Seconds()

	status := "error"
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		status = strconv.Itoa(resp.StatusCode)
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if resp.StatusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
	}

	if t.Metrics != nil {
		attrs := metric.WithAttributes(
			attribute.String("target", t.Target),
			attribute.String("method", req.Method),
			attribute.String("status", status),
		)
		t.Metrics.RequestsTotal.Add(ctx, 1, attrs)
		t.Metrics.RequestDuration.Record(ctx, elapsed, attrs)
	}
	return resp, err
}
