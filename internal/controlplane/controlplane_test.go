// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestHTTPClient_SendsAPIKeyAndDecodes tests the request envelope.
func TestHTTPClient_SendsAPIKeyAndDecodes(t *testing.T) {
	var gotKey, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("applicationId")
		_ = json.NewEncoder(w).Encode(Application{ID: "a1", Name: "api"})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/", Token: "tok", RequestsPerSecond: 1000})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	app, err := c.GetApplication(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if app.Name != "api" {
		t.Errorf("Name = %q", app.Name)
	}
	if gotKey != "tok" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotPath != "/api/application.one" || gotQuery != "a1" {
		t.Errorf("request = %s ?applicationId=%s", gotPath, gotQuery)
	}
}

// TestHTTPClient_MutationBody tests that mutations POST JSON.
func TestHTTPClient_MutationBody(t *testing.T) {
	var body map[string]any
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Token: "tok", RequestsPerSecond: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetPostgresExternalPort(context.Background(), "pg1", nil); err != nil {
		t.Fatalf("SetPostgresExternalPort: %v", err)
	}
	if method != http.MethodPost {
		t.Errorf("method = %s", method)
	}
	if v, ok := body["externalPort"]; !ok || v != nil {
		t.Errorf("externalPort should be an explicit null, got %v (present=%v)", v, ok)
	}
}

// TestHTTPClient_APIError tests status and issue decoding.
func TestHTTPClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Application not found","issues":[{"message":"bad id","path":["applicationId"]}]}`))
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Token: "tok", RequestsPerSecond: 1000})
	_, err := c.GetApplication(context.Background(), "missing")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if !apiErr.IsNotFound() || !errors.Is(err, ErrNotFound) {
		t.Error("404 should match ErrNotFound")
	}
	if len(apiErr.Issues) != 1 || apiErr.Issues[0].Path[0] != "applicationId" {
		t.Errorf("Issues = %+v", apiErr.Issues)
	}
}

// TestAPIError_Conflict tests already-exists classification.
func TestAPIError_Conflict(t *testing.T) {
	if !(&APIError{StatusCode: 409}).IsConflict() {
		t.Error("409 is a conflict")
	}
	if !(&APIError{StatusCode: 400, Message: "Domain already exists"}).IsConflict() {
		t.Error("400 already exists is a conflict")
	}
	if (&APIError{StatusCode: 400, Message: "invalid"}).IsConflict() {
		t.Error("plain 400 is not a conflict")
	}
	if !errors.Is(&APIError{StatusCode: 401}, ErrUnauthorized) {
		t.Error("401 should match ErrUnauthorized")
	}
}

// TestNewHTTPClient_Validation tests constructor checks.
func TestNewHTTPClient_Validation(t *testing.T) {
	if _, err := NewHTTPClient(HTTPConfig{BaseURL: "not a url", Token: "x"}); err == nil {
		t.Error("expected error for invalid URL")
	}
	if _, err := NewHTTPClient(HTTPConfig{BaseURL: "https://deploy.example.com"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for empty token, got %v", err)
	}
}

// TestMemory_FindAndFailOn tests the fake's lookups and failure injection.
func TestMemory_FindAndFailOn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p, _ := m.CreateProject(ctx, "shop", "")
	env, _ := m.CreateEnvironment(ctx, p.ID, "production")
	app, _ := m.CreateApplication(ctx, ApplicationCreate{Name: "api", EnvironmentID: env.ID})

	found, err := m.FindApplication(ctx, env.ID, "api")
	if err != nil || found.ID != app.ID {
		t.Fatalf("FindApplication = %+v, %v", found, err)
	}
	if _, err := m.FindApplication(ctx, env.ID, "web"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	boom := errors.New("boom")
	m.FailOn("DeleteApplication:"+app.ID, boom)
	if err := m.DeleteApplication(ctx, app.ID); !errors.Is(err, boom) {
		t.Errorf("expected injected failure, got %v", err)
	}
	m.FailOn("DeleteApplication:"+app.ID, nil)
	if err := m.DeleteApplication(ctx, app.ID); err != nil {
		t.Errorf("DeleteApplication: %v", err)
	}
	if err := m.DeleteApplication(ctx, app.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should be not found, got %v", err)
	}
	if n := m.CountCalls("DeleteApplication"); n != 3 {
		t.Errorf("CountCalls = %d, want 3", n)
	}
}
