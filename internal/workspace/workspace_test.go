// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func testWorkspace() *Workspace {
	return &Workspace{
		Name: "shop",
		Apps: map[string]AppConfig{
			"api":   {Type: AppTypeBackend, Port: 3001},
			"web":   {Type: AppTypeFrontend, Port: 3000, Subdomain: "www"},
			"admin": {Type: AppTypeFrontend, Port: 3002},
			"fn":    {Type: AppTypeBackend, Port: 3003, DeployTarget: "aws-lambda"},
		},
		Deploy: DeployConfig{Provider: "dokploy", Domain: "example.com"},
	}
}

func TestHostname(t *testing.T) {
	ws := testWorkspace()

	tests := []struct {
		app, stage, want string
	}{
		{"api", "production", "api.example.com"},
		{"api", "staging", "api-staging.example.com"},
		{"web", "production", "www.example.com"},
		{"web", "Preview", "www-preview.example.com"},
	}
	for _, tt := range tests {
		got, err := ws.Hostname(tt.app, tt.stage)
		if err != nil {
			t.Fatalf("Hostname(%s, %s) failed: %v", tt.app, tt.stage, err)
		}
		if got != tt.want {
			t.Errorf("Hostname(%s, %s) = %q, want %q", tt.app, tt.stage, got, tt.want)
		}
	}
}

func TestHostname_Invalid(t *testing.T) {
	ws := testWorkspace()
	ws.Apps["bad"] = AppConfig{Type: AppTypeBackend, Subdomain: strings.Repeat("a", 70)}
	if _, err := ws.Hostname("bad", "production"); err == nil {
		t.Error("expected an error for an invalid hostname")
	}
}

func TestFrontendURLs(t *testing.T) {
	urls, err := testWorkspace().FrontendURLs("production")
	if err != nil {
		t.Fatalf("FrontendURLs failed: %v", err)
	}
	want := []string{"https://admin.example.com", "https://www.example.com"}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("urls = %v, want %v", urls, want)
	}
}

func TestParseDeployTarget(t *testing.T) {
	if got, err := ParseDeployTarget(""); err != nil || got != TargetDokploy {
		t.Errorf("empty target = %q, %v; want dokploy", got, err)
	}
	if got, err := ParseDeployTarget("AWS-Lambda"); err != nil || got != TargetAWSLambda {
		t.Errorf("AWS-Lambda = %q, %v", got, err)
	}
	if _, err := ParseDeployTarget("heroku"); !errors.Is(err, ErrUnsupportedTarget) {
		t.Errorf("heroku err = %v, want ErrUnsupportedTarget", err)
	}
}

func TestCheckTargets(t *testing.T) {
	ws := testWorkspace()
	if err := ws.CheckTargets([]string{"api", "web"}); err != nil {
		t.Errorf("CheckTargets(api, web) = %v, want nil", err)
	}
	err := ws.CheckTargets([]string{"api", "fn"})
	if !errors.Is(err, ErrUnsupportedTarget) {
		t.Fatalf("CheckTargets(fn) = %v, want ErrUnsupportedTarget", err)
	}
}

func TestNeedsDatabase(t *testing.T) {
	ws := testWorkspace()
	if ws.NeedsDatabase("api", []string{"DATABASE_URL"}) {
		t.Error("postgres disabled: NeedsDatabase should be false")
	}

	ws.Services.Postgres.Enabled = true
	if !ws.NeedsDatabase("api", []string{"PORT", "DATABASE_URL"}) {
		t.Error("api reads DATABASE_URL: NeedsDatabase should be true")
	}
	if ws.NeedsDatabase("web", []string{"PORT"}) {
		t.Error("web does not read DATABASE_URL")
	}

	off := false
	cfg := ws.Apps["api"]
	cfg.Database = &off
	ws.Apps["api"] = cfg
	if ws.NeedsDatabase("api", []string{"DATABASE_URL"}) {
		t.Error("explicit database: false should win")
	}
}
