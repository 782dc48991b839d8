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
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/launchpad/cmd/launchpad/config"
	"github.com/AleutianAI/launchpad/internal/deploy"
	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
	"github.com/AleutianAI/launchpad/pkg/ux"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain failure", errors.New("boom"), ExitFailure},
		{"lock held", fmt.Errorf("%w (pid 42)", state.ErrLockHeld), ExitLocked},
		{"invalid workspace", fmt.Errorf("launchpad.yaml: %w", config.ErrInvalidWorkspace), ExitConfig},
		{"configuration error", &workspace.ConfigurationError{Kind: workspace.ErrUnsupportedTarget, Members: []string{"web"}}, ExitConfig},
		{"unknown apps", fmt.Errorf("%w: nope", workspace.ErrUnknownApps), ExitConfig},
		{"unresolved secrets", &deploy.UnresolvedSecretsError{}, ExitConfig},
		{"reported partial", reported(ExitPartial, errors.New("1 app(s) failed")), ExitPartial},
		{"reported without cause", reported(ExitConfig, nil), ExitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestReportedErrorIsMarked(t *testing.T) {
	cause := errors.New("cause")
	err := reported(ExitFailure, cause)
	assert.ErrorIs(t, err, errReported)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cause", err.Error())
}

func TestServerHost(t *testing.T) {
	assert.Equal(t, "203.0.113.7", serverHost("203.0.113.7", "https://deploy.example.com"))
	assert.Equal(t, "deploy.example.com", serverHost("", "https://deploy.example.com:3000/"))
	assert.Equal(t, "", serverHost("", ""))
}

func testWorkspace() *workspace.Workspace {
	return &workspace.Workspace{
		Name: "acme",
		Apps: map[string]workspace.AppConfig{
			"api":    {Type: workspace.AppTypeBackend, Path: "apps/api", Port: 8080},
			"worker": {Type: workspace.AppTypeBackend, Path: "apps/worker", Port: 8081, Dependencies: []string{"api"}},
			"web":    {Type: workspace.AppTypeFrontend, Path: "apps/web", Port: 3000, Dependencies: []string{"api"}},
		},
	}
}

func TestPlan(t *testing.T) {
	ws := testWorkspace()

	order, err := plan(ws, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "web", "worker"}, order)

	_, err = plan(ws, []string{"missing"})
	assert.ErrorIs(t, err, workspace.ErrUnknownApps)

	ws.Apps["web"] = workspace.AppConfig{Type: workspace.AppTypeFrontend, Path: "apps/web", Port: 3000, Dependencies: []string{"worker"}}
	ws.Apps["api"] = workspace.AppConfig{Type: workspace.AppTypeBackend, Path: "apps/api", Port: 8080, Dependencies: []string{"web"}}
	_, err = plan(ws, nil)
	assert.ErrorIs(t, err, workspace.ErrCyclicDependency)
}

func TestUnresolvedBackends(t *testing.T) {
	report := &secrets.Report{Stage: "staging", Apps: []secrets.AppReport{
		{App: "api", Status: secrets.StatusUnresolved, Missing: []string{"STRIPE_KEY"}},
		{App: "web", Status: secrets.StatusUnresolved, Missing: []string{"PUBLIC_KEY"}},
		{App: "worker", Status: secrets.StatusNoSecrets},
	}}
	blocked := unresolvedBackends(testWorkspace(), report)
	require.Len(t, blocked, 1)
	assert.Equal(t, "api", blocked[0].App)
}

func TestSurfacePreflight_RendersCleanReport(t *testing.T) {
	report := &secrets.Report{Stage: "staging", Apps: []secrets.AppReport{
		{App: "api", Status: secrets.StatusHasSecrets, Found: []string{"STRIPE_KEY"}},
		{App: "web", Status: secrets.StatusNoSecrets},
	}}
	require.False(t, report.HasUnresolved())

	p, out, errOut := machinePrinter()
	require.NoError(t, surfacePreflight(p, testWorkspace(), report, false))
	assert.Contains(t, out.String(), "api\thas-secrets\tSTRIPE_KEY\t\n")
	assert.Contains(t, out.String(), "web\tno-secrets\t\t\n")
	assert.NotContains(t, errOut.String(), "unresolved")
}

func TestSurfacePreflight_BlocksUnresolvedBackends(t *testing.T) {
	report := &secrets.Report{Stage: "staging", Apps: []secrets.AppReport{
		{App: "api", Status: secrets.StatusUnresolved, Missing: []string{"STRIPE_KEY"}},
	}}

	p, out, _ := machinePrinter()
	err := surfacePreflight(p, testWorkspace(), report, false)
	assert.ErrorIs(t, err, deploy.ErrUnresolvedSecrets)
	assert.Equal(t, ExitConfig, exitCode(err))
	assert.Contains(t, out.String(), "api\tunresolved\t\tSTRIPE_KEY\n")

	p, _, _ = machinePrinter()
	assert.NoError(t, surfacePreflight(p, testWorkspace(), report, true))
}

func TestEnvCredentials(t *testing.T) {
	env := map[string]string{"REGISTRY_PASSWORD": " hunter2 "}
	creds := envCredentials{
		getenv: func(k string) string { return env[k] },
		next:   deploy.StaticCredentials{"LAUNCHPAD_API_TOKEN": "from-next"},
	}
	ctx := context.Background()

	v, err := creds.ResolveCredential(ctx, deploy.CredentialRequest{Name: "REGISTRY_PASSWORD"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)

	v, err = creds.ResolveCredential(ctx, deploy.CredentialRequest{Name: "LAUNCHPAD_API_TOKEN"})
	require.NoError(t, err)
	assert.Equal(t, "from-next", v)

	_, err = creds.ResolveCredential(ctx, deploy.CredentialRequest{Name: "OTHER"})
	assert.ErrorIs(t, err, deploy.ErrCredentialRequired)
}

func TestCredentialResolver_NonInteractive(t *testing.T) {
	r := credentialResolver(ux.ModeMachine)
	ec, ok := r.(envCredentials)
	require.True(t, ok)
	assert.IsType(t, deploy.NoCredentials{}, ec.next)
}

func TestRequireValue(t *testing.T) {
	assert.Error(t, requireValue("   "))
	assert.NoError(t, requireValue("x"))
}

func TestStageSecrets_RelativeDir(t *testing.T) {
	root := t.TempDir()
	env := &cliEnv{paths: config.Paths{Root: root}, ws: testWorkspace()}
	env.ws.Secrets.Dir = "secrets"

	s, err := env.stageSecrets("staging")
	require.NoError(t, err)
	assert.Equal(t, "staging", s.Stage)
}

func machinePrinter() (*ux.Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return ux.NewPrinter(&out, &errOut, ux.ModeMachine), &out, &errOut
}
