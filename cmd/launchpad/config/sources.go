// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/workspace"
)

// Environment overrides for the control-plane connection.
const (
	EnvAPIURL   = "LAUNCHPAD_API_URL"
	EnvAPIToken = "LAUNCHPAD_API_TOKEN"
)

// DefaultSnifferTimeout bounds an external sniffer command.
const DefaultSnifferTimeout = 2 * time.Minute

// LoadStageSecrets reads <dir>/<stage>.yaml.
//
// A missing file yields an empty store for stage; every variable then has
// to come from the resolver's other rules. A file whose stage key names a
// different stage is rejected.
func LoadStageSecrets(dir, stage string) (*secrets.StageSecrets, error) {
	path := filepath.Join(dir, stage+".yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &secrets.StageSecrets{Stage: stage}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading stage secrets: %w", err)
	}
	var s secrets.StageSecrets
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.Stage == "" {
		s.Stage = stage
	}
	if s.Stage != stage {
		return nil, fmt.Errorf("%s declares stage %q, expected %q", path, s.Stage, stage)
	}
	return &s, nil
}

// Sniffer discovers the environment variables each app reads.
type Sniffer interface {
	Sniff(ctx context.Context, ws *workspace.Workspace) (map[string]secrets.SniffedEnvironment, error)
}

// FileSniffer reads a sniffer's JSON output from Path. A missing file
// yields no entries, so apps fall back to their requiredEnv lists.
type FileSniffer struct {
	Path string
}

// Sniff implements Sniffer.
func (f FileSniffer) Sniff(_ context.Context, ws *workspace.Workspace) (map[string]secrets.SniffedEnvironment, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]secrets.SniffedEnvironment{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sniffed environment: %w", err)
	}
	return decodeSniffed(data, ws)
}

// CommandSniffer runs an external analyzer in the workspace root and parses
// its stdout.
type CommandSniffer struct {
	Command []string
	Timeout time.Duration
}

// Sniff implements Sniffer.
func (c CommandSniffer) Sniff(ctx context.Context, ws *workspace.Workspace) (map[string]secrets.SniffedEnvironment, error) {
	if len(c.Command) == 0 {
		return nil, errors.New("sniffer command is empty")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultSnifferTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Dir = ws.Root
	var stdout bytes.Buffer
	var stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running sniffer %q: %w: %s", strings.Join(c.Command, " "), err, strings.TrimSpace(stderr.String()))
	}
	return decodeSniffed(stdout.Bytes(), ws)
}

// decodeSniffed accepts either a list of SniffedEnvironment objects or a map
// from app name to variable names. Entries for apps the workspace does not
// declare are dropped.
func decodeSniffed(data []byte, ws *workspace.Workspace) (map[string]secrets.SniffedEnvironment, error) {
	out := make(map[string]secrets.SniffedEnvironment)

	var list []secrets.SniffedEnvironment
	if err := json.Unmarshal(data, &list); err == nil {
		for _, env := range list {
			if _, ok := ws.Apps[env.AppName]; ok {
				out[env.AppName] = env
			}
		}
		return out, nil
	}

	var byApp map[string][]string
	if err := json.Unmarshal(data, &byApp); err != nil {
		return nil, fmt.Errorf("sniffed environment is neither a list nor an app map: %w", err)
	}
	for app, vars := range byApp {
		if _, ok := ws.Apps[app]; ok {
			out[app] = secrets.SniffedEnvironment{AppName: app, RequiredEnvVars: vars}
		}
	}
	return out, nil
}

// API is the control-plane connection.
type API struct {
	URL   string
	Token string
}

// ResolveAPI takes the endpoint from launchpad.yaml and lets the environment
// override both values. An empty Token means the caller must ask for one.
func ResolveAPI(ws *workspace.Workspace, getenv func(string) string) (API, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	api := API{URL: ws.Deploy.Endpoint, Token: getenv(EnvAPIToken)}
	if v := getenv(EnvAPIURL); v != "" {
		api.URL = v
	}
	if api.URL == "" {
		return api, fmt.Errorf("no control-plane endpoint: set deploy.endpoint in %s or %s", WorkspaceFile, EnvAPIURL)
	}
	api.URL = strings.TrimSuffix(api.URL, "/")
	return api, nil
}
