// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads everything launchpad reads from the workspace
// directory: launchpad.yaml, per-stage secret files and sniffed environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/launchpad/internal/workspace"
)

// Well-known file locations, relative to the workspace root.
const (
	WorkspaceFile   = "launchpad.yaml"
	MetaDir         = ".launchpad"
	StateSubdir     = "state"
	SecretsSubdir   = "secrets"
	SniffedFile     = "sniffed.json"
	LogsSubdir      = "logs"
	defaultProvider = "dokploy"
)

// ErrInvalidWorkspace is matched by every validation failure of launchpad.yaml.
var ErrInvalidWorkspace = errors.New("invalid workspace configuration")

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Paths resolves launchpad's files under a workspace root.
type Paths struct {
	Root string
}

func (p Paths) meta(elem ...string) string {
	return filepath.Join(append([]string{p.Root, MetaDir}, elem...)...)
}

// Workspace returns the path of launchpad.yaml.
func (p Paths) Workspace() string { return filepath.Join(p.Root, WorkspaceFile) }

// StateDir returns the directory holding <stage>.json and <stage>.lock.
func (p Paths) StateDir() string { return p.meta(StateSubdir) }

// SecretsDir returns the directory holding <stage>.yaml secret files.
func (p Paths) SecretsDir() string { return p.meta(SecretsSubdir) }

// Sniffed returns the path of the sniffer output.
func (p Paths) Sniffed() string { return p.meta(SniffedFile) }

// LogsDir returns the directory for JSON log files.
func (p Paths) LogsDir() string { return p.meta(LogsSubdir) }

// FindRoot walks up from dir to the first directory containing
// launchpad.yaml.
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, WorkspaceFile)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found in this directory or any parent", WorkspaceFile)
		}
		dir = parent
	}
}

// LoadWorkspace reads and validates launchpad.yaml from root.
//
// # Description
//
// Struct tags are checked with validator; messages name fields by their YAML
// keys. App names must be valid DNS labels because they become hostnames.
// Each app's deployTarget is parsed into ResolvedTarget, so an unknown target
// fails here rather than during a run. Dependency cycles are left to
// workspace.BuildOrder.
//
// # Outputs
//
//   - *workspace.Workspace: The parsed workspace with Root set.
//   - error: Read, parse or validation failure; validation failures wrap
//     ErrInvalidWorkspace.
func LoadWorkspace(root string) (*workspace.Workspace, error) {
	path := Paths{Root: root}.Workspace()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	ws, err := ParseWorkspace(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ws.Root = root
	return ws, nil
}

// ParseWorkspace decodes and validates launchpad.yaml content.
func ParseWorkspace(data []byte) (*workspace.Workspace, error) {
	var ws workspace.Workspace
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if ws.Deploy.Provider == "" {
		ws.Deploy.Provider = defaultProvider
	}

	var problems []string
	if err := validate.Struct(&ws); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}
	for _, name := range ws.AppNames() {
		if err := validate.Var(name, "hostname_rfc1123,lowercase"); err != nil {
			problems = append(problems, fmt.Sprintf("apps.%s: app names must be lowercase DNS labels", name))
			continue
		}
		app := ws.Apps[name]
		target, err := workspace.ParseDeployTarget(app.DeployTarget)
		if err != nil {
			problems = append(problems, fmt.Sprintf("apps.%s.deployTarget: %v", name, err))
			continue
		}
		app.ResolvedTarget = target
		ws.Apps[name] = app
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("%w:\n  %s", ErrInvalidWorkspace, strings.Join(problems, "\n  "))
	}
	return &ws, nil
}

// describe turns a validator field error into "path: message".
func describe(fe validator.FieldError) string {
	path := strings.TrimPrefix(fe.Namespace(), "Workspace.")
	switch fe.Tag() {
	case "required":
		return path + ": is required"
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s], got %v", path, fe.Param(), fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s: must be %s %s", path, map[string]string{"min": ">=", "max": "<="}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("%s: failed %q validation (value %v)", path, fe.Tag(), fe.Value())
	}
}
