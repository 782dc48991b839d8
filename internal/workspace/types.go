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
	"fmt"
	"sort"
	"strings"
)

// AppType distinguishes services that are deployed in the first phase from
// those that bake backend URLs into their build output.
type AppType string

const (
	AppTypeBackend  AppType = "backend"
	AppTypeFrontend AppType = "frontend"
)

// Valid reports whether t is one of the known app types.
func (t AppType) Valid() bool {
	return t == AppTypeBackend || t == AppTypeFrontend
}

// DeployTarget is the closed set of platforms an app can be deployed to.
type DeployTarget string

const (
	TargetDokploy   DeployTarget = "dokploy"
	TargetDocker    DeployTarget = "docker"
	TargetAWSLambda DeployTarget = "aws-lambda"
)

// knownTargets lists every declared target, supported or not.
var knownTargets = []DeployTarget{TargetDokploy, TargetDocker, TargetAWSLambda}

// ParseDeployTarget converts a configuration string into a DeployTarget.
//
// # Description
//
// An empty string selects TargetDokploy. Strings that are not a declared
// target fail with ErrUnsupportedTarget so that a typo never reaches the
// orchestrator as a silently ignored value.
func ParseDeployTarget(s string) (DeployTarget, error) {
	if s == "" {
		return TargetDokploy, nil
	}
	for _, t := range knownTargets {
		if string(t) == strings.ToLower(strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", &ConfigurationError{
		Kind:   ErrUnsupportedTarget,
		Detail: fmt.Sprintf("unknown deploy target %q", s),
	}
}

// Supported reports whether the remote orchestrator can deploy this target.
func (t DeployTarget) Supported() bool {
	switch t {
	case TargetDokploy:
		return true
	case TargetDocker, TargetAWSLambda:
		return false
	default:
		return false
	}
}

// AppConfig is the declared configuration of one workspace application.
type AppConfig struct {
	Type         AppType  `yaml:"type" validate:"required,oneof=backend frontend"`
	Path         string   `yaml:"path" validate:"required"`
	Port         int      `yaml:"port" validate:"required,min=1,max=65535"`
	Dependencies []string `yaml:"dependencies,omitempty"`
	Framework    string   `yaml:"framework,omitempty"`

	// DeployTarget is the raw configured target; ResolvedTarget is filled in
	// by the loader after ParseDeployTarget succeeds.
	DeployTarget   string       `yaml:"deployTarget,omitempty"`
	ResolvedTarget DeployTarget `yaml:"-"`

	// Subdomain overrides the first label of the public hostname.
	Subdomain string `yaml:"subdomain,omitempty" validate:"omitempty,hostname_rfc1123"`

	// Database forces (true) or suppresses (false) per-app database
	// provisioning. Nil means "provision when the app reads DATABASE_URL".
	Database *bool `yaml:"database,omitempty"`

	// RequiredEnv is a static fallback for sniffed environment variables.
	RequiredEnv []string `yaml:"requiredEnv,omitempty"`
}

// PostgresConfig declares the shared Postgres service.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Version  string `yaml:"version,omitempty"`
	Database string `yaml:"database,omitempty"`

	// SharedSchemaApps lists apps that use the default public schema instead
	// of an isolated, name-scoped schema.
	SharedSchemaApps []string `yaml:"sharedSchemaApps,omitempty"`
}

// RedisConfig declares the shared Redis service.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Version string `yaml:"version,omitempty"`
}

// ServicesConfig groups declared infrastructure services.
type ServicesConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// DNSConfig configures the pluggable DNS layer.
type DNSConfig struct {
	// Provider is "clouddns", "manual" or empty for no DNS management.
	Provider string `yaml:"provider,omitempty" validate:"omitempty,oneof=clouddns manual"`
	// Domain is the apex domain; hostnames are built beneath it.
	Domain string `yaml:"domain,omitempty" validate:"omitempty,fqdn"`
	// Project is the cloud project hosting the managed zone.
	Project  string `yaml:"project,omitempty"`
	ServerIP string `yaml:"serverIp,omitempty" validate:"omitempty,ip"`
	TTL      int    `yaml:"ttl,omitempty" validate:"omitempty,min=30"`
}

// RegistryConfig describes the image registry applications pull from.
type RegistryConfig struct {
	Name     string `yaml:"name,omitempty"`
	URL      string `yaml:"url,omitempty"`
	Username string `yaml:"username,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// BackupConfig enables off-site Postgres backups.
type BackupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Project  string `yaml:"project,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Schedule string `yaml:"schedule,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// RemoteStateConfig names the bucket shared deploy state is kept in.
// An empty Bucket disables state pull, push and diff.
type RemoteStateConfig struct {
	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// DeployConfig is the provider and DNS configuration of the workspace.
type DeployConfig struct {
	Provider    string            `yaml:"provider" validate:"required"`
	Endpoint    string            `yaml:"endpoint,omitempty" validate:"omitempty,url"`
	Domain      string            `yaml:"domain" validate:"required,fqdn"`
	DNS         DNSConfig         `yaml:"dns"`
	Registry    RegistryConfig    `yaml:"registry"`
	Backups     BackupConfig      `yaml:"backups"`
	RemoteState RemoteStateConfig `yaml:"remoteState"`
}

// SecretsConfig tells the loaders where stage secrets live.
type SecretsConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// Workspace is the immutable description of everything deployed together.
type Workspace struct {
	Name     string               `yaml:"name" validate:"required,hostname_rfc1123"`
	Root     string               `yaml:"-"`
	Apps     map[string]AppConfig `yaml:"apps" validate:"required,min=1,dive"`
	Services ServicesConfig       `yaml:"services"`
	Deploy   DeployConfig         `yaml:"deploy"`
	Secrets  SecretsConfig        `yaml:"secrets"`
}

// AppNames returns the workspace's app names in sorted order.
func (w *Workspace) AppNames() []string {
	names := make([]string, 0, len(w.Apps))
	for name := range w.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckTargets fails with ErrUnsupportedTarget when any app in names targets
// a platform this orchestrator cannot deploy to.
func (w *Workspace) CheckTargets(names []string) error {
	var bad []string
	for _, name := range names {
		app := w.Apps[name]
		target := app.ResolvedTarget
		if target == "" {
			parsed, err := ParseDeployTarget(app.DeployTarget)
			if err != nil {
				return err
			}
			target = parsed
		}
		if !target.Supported() {
			bad = append(bad, fmt.Sprintf("%s (%s)", name, target))
		}
	}
	if len(bad) > 0 {
		return &ConfigurationError{
			Kind:    ErrUnsupportedTarget,
			Members: bad,
			Detail:  "deploy target is not supported by the remote orchestrator",
		}
	}
	return nil
}

// NeedsDatabase reports whether app should get per-app Postgres credentials.
func (w *Workspace) NeedsDatabase(name string, requiredEnv []string) bool {
	if !w.Services.Postgres.Enabled {
		return false
	}
	app, ok := w.Apps[name]
	if !ok {
		return false
	}
	if app.Database != nil {
		return *app.Database
	}
	for _, v := range requiredEnv {
		if v == "DATABASE_URL" {
			return true
		}
	}
	return false
}
