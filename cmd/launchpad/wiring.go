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
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/launchpad/cmd/launchpad/config"
	"github.com/AleutianAI/launchpad/internal/backup"
	"github.com/AleutianAI/launchpad/internal/cloud"
	"github.com/AleutianAI/launchpad/internal/controlplane"
	"github.com/AleutianAI/launchpad/internal/database"
	"github.com/AleutianAI/launchpad/internal/deploy"
	"github.com/AleutianAI/launchpad/internal/dns"
	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/pkg/telemetry"
)

const (
	meterName  = "github.com/AleutianAI/launchpad/cmd/launchpad"
	apiTimeout = 60 * time.Second
)

var errNoRemoteState = errors.New("no remote state bucket: set deploy.remoteState.bucket in " + config.WorkspaceFile)

// services are the remote clients of one command.
type services struct {
	client   controlplane.Client
	dns      *dns.Orchestrator
	backups  deploy.BackupFactory
	database deploy.AppDatabaseProvisioner
	closers  []func() error
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// connect builds the clients the workspace configuration asks for.
//
// # Description
//
// The control plane is always required. A missing API token is asked for
// through creds. Cloud DNS, the backup cloud and the Postgres admin
// connection are only built when the workspace enables them.
func (e *cliEnv) connect(ctx context.Context, stage string, creds deploy.CredentialResolver) (*services, error) {
	client, err := e.controlPlane(ctx, stage, creds)
	if err != nil {
		return nil, err
	}
	svc := &services{client: client}

	dcfg := e.ws.Deploy.DNS
	if dcfg.Provider == "clouddns" {
		project := dcfg.Project
		if project == "" {
			project = e.ws.Deploy.Backups.Project
		}
		provider, err := dns.NewCloudDNS(ctx, project, "")
		if err != nil {
			return nil, err
		}
		svc.dns = dns.NewOrchestrator(provider, &net.Resolver{}, e.logger)
	}

	bcfg := e.ws.Deploy.Backups
	if bcfg.Enabled {
		gcp, err := cloud.NewGCP(ctx, bcfg.Project, "")
		if err != nil {
			svc.close()
			return nil, err
		}
		svc.closers = append(svc.closers, gcp.Close)
		svc.backups = e.backupFactory(gcp, client, stage)
	}

	if e.ws.Services.Postgres.Enabled {
		svc.database = &database.Provisioner{
			Client:  client,
			Connect: database.ConnectPgx,
			Policy:  database.SchemaPolicy{SharedSchemaApps: e.ws.Services.Postgres.SharedSchemaApps},
			Host:    serverHost(e.ws.Deploy.DNS.ServerIP, e.ws.Deploy.Endpoint),
			Logger:  e.logger.With("component", "database"),
		}
	}
	return svc, nil
}

// controlPlane returns an instrumented HTTP client for the platform API.
func (e *cliEnv) controlPlane(ctx context.Context, stage string, creds deploy.CredentialResolver) (*controlplane.HTTPClient, error) {
	api, err := config.ResolveAPI(e.ws, os.Getenv)
	if err != nil {
		return nil, err
	}
	if api.Token == "" {
		api.Token, err = creds.ResolveCredential(ctx, deploy.CredentialRequest{
			Name:        config.EnvAPIToken,
			Description: "API token for " + api.URL,
			Stage:       stage,
		})
		if err != nil {
			return nil, err
		}
	}
	metrics, err := telemetry.NewClientMetrics(otel.Meter(meterName))
	if err != nil {
		return nil, err
	}
	return controlplane.NewHTTPClient(controlplane.HTTPConfig{
		BaseURL: api.URL,
		Token:   api.Token,
		HTTP: &http.Client{
			Timeout:   apiTimeout,
			Transport: telemetry.NewTransport(nil, "controlplane", metrics),
		},
	})
}

func (e *cliEnv) backupFactory(bc cloud.BackupCloud, client controlplane.Client, stage string) deploy.BackupFactory {
	return func(st *state.DeployState, persist func() error) deploy.BackupProvisioner {
		return &backup.Provisioner{
			Cloud:     bc,
			Client:    client,
			State:     st,
			Workspace: e.ws.Name,
			Stage:     stage,
			Config:    e.ws.Deploy.Backups,
			Persist:   persist,
			Observe:   e.metrics.RecordReconcile,
			Logger:    e.logger.With("component", "backup"),
		}
	}
}

// serverHost is where published service ports are reachable: the server IP
// when configured, otherwise the host of the control-plane endpoint.
func serverHost(serverIP, endpoint string) string {
	if serverIP != "" {
		return serverIP
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (e *cliEnv) store() *state.FileStore {
	return state.NewFileStore(e.paths.StateDir(), e.ws.Deploy.Provider)
}

// lock takes the stage lock. The returned func releases it.
func (e *cliEnv) lock(stage string) (func(), error) {
	l, err := state.NewLock(e.paths.StateDir(), stage)
	if err != nil {
		return nil, err
	}
	if err := l.Acquire(); err != nil {
		if errors.Is(err, state.ErrLockHeld) {
			if pid := l.HolderPID(); pid > 0 {
				return nil, fmt.Errorf("%w (pid %d)", err, pid)
			}
		}
		return nil, err
	}
	return func() {
		if err := l.Release(); err != nil {
			e.logger.Warn("releasing stage lock failed", "stage", stage, "error", err)
		}
	}, nil
}

func (e *cliEnv) remote(ctx context.Context) (*state.GCSRemote, error) {
	rs := e.ws.Deploy.RemoteState
	if rs.Bucket == "" {
		return nil, errNoRemoteState
	}
	return state.NewGCSRemote(ctx, rs.Bucket, rs.Prefix, "")
}

// stageSecrets loads the stage's secret file from secrets.dir, which is
// relative to the workspace root, or from .launchpad/secrets.
func (e *cliEnv) stageSecrets(stage string) (*secrets.StageSecrets, error) {
	dir := e.paths.SecretsDir()
	if d := e.ws.Secrets.Dir; d != "" {
		dir = d
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(e.paths.Root, dir)
		}
	}
	return config.LoadStageSecrets(dir, stage)
}

func (e *cliEnv) sniffer() config.Sniffer {
	if fields := strings.Fields(snifferCmd); len(fields) > 0 {
		return config.CommandSniffer{Command: fields}
	}
	return config.FileSniffer{Path: e.paths.Sniffed()}
}

// orchestrator assembles a deploy orchestrator for stage.
func (e *cliEnv) orchestrator(ctx context.Context, stage string, svc *services, creds deploy.CredentialResolver) (*deploy.Orchestrator, error) {
	store, err := e.stageSecrets(stage)
	if err != nil {
		return nil, err
	}
	sniffed, err := e.sniffer().Sniff(ctx, e.ws)
	if err != nil {
		return nil, err
	}
	reg := e.ws.Deploy.Registry
	registry := strings.TrimSuffix(reg.URL, "/")
	if reg.Prefix != "" {
		registry = strings.TrimPrefix(registry+"/"+strings.Trim(reg.Prefix, "/"), "/")
	}
	o := &deploy.Orchestrator{
		Workspace:   e.ws,
		Store:       e.store(),
		Secrets:     store,
		Sniffed:     sniffed,
		Builder:     deploy.StaticImageBuilder{Registry: registry, Tag: imageTag},
		Credentials: creds,
		Metrics:     e.metrics,
		Logger:      e.logger,
	}
	if svc != nil {
		o.Client = svc.client
		o.Database = svc.database
		o.Backups = svc.backups
		o.DNS = svc.dns
	}
	return o, nil
}
