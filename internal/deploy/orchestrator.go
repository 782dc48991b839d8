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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/launchpad/internal/controlplane"
	"github.com/AleutianAI/launchpad/internal/database"
	"github.com/AleutianAI/launchpad/internal/dns"
	"github.com/AleutianAI/launchpad/internal/envresolve"
	"github.com/AleutianAI/launchpad/internal/reconcile"
	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
	"github.com/AleutianAI/launchpad/pkg/logging"
)

var tracer = otel.Tracer("launchpad.deploy")

// DefaultStepTimeout bounds a single remote step.
const DefaultStepTimeout = 5 * time.Minute

// StateStore loads and saves the ledger of a stage. *state.FileStore
// satisfies it.
type StateStore interface {
	Load(stage string) (*state.DeployState, error)
	Save(s *state.DeployState) error
}

// AppDatabaseProvisioner applies an app's database role and schema.
// *database.Provisioner satisfies it.
type AppDatabaseProvisioner interface {
	EnsureAppDatabase(ctx context.Context, st *state.DeployState, pg *controlplane.Postgres, app string) (database.AppDatabase, error)
}

// BackupProvisioner manages the backups section of a stage.
// *backup.Provisioner satisfies it.
type BackupProvisioner interface {
	Ensure(ctx context.Context) (*state.BackupState, error)
	EnsureSchedule(ctx context.Context, postgresID, database string) (*controlplane.Backup, error)
	TeardownCloud(ctx context.Context) (bool, error)
}

// BackupFactory binds a BackupProvisioner to a loaded state.
type BackupFactory func(st *state.DeployState, persist func() error) BackupProvisioner

// Orchestrator deploys a workspace to one stage.
//
// # Description
//
// Workspace, Client, Store and Builder are required. Database is required
// when the workspace enables Postgres and an app needs a database. Backups
// and DNS are optional; nil disables them.
type Orchestrator struct {
	Workspace   *workspace.Workspace
	Client      controlplane.Client
	Store       StateStore
	Secrets     *secrets.StageSecrets
	Sniffed     map[string]secrets.SniffedEnvironment
	Builder     Builder
	Credentials CredentialResolver
	Database    AppDatabaseProvisioner
	Backups     BackupFactory
	DNS         *dns.Orchestrator
	Resolver    *envresolve.Resolver
	Metrics     *Metrics
	Logger      *logging.Logger

	StepTimeout time.Duration
	Now         func() time.Time
	NewRunID    func() string
}

func (o *Orchestrator) defaults() {
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Resolver == nil {
		o.Resolver = envresolve.New()
	}
	if o.Credentials == nil {
		o.Credentials = NoCredentials{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewRunID == nil {
		o.NewRunID = uuid.NewString
	}
	if o.StepTimeout == 0 {
		o.StepTimeout = DefaultStepTimeout
	}
}

// run carries the mutable state of one Deploy call.
type run struct {
	o      *Orchestrator
	ws     *workspace.Workspace
	id     string
	stage  string
	st     *state.DeployState
	result *Result
	log    *logging.Logger

	deployedURLs map[string]string
	frontendURLs []string
	endpoints    envresolve.ServiceEndpoints
	postgres     *controlplane.Postgres
}

// Deploy runs one deployment of opts.Apps (or the whole workspace).
//
// # Description
//
//  1. Compute the order and check deploy targets. Configuration errors
//     return before anything remote is touched.
//  2. Build the pre-flight secrets report; refuse to start when a backend
//     has unresolved secrets unless opts.AllowMissingSecrets.
//  3. Reconcile project, environment, registry, Postgres, Redis and
//     backups.
//  4. Deploy backends in order, stopping at the first failure.
//  5. Deploy frontends in order, recording failures and moving on.
//  6. Upsert and verify DNS records of deployed apps.
//
// # Outputs
//
//   - *Result: Per-app outcomes. Non-nil whenever remote work started.
//   - error: Configuration, pre-flight, infrastructure or backend failure.
//     Frontend failures are only reported in the Result.
func (o *Orchestrator) Deploy(ctx context.Context, opts Options) (*Result, error) {
	o.defaults()
	ws := o.Workspace
	if err := state.ValidateStage(opts.Stage); err != nil {
		return nil, err
	}

	order, err := workspace.BuildOrder(ws.Apps)
	if err != nil {
		return nil, err
	}
	order, err = workspace.FilterOrder(order, opts.Apps)
	if err != nil {
		return nil, err
	}
	if err := ws.CheckTargets(order); err != nil {
		return nil, err
	}
	backends, frontends := workspace.SplitPhases(order, ws.Apps)

	r := &run{
		o:            o,
		ws:           ws,
		id:           o.NewRunID(),
		stage:        opts.Stage,
		deployedURLs: make(map[string]string),
	}
	r.log = o.Logger.With("run_id", r.id, "stage", r.stage)
	r.result = &Result{RunID: r.id, Stage: r.stage, Report: o.preflight(order)}

	if unresolved := r.unresolvedBackends(backends); len(unresolved) > 0 {
		if !opts.AllowMissingSecrets {
			return r.result, &UnresolvedSecretsError{Apps: unresolved}
		}
		r.log.Warn("deploying despite unresolved backend secrets", "apps", len(unresolved))
	}

	ctx, span := tracer.Start(ctx, "deploy.run",
		trace.WithAttributes(
			attribute.String("run_id", r.id),
			attribute.String("stage", r.stage),
			attribute.Int("apps", len(order)),
		),
	)
	defer span.End()

	r.st, err = o.Store.Load(r.stage)
	if err != nil {
		return r.result, fmt.Errorf("loading state: %w", err)
	}
	if err := r.prepareURLs(); err != nil {
		return r.result, err
	}

	for _, line := range r.result.Report.Apps {
		r.log.Info("secrets pre-flight", "app", line.App, "status", string(line.Status), "found", len(line.Found), "missing", line.Missing)
	}
	r.log.Info("deploy started", "backends", len(backends), "frontends", len(frontends))

	if err := r.ensureInfrastructure(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "infrastructure")
		return r.result, err
	}

	for _, app := range backends {
		res := r.deployApp(ctx, app)
		r.result.add(res)
		if !res.Success {
			err := &BackendFailedError{App: app, Phase: res.FailedPhase, Err: res.Err}
			span.RecordError(err)
			span.SetStatus(codes.Error, "backend failed")
			r.log.Error("backend failed, aborting run", "app", app, "phase", res.FailedPhase.String(), "error", res.Err)
			if saveErr := r.save(); saveErr != nil {
				return r.result, errors.Join(err, saveErr)
			}
			return r.result, err
		}
	}
	for _, app := range frontends {
		res := r.deployApp(ctx, app)
		r.result.add(res)
		if !res.Success {
			r.log.Warn("frontend failed, continuing", "app", app, "phase", res.FailedPhase.String(), "error", res.Err)
		}
	}

	r.reconcileDNS(ctx)

	r.st.Touch(r.id, o.Now())
	if err := r.save(); err != nil {
		return r.result, err
	}
	if r.result.FailedCount > 0 {
		span.SetStatus(codes.Error, "some apps failed")
	}
	r.log.Info("deploy finished", "succeeded", r.result.SuccessCount, "failed", r.result.FailedCount)
	return r.result, nil
}

func (r *run) save() error {
	if err := r.o.Store.Save(r.st); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// sniffed returns what an app reads, falling back to its static list.
func (o *Orchestrator) sniffed(app string) secrets.SniffedEnvironment {
	if env, ok := o.Sniffed[app]; ok {
		if env.AppName == "" {
			env.AppName = app
		}
		return env
	}
	return secrets.SniffedEnvironment{AppName: app, RequiredEnvVars: o.Workspace.Apps[app].RequiredEnv}
}

// preflight builds the secrets report for the apps of a run. Each app is
// classified with its own provided-variable rules.
func (o *Orchestrator) preflight(order []string) *secrets.Report {
	report := &secrets.Report{}
	if o.Secrets != nil {
		report.Stage = o.Secrets.Stage
	}
	for _, app := range order {
		one := secrets.BuildReport(o.Secrets, map[string]secrets.SniffedEnvironment{app: o.sniffed(app)},
			envresolve.Provides(o.Workspace.Apps[app], o.Workspace.Services))
		report.Apps = append(report.Apps, one.Apps...)
	}
	return report
}

// Preflight returns the secrets report Deploy would start with.
func (o *Orchestrator) Preflight(apps []string) (*secrets.Report, error) {
	o.defaults()
	order, err := workspace.BuildOrder(o.Workspace.Apps)
	if err != nil {
		return nil, err
	}
	order, err = workspace.FilterOrder(order, apps)
	if err != nil {
		return nil, err
	}
	return o.preflight(order), nil
}

func (r *run) unresolvedBackends(backends []string) []secrets.AppReport {
	var out []secrets.AppReport
	for _, app := range backends {
		if line, ok := r.result.Report.App(app); ok && line.Status == secrets.StatusUnresolved {
			out = append(out, line)
		}
	}
	return out
}

// prepareURLs seeds the public URLs of apps deployed by earlier runs and
// the frontend origin list.
func (r *run) prepareURLs() error {
	for _, app := range r.st.ApplicationNames() {
		if _, ok := r.ws.Apps[app]; !ok {
			continue
		}
		u, err := r.ws.PublicURL(app, r.stage)
		if err != nil {
			return err
		}
		r.deployedURLs[app] = u
	}
	urls, err := r.ws.FrontendURLs(r.stage)
	if err != nil {
		return err
	}
	r.frontendURLs = urls
	return nil
}

func (r *run) observe(resource string, action reconcile.Action) {
	r.o.Metrics.RecordReconcile(resource, action)
	r.log.Debug("resource reconciled", "resource", resource, "action", string(action))
}

// reconcileDNS points the hostnames of apps deployed in this run at the
// server. Every problem is a warning.
func (r *run) reconcileDNS(ctx context.Context) {
	cfg := r.ws.Deploy.DNS
	var hosts []dns.AppHost
	for _, a := range r.result.Apps {
		if !a.Success {
			continue
		}
		host, err := r.ws.Hostname(a.AppName, r.stage)
		if err != nil {
			continue
		}
		hosts = append(hosts, dns.AppHost{App: a.AppName, Hostname: host})
	}
	if len(hosts) == 0 || cfg.ServerIP == "" {
		return
	}
	domain := cfg.Domain
	if domain == "" {
		domain = r.ws.Deploy.Domain
	}

	if r.o.DNS == nil {
		if cfg.Provider == "manual" {
			for _, h := range hosts {
				r.log.Info("create this DNS record manually", "name", h.Hostname, "type", "A", "value", cfg.ServerIP)
			}
		}
		return
	}

	ctx, span := tracer.Start(ctx, "deploy.dns", trace.WithAttributes(attribute.Int("hosts", len(hosts))))
	defer span.End()

	_, recordErrs, err := r.o.DNS.UpsertAppRecords(context.WithoutCancel(ctx), r.st, domain, cfg.ServerIP, cfg.TTL, hosts)
	if err != nil {
		r.result.DNSWarnings = append(r.result.DNSWarnings, err.Error())
		r.log.Warn("DNS upsert failed", "domain", domain, "error", err)
		return
	}
	for _, e := range recordErrs {
		r.result.DNSWarnings = append(r.result.DNSWarnings, e.Error())
	}
	if err := r.save(); err != nil {
		r.result.DNSWarnings = append(r.result.DNSWarnings, err.Error())
	}

	verify := r.o.DNS.Verify(ctx, r.st, cfg.ServerIP)
	for _, h := range verify.Unverified {
		r.result.DNSWarnings = append(r.result.DNSWarnings, fmt.Sprintf("%s does not resolve to %s yet", h, cfg.ServerIP))
	}
}
