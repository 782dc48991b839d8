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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/launchpad/internal/controlplane"
	"github.com/AleutianAI/launchpad/internal/database"
	"github.com/AleutianAI/launchpad/internal/envresolve"
	"github.com/AleutianAI/launchpad/internal/reconcile"
	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
)

// BuildArgEncryptedSecrets carries the encrypted payload into the build.
const BuildArgEncryptedSecrets = "LAUNCHPAD_ENCRYPTED_SECRETS"

const (
	databasePasswordBytes = 24
	certificateType       = "letsencrypt"
)

// ErrDatabaseUnavailable is returned when an app needs a database but no
// Postgres service was reconciled.
var ErrDatabaseUnavailable = errors.New("app needs a database but postgres is not provisioned")

// AppError is the failure of one app, with the phase and step it failed in.
type AppError struct {
	App   string
	Phase AppPhase
	Step  string
	Err   error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("app %s: %s (%s): %v", e.App, e.Step, e.Phase, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// appRun is the per-app working set threaded through the steps.
type appRun struct {
	name      string
	vars      []string
	filtered  secrets.Filtered
	payload   *secrets.EncryptedPayload
	needsDB   bool
	creds     *state.Credentials
	env       map[string]string
	buildArgs map[string]string
	app       *controlplane.Application
	image     string
	hostname  string
	url       string
}

// deployApp walks one app through Resolving, Configuring, Deploying and
// DomainBinding. The application id is recorded in state only after the
// whole sequence succeeded.
func (r *run) deployApp(ctx context.Context, name string) AppResult {
	cfg := r.ws.Apps[name]
	start := r.o.Now()
	res := AppResult{AppName: name, Type: cfg.Type, Phase: PhaseNotDeployed}
	log := r.log.With("app", name, "type", string(cfg.Type))

	ctx, span := tracer.Start(ctx, "deploy.app",
		trace.WithAttributes(
			attribute.String("app", name),
			attribute.String("type", string(cfg.Type)),
		),
	)
	defer span.End()

	a := &appRun{name: name}
	steps := []step{
		{Name: "resolve", Phase: PhaseResolving, Run: func(ctx context.Context) error { return r.resolve(ctx, a) }},
		{Name: "application", Phase: PhaseConfiguring, Run: func(ctx context.Context) error { return r.reconcileApplication(ctx, a) }},
		{Name: "database", Phase: PhaseConfiguring, Run: func(ctx context.Context) error { return r.provisionDatabase(ctx, a) }},
		{Name: "build", Phase: PhaseConfiguring, Run: func(ctx context.Context) error { return r.build(ctx, a) }},
		{Name: "configure", Phase: PhaseConfiguring, Run: func(ctx context.Context) error { return r.configure(ctx, a) }},
		{Name: "deploy", Phase: PhaseDeploying, Run: func(ctx context.Context) error {
			return r.o.Client.DeployApplication(ctx, a.app.ID)
		}},
		{Name: "domain", Phase: PhaseDomainBinding, Run: func(ctx context.Context) error { return r.bindDomain(ctx, a) }},
	}

	seq := &sequence{
		StepTimeout: r.o.StepTimeout,
		Logger:      log,
		OnStepStart: func(s step) {
			if res.Phase != s.Phase {
				log.Debug("app phase", "phase", s.Phase.String())
				span.AddEvent("phase", trace.WithAttributes(attribute.String("phase", s.Phase.String())))
			}
			res.Phase = s.Phase
		},
	}
	failures := seq.Execute(ctx, steps)

	if len(failures) > 0 {
		f := failures[0]
		res.FailedPhase = res.Phase
		res.Phase = PhaseFailed
		res.Err = &AppError{App: name, Phase: res.FailedPhase, Step: f.Step.Name, Err: f.Err}
		if a.app != nil {
			res.ApplicationID = a.app.ID
		}
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, f.Step.Name)
		span.SetAttributes(attribute.String("phase", res.FailedPhase.String()))
		r.o.Metrics.RecordApp(cfg.Type, false, r.o.Now().Sub(start).Seconds())
		// Credentials or generated secrets may be new even though the app failed.
		if err := r.save(); err != nil {
			log.Warn("failed to save state after app failure", "error", err)
		}
		return res
	}

	r.st.SetApplicationID(name, a.app.ID)
	if err := r.save(); err != nil {
		res.FailedPhase = PhaseDeployed
		res.Phase = PhaseFailed
		res.Err = &AppError{App: name, Phase: PhaseDeployed, Step: "state", Err: err}
		res.ApplicationID = a.app.ID
		r.o.Metrics.RecordApp(cfg.Type, false, r.o.Now().Sub(start).Seconds())
		return res
	}
	r.deployedURLs[name] = a.url

	res.Phase = PhaseDeployed
	res.Success = true
	res.ApplicationID = a.app.ID
	res.URL = a.url
	span.SetAttributes(attribute.String("phase", res.Phase.String()))
	r.o.Metrics.RecordApp(cfg.Type, true, r.o.Now().Sub(start).Seconds())
	log.Info("app deployed", "application_id", a.app.ID, "url", a.url)
	return res
}

// resolve computes every variable of the app and its encrypted payload.
// Values found in the stage secrets travel only inside the payload; the
// runtime environment gets the master key instead.
func (r *run) resolve(_ context.Context, a *appRun) error {
	cfg := r.ws.Apps[a.name]
	env := r.o.sniffed(a.name)
	a.vars = env.RequiredEnvVars

	host, err := r.ws.Hostname(a.name, r.stage)
	if err != nil {
		return err
	}
	a.hostname = host
	a.url = "https://" + host

	if len(a.vars) > 0 {
		a.filtered = secrets.FilterForApp(r.o.Secrets, env, envresolve.Provides(cfg, r.ws.Services))
		a.payload, err = secrets.EncryptForApp(a.filtered)
		if err != nil {
			return err
		}
	}

	a.needsDB = r.ws.NeedsDatabase(a.name, a.vars)
	if a.needsDB {
		if r.postgres == nil {
			return ErrDatabaseUnavailable
		}
		creds, _, err := r.st.GetOrCreateCredentials(a.name, database.Identifier(a.name), func() (string, error) {
			return state.GenerateSecret(databasePasswordBytes)
		})
		if err != nil {
			return err
		}
		a.creds = &creds
	}

	rctx := &envresolve.Context{
		App:          a.name,
		Config:       cfg,
		Stage:        r.stage,
		State:        r.st,
		Services:     r.endpoints,
		Credentials:  a.creds,
		DeployedURLs: r.deployedURLs,
		FrontendURLs: r.frontendURLs,
		PublicURL:    a.url,
		Secrets:      r.o.Secrets,
	}
	if a.payload != nil {
		rctx.MasterKey = a.payload.MasterKey
	}
	resolved := r.o.Resolver.ResolveAll(a.vars, rctx)
	if err := resolved.Err(rctx); err != nil {
		return err
	}

	inPayload := make(map[string]bool, len(a.filtered.Found))
	for _, name := range a.filtered.Found {
		inPayload[name] = true
	}
	a.env = make(map[string]string, len(resolved.Resolved)+1)
	for k, v := range resolved.Resolved {
		if !inPayload[k] {
			a.env[k] = v
		}
	}
	if a.payload != nil {
		a.env[envresolve.VarSecretsMasterKey] = a.payload.MasterKey
	}

	a.buildArgs = make(map[string]string)
	if cfg.Type == workspace.AppTypeFrontend {
		for k, v := range a.env {
			if k != envresolve.VarSecretsMasterKey {
				a.buildArgs[k] = v
			}
		}
	}
	if a.payload != nil {
		raw, err := json.Marshal(a.payload)
		if err != nil {
			return fmt.Errorf("serializing secrets payload: %w", err)
		}
		a.buildArgs[BuildArgEncryptedSecrets] = string(raw)
	}
	return nil
}

func (r *run) reconcileApplication(ctx context.Context, a *appRun) error {
	c := r.o.Client
	cached, _ := r.st.ApplicationID(a.name)
	out, err := reconcile.FindOrCreate(ctx, reconcile.Request[*controlplane.Application]{
		Resource:   "application",
		IsConflict: controlplane.IsConflict,
		Key:        a.name,
		CachedID:   cached,
		Get:        c.GetApplication,
		Find: func(ctx context.Context, name string) (*controlplane.Application, error) {
			return asMiss(c.FindApplication(ctx, r.st.EnvironmentID, name))
		},
		Create: func(ctx context.Context) (*controlplane.Application, error) {
			return c.CreateApplication(ctx, controlplane.ApplicationCreate{
				Name:          a.name,
				AppName:       strings.ToLower(r.ws.Name + "-" + a.name),
				Description:   fmt.Sprintf("%s app of %s", r.ws.Apps[a.name].Type, r.ws.Name),
				EnvironmentID: r.st.EnvironmentID,
			})
		},
		ID: func(app *controlplane.Application) string { return app.ID },
		OnStaleID: func(id string, err error) {
			r.log.Warn("recorded application is gone", "app", a.name, "application_id", id, "error", err)
			r.st.RemoveApplication(a.name)
		},
	})
	if err != nil {
		return err
	}
	r.observe("application", out.Action)
	a.app = out.Value
	return nil
}

func (r *run) provisionDatabase(ctx context.Context, a *appRun) error {
	if !a.needsDB {
		return nil
	}
	if r.o.Database == nil {
		return ErrDatabaseUnavailable
	}
	_, err := r.o.Database.EnsureAppDatabase(ctx, r.st, r.postgres, a.name)
	return err
}

func (r *run) build(ctx context.Context, a *appRun) error {
	image, err := r.o.Builder.Build(ctx, BuildRequest{
		Workspace: r.ws.Name,
		App:       a.name,
		Config:    r.ws.Apps[a.name],
		Stage:     r.stage,
		RunID:     r.id,
		BuildArgs: a.buildArgs,
		Secrets:   a.payload,
	})
	if err != nil {
		return err
	}
	a.image = image
	return nil
}

func (r *run) configure(ctx context.Context, a *appRun) error {
	c := r.o.Client
	if err := c.SaveImage(ctx, controlplane.ApplicationImage{
		ApplicationID: a.app.ID,
		DockerImage:   a.image,
		RegistryID:    r.st.RegistryID,
	}); err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	if err := c.SaveEnvironment(ctx, controlplane.ApplicationEnv{
		ApplicationID: a.app.ID,
		Env:           formatEnv(a.env),
		BuildArgs:     formatEnv(a.buildArgs),
	}); err != nil {
		return fmt.Errorf("saving environment: %w", err)
	}
	return nil
}

// bindDomain attaches the public hostname, reusing an existing binding.
func (r *run) bindDomain(ctx context.Context, a *appRun) error {
	c := r.o.Client
	bound, err := r.hasDomain(ctx, a)
	if err != nil {
		return err
	}
	if bound {
		r.observe("domain", reconcile.ActionAdopted)
		return nil
	}
	_, err = c.CreateDomain(ctx, controlplane.DomainCreate{
		ApplicationID:   a.app.ID,
		Host:            a.hostname,
		Port:            r.ws.Apps[a.name].Port,
		HTTPS:           true,
		CertificateType: certificateType,
	})
	if controlplane.IsConflict(err) {
		if bound, lerr := r.hasDomain(ctx, a); lerr == nil && bound {
			r.observe("domain", reconcile.ActionAdopted)
			return nil
		}
	}
	if err != nil {
		return err
	}
	r.observe("domain", reconcile.ActionCreated)
	return nil
}

func (r *run) hasDomain(ctx context.Context, a *appRun) (bool, error) {
	domains, err := r.o.Client.ListDomains(ctx, a.app.ID)
	if err != nil {
		return false, err
	}
	for _, d := range domains {
		if strings.EqualFold(d.Host, a.hostname) {
			return true, nil
		}
	}
	return false, nil
}

// formatEnv renders KEY=VALUE lines in key order.
func formatEnv(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(vars[k])
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ParseEnv is the inverse of the control plane's KEY=VALUE format.
func ParseEnv(s string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		k, v, ok := strings.Cut(line, "=")
		if ok && k != "" {
			out[k] = v
		}
	}
	return out
}
