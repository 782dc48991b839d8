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

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/launchpad/internal/deploy"
	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
	"github.com/AleutianAI/launchpad/pkg/ux"
)

const tracerName = "github.com/AleutianAI/launchpad/cmd/launchpad"

// plan returns the deploy order of apps (all apps when empty) and checks
// their deploy targets. It touches nothing remote.
func plan(ws *workspace.Workspace, apps []string) ([]string, error) {
	order, err := workspace.BuildOrder(ws.Apps)
	if err != nil {
		return nil, err
	}
	order, err = workspace.FilterOrder(order, apps)
	if err != nil {
		return nil, err
	}
	if err := ws.CheckTargets(order); err != nil {
		return nil, err
	}
	return order, nil
}

// unresolvedBackends lists report lines of backend apps with missing
// secrets.
func unresolvedBackends(ws *workspace.Workspace, report *secrets.Report) []secrets.AppReport {
	var out []secrets.AppReport
	for _, line := range report.Unresolved() {
		if app, ok := ws.Apps[line.App]; ok && app.Type == workspace.AppTypeBackend {
			out = append(out, line)
		}
	}
	return out
}

// surfacePreflight prints the secrets report of every app in the run and
// refuses to go on while backend apps lack secrets, unless allowed.
func surfacePreflight(p *ux.Printer, ws *workspace.Workspace, report *secrets.Report, allow bool) error {
	renderReport(p, report)
	blocked := unresolvedBackends(ws, report)
	if len(blocked) > 0 && !allow {
		return reported(ExitConfig, &deploy.UnresolvedSecretsError{Apps: blocked})
	}
	return nil
}

// runDeploy implements `launchpad deploy`.
//
// # Description
//
// Configuration and secret problems are reported before any credential is
// asked for or any remote call is made. With --sync the remote state
// replaces the local file before the run and receives the result after
// it, even when the run failed part way.
func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()
	p := env.printer

	ctx, span := otel.Tracer(tracerName).Start(ctx, "launchpad.deploy", trace.WithAttributes(
		attribute.String("stage", stage),
		attribute.StringSlice("apps", appList),
	))
	defer span.End()

	if err := state.ValidateStage(stage); err != nil {
		return err
	}
	if _, err := plan(env.ws, appList); err != nil {
		return err
	}

	creds := credentialResolver(p.Mode)
	o, err := env.orchestrator(ctx, stage, nil, creds)
	if err != nil {
		return err
	}
	report, err := o.Preflight(appList)
	if err != nil {
		return err
	}
	if err := surfacePreflight(p, env.ws, report, allowMissing); err != nil {
		return err
	}

	release, err := env.lock(stage)
	if err != nil {
		return err
	}
	defer release()

	if syncState {
		if err := pullInto(ctx, env, stage); err != nil {
			return err
		}
	}

	svc, err := env.connect(ctx, stage, creds)
	if err != nil {
		return err
	}
	defer svc.close()
	o.Client = svc.client
	o.Database = svc.database
	o.Backups = svc.backups
	o.DNS = svc.dns

	result, runErr := o.Deploy(ctx, deploy.Options{Apps: appList, Stage: stage, AllowMissingSecrets: allowMissing})
	if result != nil {
		renderDeploy(p, result)
	}
	if syncState {
		if err := pushFrom(ctx, env, stage); err != nil {
			p.Warning(fmt.Sprintf("state was saved locally but not pushed: %v", err))
		}
	}

	if runErr != nil {
		span.RecordError(runErr)
		var backendErr *deploy.BackendFailedError
		if errors.As(runErr, &backendErr) {
			p.ErrorBox("Deploy aborted", backendErr.Error()+"\n\nFrontends were not deployed. Fix the backend and run deploy again.")
			return reported(ExitFailure, runErr)
		}
		return runErr
	}
	if result.FailedCount > 0 {
		return reported(ExitPartial, fmt.Errorf("%d app(s) failed", result.FailedCount))
	}
	p.Success(fmt.Sprintf("%s is up to date", stage))
	return nil
}

// runUndeploy implements `launchpad undeploy`.
func runUndeploy(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()
	p := env.printer

	ctx, span := otel.Tracer(tracerName).Start(ctx, "launchpad.undeploy", trace.WithAttributes(
		attribute.String("stage", stage),
	))
	defer span.End()

	release, err := env.lock(stage)
	if err != nil {
		return err
	}
	defer release()

	if syncState {
		if err := pullInto(ctx, env, stage); err != nil {
			return err
		}
	}

	svc, err := env.connect(ctx, stage, credentialResolver(p.Mode))
	if err != nil {
		return err
	}
	defer svc.close()

	u := &deploy.Undeployer{
		Workspace: env.ws,
		Client:    svc.client,
		Store:     env.store(),
		DNS:       svc.dns,
		Backups:   svc.backups,
		Metrics:   env.metrics,
		Logger:    env.logger,
	}
	result := u.Undeploy(ctx, deploy.UndeployOptions{
		Stage:              stage,
		DeleteProject:      deleteProject,
		DeleteCloudBackups: deleteCloudBackups,
	})
	renderUndeploy(p, stage, result)

	if syncState {
		if err := pushFrom(ctx, env, stage); err != nil {
			p.Warning(fmt.Sprintf("state was saved locally but not pushed: %v", err))
		}
	}
	if len(result.Errors) > 0 {
		return reported(ExitPartial, fmt.Errorf("%d teardown step(s) failed", len(result.Errors)))
	}
	return nil
}

// pullInto replaces the local state of stage with the remote copy, if one
// exists.
func pullInto(ctx context.Context, env *cliEnv, stage string) error {
	remote, err := env.remote(ctx)
	if err != nil {
		return err
	}
	defer remote.Close()
	st, err := remote.Pull(ctx, stage)
	if errors.Is(err, state.ErrRemoteStateNotFound) {
		env.logger.Info("no remote state yet, keeping local state", "stage", stage)
		return nil
	}
	if err != nil {
		return fmt.Errorf("pulling state: %w", err)
	}
	return env.store().Save(st)
}

func pushFrom(ctx context.Context, env *cliEnv, stage string) error {
	st, err := env.store().Load(stage)
	if err != nil {
		return err
	}
	remote, err := env.remote(ctx)
	if err != nil {
		return err
	}
	defer remote.Close()
	return remote.Push(ctx, st)
}
