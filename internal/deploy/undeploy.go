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
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/launchpad/internal/cloud"
	"github.com/AleutianAI/launchpad/internal/controlplane"
	"github.com/AleutianAI/launchpad/internal/dns"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
	"github.com/AleutianAI/launchpad/pkg/logging"
)

// Undeploy step names, in execution order.
const (
	StepManualBackup      = "manual-backup"
	StepDNS               = "dns"
	StepBackupSchedule    = "backup-schedule"
	StepApplications      = "applications"
	StepPostgres          = "postgres"
	StepRedis             = "redis"
	StepBackupDestination = "backup-destination"
	StepCloudBackups      = "cloud-backups"
	StepProject           = "project"
	StepState             = "state"
)

// Undeployer tears a stage down in reverse order of creation.
//
// # Description
//
// Every step runs regardless of earlier failures. A resource that is
// already gone counts as deleted. State keeps exactly the entries whose
// deletion failed, so running Undeploy again retries only those.
type Undeployer struct {
	Workspace *workspace.Workspace
	Client    controlplane.Client
	Store     StateStore
	DNS       *dns.Orchestrator
	Backups   BackupFactory
	Metrics   *Metrics
	Logger    *logging.Logger

	StepTimeout time.Duration
}

type teardown struct {
	u      *Undeployer
	st     *state.DeployState
	opts   UndeployOptions
	result *UndeployResult
	log    *logging.Logger
}

// gone reports whether a delete error means the resource no longer exists.
func gone(err error) bool {
	return err == nil || errors.Is(err, controlplane.ErrNotFound) || errors.Is(err, cloud.ErrNotFound)
}

// Undeploy deletes everything state records for opts.Stage.
//
// It never returns an error: failures, including a failed state load, are
// reported in UndeployResult.Errors.
func (u *Undeployer) Undeploy(ctx context.Context, opts UndeployOptions) *UndeployResult {
	if u.Logger == nil {
		u.Logger = logging.Nop()
	}
	if u.StepTimeout == 0 {
		u.StepTimeout = DefaultStepTimeout
	}
	t := &teardown{
		u:      u,
		opts:   opts,
		result: &UndeployResult{DeletedApplications: []string{}, Errors: []StepError{}},
		log:    u.Logger.With("stage", opts.Stage, "operation", "undeploy"),
	}

	ctx, span := tracer.Start(ctx, "undeploy.run", trace.WithAttributes(
		attribute.String("stage", opts.Stage),
		attribute.Bool("delete_project", opts.DeleteProject),
		attribute.Bool("delete_cloud_backups", opts.DeleteCloudBackups),
	))
	defer span.End()

	st, err := u.Store.Load(opts.Stage)
	if err != nil {
		t.fail(StepState, "", err)
		span.SetStatus(codes.Error, "state load")
		return t.result
	}
	t.st = st

	seq := &sequence{
		StepTimeout:     u.StepTimeout,
		ContinueOnError: true,
		Logger:          t.log,
		OnStepComplete: func(s step, _ time.Duration) {
			t.save()
		},
		OnStepFail: func(s step, _ error) {
			t.save()
		},
	}
	steps := []step{
		{Name: StepManualBackup, Run: t.manualBackup},
		{Name: StepDNS, Run: t.dnsRecords},
		{Name: StepBackupSchedule, Run: t.backupSchedule},
		{Name: StepApplications, Run: t.applications},
		{Name: StepPostgres, Run: t.postgres},
		{Name: StepRedis, Run: t.redis},
		{Name: StepBackupDestination, Run: t.destination},
		{Name: StepCloudBackups, Run: t.cloudBackups},
		{Name: StepProject, Run: t.project},
	}
	// Step functions record their own errors so that one step may report
	// several; the sequence only sees cancellation.
	for _, f := range seq.Execute(ctx, steps) {
		t.fail(f.Step.Name, "", f.Err)
	}

	if len(t.result.Errors) > 0 {
		span.SetStatus(codes.Error, "teardown incomplete")
	}
	t.log.Info("undeploy finished",
		"deleted_apps", len(t.result.DeletedApplications),
		"deleted_dns_records", t.result.DeletedDNSRecords,
		"errors", len(t.result.Errors),
	)
	return t.result
}

func (t *teardown) fail(step, resource string, err error) {
	t.result.Errors = append(t.result.Errors, StepError{Step: step, Resource: resource, Err: err, Message: err.Error()})
	t.u.Metrics.RecordUndeployError(step)
	t.log.Warn("undeploy step failed", "step", step, "resource", resource, "error", err)
}

func (t *teardown) save() {
	if err := t.u.Store.Save(t.st); err != nil {
		t.fail(StepState, "", err)
		return
	}
	t.result.UpdatedState = true
}

func (t *teardown) manualBackup(ctx context.Context) error {
	b := t.st.Backups
	if b == nil || b.PostgresBackupID == "" {
		return nil
	}
	err := t.u.Client.RunManualBackup(ctx, b.PostgresBackupID)
	if err != nil && !gone(err) {
		t.fail(StepManualBackup, b.PostgresBackupID, err)
	}
	return nil
}

func (t *teardown) dnsRecords(ctx context.Context) error {
	if len(t.st.DNSRecords) == 0 {
		return nil
	}
	if t.u.DNS == nil {
		t.log.Warn("DNS records are recorded but no DNS provider is configured; remove them manually",
			"records", len(t.st.DNSRecords))
		return nil
	}
	sum := t.u.DNS.DeleteRecords(ctx, t.st)
	t.result.DeletedDNSRecords += sum.Deleted + sum.NotFound
	for _, err := range sum.Errors {
		var rerr *dns.RecordError
		if errors.As(err, &rerr) {
			t.fail(StepDNS, rerr.Record.Name, err)
			continue
		}
		t.fail(StepDNS, "", err)
	}
	return nil
}

func (t *teardown) backupSchedule(ctx context.Context) error {
	b := t.st.Backups
	if b == nil || b.PostgresBackupID == "" {
		return nil
	}
	if err := t.u.Client.DeleteBackup(ctx, b.PostgresBackupID); !gone(err) {
		t.fail(StepBackupSchedule, b.PostgresBackupID, err)
		return nil
	}
	b.PostgresBackupID = ""
	return nil
}

// applications deletes apps frontends first, each tier in reverse
// dependency order. Apps unknown to the workspace go last. Workspace apps
// missing from state are looked up by name, since an app whose deploy
// failed may exist remotely without a recorded id.
func (t *teardown) applications(ctx context.Context) error {
	for _, app := range t.deletionOrder() {
		id, recorded := t.st.ApplicationID(app)
		if !recorded {
			found, err := t.lookupApplication(ctx, app)
			if err != nil {
				t.fail(StepApplications, app, err)
				continue
			}
			if found == "" {
				continue
			}
			id = found
		}
		if err := t.u.Client.DeleteApplication(ctx, id); !gone(err) {
			t.fail(StepApplications, app, err)
			continue
		}
		t.st.RemoveApplication(app)
		t.result.DeletedApplications = append(t.result.DeletedApplications, app)
	}
	return nil
}

// lookupApplication returns the id of an unrecorded app, or "" when the
// environment holds none.
func (t *teardown) lookupApplication(ctx context.Context, app string) (string, error) {
	if t.st.EnvironmentID == "" {
		return "", nil
	}
	a, err := t.u.Client.FindApplication(ctx, t.st.EnvironmentID, app)
	if errors.Is(err, controlplane.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	t.log.Info("deleting application missing from state", "app", app, "application_id", a.ID)
	return a.ID, nil
}

func (t *teardown) deletionOrder() []string {
	recorded := t.st.ApplicationNames()
	if t.u.Workspace == nil {
		return recorded
	}
	order, err := workspace.BuildOrder(t.u.Workspace.Apps)
	if err != nil {
		return recorded
	}
	backends, frontends := workspace.SplitPhases(order, t.u.Workspace.Apps)
	slices.Reverse(backends)
	slices.Reverse(frontends)

	out := append(frontends, backends...)
	for _, app := range recorded {
		if !slices.Contains(out, app) {
			out = append(out, app)
		}
	}
	return out
}

func (t *teardown) postgres(ctx context.Context) error {
	id := t.st.Services.PostgresID
	if id == "" {
		return nil
	}
	if err := t.u.Client.DeletePostgres(ctx, id); !gone(err) {
		t.fail(StepPostgres, id, err)
		return nil
	}
	t.st.ClearPostgres()
	// Roles lived inside the deleted service.
	clear(t.st.Credentials)
	t.result.DeletedPostgres = true
	return nil
}

func (t *teardown) redis(ctx context.Context) error {
	id := t.st.Services.RedisID
	if id == "" {
		return nil
	}
	if err := t.u.Client.DeleteRedis(ctx, id); !gone(err) {
		t.fail(StepRedis, id, err)
		return nil
	}
	t.st.ClearRedis()
	t.result.DeletedRedis = true
	return nil
}

func (t *teardown) destination(ctx context.Context) error {
	b := t.st.Backups
	if b == nil || b.DestinationID == "" {
		return nil
	}
	if err := t.u.Client.DeleteDestination(ctx, b.DestinationID); !gone(err) {
		t.fail(StepBackupDestination, b.DestinationID, err)
		return nil
	}
	b.DestinationID = ""
	t.result.DeletedBackupDestination = true
	return nil
}

// cloudBackups deletes the bucket and identity only on request. Without
// the request the backups section is kept so the data stays findable.
func (t *teardown) cloudBackups(ctx context.Context) error {
	if !t.opts.DeleteCloudBackups || t.st.Backups == nil {
		return nil
	}
	if t.u.Backups == nil {
		t.fail(StepCloudBackups, t.st.Backups.BucketName, errors.New("no cloud backup provider is configured"))
		return nil
	}
	done, err := t.u.Backups(t.st, func() error { return nil }).TeardownCloud(ctx)
	if err != nil {
		t.fail(StepCloudBackups, t.st.Backups.BucketName, err)
	}
	if done {
		t.st.ClearBackups()
		t.result.DeletedAwsBackupResources = true
	}
	return nil
}

func (t *teardown) project(ctx context.Context) error {
	if !t.opts.DeleteProject || t.st.ProjectID == "" {
		return nil
	}
	if err := t.u.Client.DeleteProject(ctx, t.st.ProjectID); !gone(err) {
		t.fail(StepProject, t.st.ProjectID, err)
		return nil
	}
	t.st.SetProject("", "")
	t.result.DeletedProject = true
	return nil
}
