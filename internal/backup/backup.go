// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backup provisions the off-site Postgres backup destination of a
// stage and its daily schedule.
//
// The cloud side is a versioned bucket, a dedicated identity with write
// access to it, and an S3-compatible access key. The control-plane side is
// a destination that points at the bucket with that key, and a scheduled
// backup of the stage database into it. Everything is recorded in the
// deploy state's backups section; a later run reuses the section as long
// as the destination still exists remotely, and otherwise rebuilds it
// under the same bucket and identity names.
package backup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/AleutianAI/launchpad/internal/cloud"
	"github.com/AleutianAI/launchpad/internal/controlplane"
	"github.com/AleutianAI/launchpad/internal/reconcile"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
	"github.com/AleutianAI/launchpad/pkg/logging"
)

// Defaults applied to an empty workspace backup configuration.
const (
	DefaultSchedule     = "0 3 * * *"
	DefaultRegion       = "us-central1"
	DefaultKeepLatest   = 7
	destinationProvider = "s3"
	maxIdentityLength   = 30
)

// ErrNotProvisioned is returned by schedule operations before Ensure ran.
var ErrNotProvisioned = errors.New("backup destination is not provisioned")

// Provisioner owns the backups section of one stage's state.
//
// # Thread Safety
//
// Not safe for concurrent use; a deploy run owns exactly one.
type Provisioner struct {
	Cloud     cloud.BackupCloud
	Client    controlplane.Client
	State     *state.DeployState
	Workspace string
	Stage     string
	Config    workspace.BackupConfig

	// Persist saves the state. It is called after every recorded change.
	Persist func() error
	// Observe is told how each resource was reconciled. Optional.
	Observe func(resource string, action reconcile.Action)
	Logger  *logging.Logger
	Now     func() time.Time
}

func (p *Provisioner) defaults() {
	if p.Logger == nil {
		p.Logger = logging.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Persist == nil {
		p.Persist = func() error { return nil }
	}
	if p.Observe == nil {
		p.Observe = func(string, reconcile.Action) {}
	}
}

// BucketName is the bucket used for the stage when none is recorded yet.
func (p *Provisioner) BucketName() string {
	return strings.ToLower(fmt.Sprintf("%s-%s-backups", p.Workspace, p.Stage))
}

// IdentityName is the identity used when none is recorded yet. Service
// account ids are limited to 30 characters.
func (p *Provisioner) IdentityName() string {
	name := strings.ToLower(fmt.Sprintf("%s-%s-backup", p.Workspace, p.Stage))
	if len(name) > maxIdentityLength {
		name = strings.TrimRight(name[:maxIdentityLength], "-")
	}
	return name
}

// DestinationName is the natural key of the control-plane destination.
func (p *Provisioner) DestinationName() string {
	return fmt.Sprintf("%s-%s-backups", p.Workspace, p.Stage)
}

func (p *Provisioner) region() string {
	if p.Config.Region != "" {
		return p.Config.Region
	}
	return DefaultRegion
}

// Ensure reconciles the cloud resources and the control-plane destination.
//
// # Description
//
// When state records a destination that still exists, nothing else is
// touched. Otherwise the recorded bucket and identity names are reused (or
// derived on first run), each cloud resource is found or created with a
// tri-state existence check, and the destination is found by name or
// created. The backups section is saved before returning.
//
// # Outputs
//
//   - *state.BackupState: The recorded section.
//   - error: The first failed step, wrapped with its resource.
func (p *Provisioner) Ensure(ctx context.Context) (*state.BackupState, error) {
	p.defaults()
	log := p.Logger.With("resource", "backups", "stage", p.Stage)

	prev := p.State.Backups
	if prev != nil && prev.DestinationID != "" {
		_, err := p.Client.GetDestination(ctx, prev.DestinationID)
		if err == nil {
			p.Observe("backup_destination", reconcile.ActionReused)
			log.Debug("backup destination reused", "destination_id", prev.DestinationID)
			return prev, nil
		}
		log.Warn("recorded backup destination is gone, rebuilding", "destination_id", prev.DestinationID, "error", err)
	}

	bucket, identityName, region := p.BucketName(), p.IdentityName(), p.region()
	if prev != nil {
		if prev.BucketName != "" {
			bucket = prev.BucketName
		}
		if prev.IAMUserName != "" {
			identityName = prev.IAMUserName
		}
		if prev.Region != "" {
			region = prev.Region
		}
	}

	if err := p.ensureBucket(ctx, bucket, region); err != nil {
		return nil, err
	}
	identity, err := p.ensureIdentity(ctx, identityName)
	if err != nil {
		return nil, err
	}
	if err := p.Cloud.GrantBucketAccess(ctx, identity, bucket); err != nil {
		return nil, &reconcile.Error{Resource: "bucket_policy", Key: bucket, Step: "grant", Err: err}
	}
	key, err := p.ensureAccessKey(ctx, identity, prev)
	if err != nil {
		return nil, err
	}

	// Record the cloud side before the destination so a failure below
	// leaves the key visible to the next run and to teardown.
	rec := &state.BackupState{
		BucketName:         bucket,
		BucketArn:          p.Cloud.BucketRef(bucket),
		IAMUserName:        identityName,
		IAMAccessKeyID:     key.ID,
		IAMSecretAccessKey: key.Secret,
		Region:             region,
		CreatedAt:          p.Now().UTC(),
	}
	if prev != nil {
		rec.PostgresBackupID = prev.PostgresBackupID
		if !prev.CreatedAt.IsZero() {
			rec.CreatedAt = prev.CreatedAt
		}
	}
	p.State.SetBackups(rec)
	if err := p.Persist(); err != nil {
		return nil, err
	}

	out, err := reconcile.FindOrCreate(ctx, reconcile.Request[*controlplane.Destination]{
		Resource:   "backup_destination",
		IsConflict: controlplane.IsConflict,
		Key:        p.DestinationName(),
		Find: func(ctx context.Context, name string) (*controlplane.Destination, error) {
			all, err := p.Client.ListDestinations(ctx)
			if err != nil {
				return nil, err
			}
			for i := range all {
				if all[i].Name == name && all[i].Bucket == bucket {
					return &all[i], nil
				}
			}
			return nil, reconcile.ErrNotFound
		},
		Create: func(ctx context.Context) (*controlplane.Destination, error) {
			return p.Client.CreateDestination(ctx, controlplane.DestinationCreate{
				Name:            p.DestinationName(),
				Provider:        destinationProvider,
				AccessKey:       key.ID,
				SecretAccessKey: key.Secret,
				Bucket:          bucket,
				Region:          region,
				Endpoint:        p.Cloud.Endpoint(region),
			})
		},
		ID: func(d *controlplane.Destination) string { return d.ID },
		Persist: func(id string) error {
			rec.DestinationID = id
			return p.Persist()
		},
	})
	if err != nil {
		return nil, err
	}
	p.Observe("backup_destination", out.Action)
	log.Info("backup destination ready", "destination_id", out.ID, "bucket", bucket, "action", string(out.Action))
	return rec, nil
}

func (p *Provisioner) ensureBucket(ctx context.Context, bucket, region string) error {
	exists, err := p.Cloud.BucketExists(ctx, bucket)
	if err != nil {
		return &reconcile.Error{Resource: "bucket", Key: bucket, Step: "get", Err: err}
	}
	if exists.Present() {
		p.Observe("bucket", reconcile.ActionAdopted)
		return nil
	}
	if err := p.Cloud.CreateBucket(ctx, bucket, region); err != nil {
		return &reconcile.Error{Resource: "bucket", Key: bucket, Step: "create", Err: err}
	}
	if err := p.Cloud.EnableVersioning(ctx, bucket); err != nil {
		return &reconcile.Error{Resource: "bucket", Key: bucket, Step: "versioning", Err: err}
	}
	p.Observe("bucket", reconcile.ActionCreated)
	return nil
}

func (p *Provisioner) ensureIdentity(ctx context.Context, name string) (cloud.Identity, error) {
	exists, err := p.Cloud.IdentityExists(ctx, name)
	if err != nil {
		return cloud.Identity{}, &reconcile.Error{Resource: "identity", Key: name, Step: "get", Err: err}
	}
	if exists.Present() {
		p.Observe("identity", reconcile.ActionAdopted)
		return p.Cloud.IdentityFor(name), nil
	}
	id, err := p.Cloud.CreateIdentity(ctx, name)
	if err != nil {
		return cloud.Identity{}, &reconcile.Error{Resource: "identity", Key: name, Step: "create", Err: err}
	}
	p.Observe("identity", reconcile.ActionCreated)
	return id, nil
}

// ensureAccessKey reuses the recorded key while the cloud still lists it.
// Secrets cannot be read back, so an unrecorded key is never adopted.
func (p *Provisioner) ensureAccessKey(ctx context.Context, id cloud.Identity, prev *state.BackupState) (cloud.AccessKey, error) {
	if prev != nil && prev.IAMAccessKeyID != "" && prev.IAMSecretAccessKey != "" {
		keys, err := p.Cloud.ListAccessKeys(ctx, id)
		if err != nil {
			return cloud.AccessKey{}, &reconcile.Error{Resource: "access_key", Key: id.Name, Step: "list", Err: err}
		}
		if slices.Contains(keys, prev.IAMAccessKeyID) {
			p.Observe("access_key", reconcile.ActionReused)
			return cloud.AccessKey{ID: prev.IAMAccessKeyID, Secret: prev.IAMSecretAccessKey}, nil
		}
	}
	key, err := p.Cloud.CreateAccessKey(ctx, id)
	if err != nil {
		return cloud.AccessKey{}, &reconcile.Error{Resource: "access_key", Key: id.Name, Step: "create", Err: err}
	}
	p.Observe("access_key", reconcile.ActionCreated)
	return key, nil
}

// EnsureSchedule reconciles the daily backup of database on postgresID.
//
// A recorded schedule pointing at a destination other than the current one
// is deleted and replaced.
func (p *Provisioner) EnsureSchedule(ctx context.Context, postgresID, database string) (*controlplane.Backup, error) {
	p.defaults()
	rec := p.State.Backups
	if rec == nil || rec.DestinationID == "" {
		return nil, ErrNotProvisioned
	}
	schedule := p.Config.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	prefix := p.Config.Prefix
	if prefix == "" {
		prefix = p.Stage + "/postgres"
	}

	out, err := reconcile.FindOrCreate(ctx, reconcile.Request[*controlplane.Backup]{
		Resource:   "backup_schedule",
		IsConflict: controlplane.IsConflict,
		Key:        database,
		CachedID:   rec.PostgresBackupID,
		Get: func(ctx context.Context, id string) (*controlplane.Backup, error) {
			b, err := p.Client.GetBackup(ctx, id)
			if err != nil {
				return nil, err
			}
			if b.DestinationID != rec.DestinationID || b.PostgresID != postgresID {
				if err := p.Client.DeleteBackup(ctx, id); err != nil && !errors.Is(err, controlplane.ErrNotFound) {
					p.Logger.Warn("failed to delete stale backup schedule", "backup_id", id, "error", err)
				}
				return nil, fmt.Errorf("backup %s targets an outdated destination", id)
			}
			return b, nil
		},
		Create: func(ctx context.Context) (*controlplane.Backup, error) {
			return p.Client.CreateBackup(ctx, controlplane.BackupCreate{
				Schedule:        schedule,
				Prefix:          prefix,
				Database:        database,
				DestinationID:   rec.DestinationID,
				PostgresID:      postgresID,
				Enabled:         true,
				KeepLatestCount: DefaultKeepLatest,
				DatabaseType:    "postgres",
			})
		},
		ID: func(b *controlplane.Backup) string { return b.ID },
		Persist: func(id string) error {
			rec.PostgresBackupID = id
			return p.Persist()
		},
		OnStaleID: func(id string, err error) {
			p.Logger.Warn("recorded backup schedule is gone, recreating", "backup_id", id, "error", err)
		},
	})
	if err != nil {
		return nil, err
	}
	p.Observe("backup_schedule", out.Action)
	return out.Value, nil
}

// TeardownCloud deletes the cloud resources recorded in the backups section:
// bucket contents, bucket policy, bucket, access keys, then the identity.
//
// Every step runs even after a failure. Resources that are already gone
// count as deleted. The returned bool reports whether everything is gone.
func (p *Provisioner) TeardownCloud(ctx context.Context) (bool, error) {
	p.defaults()
	rec := p.State.Backups
	if rec == nil || rec.BucketName == "" {
		return true, nil
	}
	identity := p.Cloud.IdentityFor(rec.IAMUserName)

	var errs []error
	step := func(name string, fn func() error) {
		if err := fn(); err != nil && !errors.Is(err, cloud.ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("empty bucket", func() error { return p.Cloud.EmptyBucket(ctx, rec.BucketName) })
	step("revoke bucket access", func() error { return p.Cloud.RevokeBucketAccess(ctx, identity, rec.BucketName) })
	step("delete bucket", func() error { return p.Cloud.DeleteBucket(ctx, rec.BucketName) })
	if rec.IAMUserName != "" {
		step("delete access keys", func() error {
			keys, err := p.Cloud.ListAccessKeys(ctx, identity)
			if err != nil {
				return err
			}
			var keyErrs []error
			for _, k := range keys {
				if err := p.Cloud.DeleteAccessKey(ctx, identity, k); err != nil && !errors.Is(err, cloud.ErrNotFound) {
					keyErrs = append(keyErrs, err)
				}
			}
			return errors.Join(keyErrs...)
		})
		step("delete identity", func() error { return p.Cloud.DeleteIdentity(ctx, identity) })
	}

	if len(errs) > 0 {
		p.Logger.Warn("cloud backup teardown incomplete", "bucket", rec.BucketName, "errors", len(errs))
		return false, errors.Join(errs...)
	}
	p.Logger.Info("cloud backup resources deleted", "bucket", rec.BucketName, "identity", rec.IAMUserName)
	return true, nil
}
