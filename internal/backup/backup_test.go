// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/launchpad/internal/cloud"
	"github.com/AleutianAI/launchpad/internal/controlplane"
	"github.com/AleutianAI/launchpad/internal/reconcile"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
)

type fixture struct {
	cloud *cloud.Memory
	cp    *controlplane.Memory
	st    *state.DeployState
	saves int
	seen  map[string]reconcile.Action
	prov  *Provisioner
}

func newFixture() *fixture {
	f := &fixture{
		cloud: cloud.NewMemory(),
		cp:    controlplane.NewMemory(),
		st:    state.New("dokploy", "staging"),
		seen:  make(map[string]reconcile.Action),
	}
	f.prov = &Provisioner{
		Cloud:     f.cloud,
		Client:    f.cp,
		State:     f.st,
		Workspace: "shop",
		Stage:     "staging",
		Config:    workspace.BackupConfig{Enabled: true, Region: "europe-west1"},
		Persist:   func() error { f.saves++; return nil },
		Observe:   func(r string, a reconcile.Action) { f.seen[r] = a },
		Now:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func TestEnsure_FirstRunCreatesEverything(t *testing.T) {
	f := newFixture()
	rec, err := f.prov.Ensure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "shop-staging-backups", rec.BucketName)
	assert.Equal(t, "shop-staging-backup", rec.IAMUserName)
	assert.Equal(t, "europe-west1", rec.Region)
	assert.Equal(t, "mem://shop-staging-backups", rec.BucketArn)
	assert.NotEmpty(t, rec.IAMAccessKeyID)
	assert.NotEmpty(t, rec.DestinationID)
	assert.Same(t, rec, f.st.Backups)
	assert.GreaterOrEqual(t, f.saves, 2)

	b := f.cloud.Buckets["shop-staging-backups"]
	require.NotNil(t, b)
	assert.True(t, b.Versioning)
	assert.True(t, b.Grants["shop-staging-backup@memory.invalid"])

	d := f.cp.Destinations[rec.DestinationID]
	require.NotNil(t, d)
	assert.Equal(t, rec.IAMAccessKeyID, d.AccessKey)
	assert.Equal(t, "https://storage.europe-west1.memory.invalid", d.Endpoint)
	assert.Equal(t, reconcile.ActionCreated, f.seen["backup_destination"])
}

func TestEnsure_ReusesLiveDestination(t *testing.T) {
	f := newFixture()
	first, err := f.prov.Ensure(context.Background())
	require.NoError(t, err)
	f.cp.ResetCalls()

	second, err := f.prov.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.DestinationID, second.DestinationID)
	assert.Equal(t, []string{"GetDestination:" + first.DestinationID}, f.cp.Calls())
	assert.Equal(t, reconcile.ActionReused, f.seen["backup_destination"])
}

func TestEnsure_RebuildsDeletedDestinationWithSameNames(t *testing.T) {
	f := newFixture()
	first, err := f.prov.Ensure(context.Background())
	require.NoError(t, err)
	oldKey := first.IAMAccessKeyID
	delete(f.cp.Destinations, first.DestinationID)

	second, err := f.prov.Ensure(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.DestinationID, second.DestinationID)
	assert.Equal(t, first.BucketName, second.BucketName)
	assert.Equal(t, first.IAMUserName, second.IAMUserName)
	assert.Equal(t, oldKey, second.IAMAccessKeyID, "live key is reused")
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, reconcile.ActionAdopted, f.seen["bucket"])
	assert.Equal(t, reconcile.ActionAdopted, f.seen["identity"])
	assert.Equal(t, reconcile.ActionReused, f.seen["access_key"])
	assert.Len(t, f.cloud.Buckets, 1)
}

func TestEnsure_AccessDeniedBucketIsNotRecreated(t *testing.T) {
	f := newFixture()
	f.cloud.Denied["shop-staging-backups"] = true

	_, err := f.prov.Ensure(context.Background())
	// The grant needs a readable bucket; what matters is that no create was tried.
	require.Error(t, err)
	assert.NotContains(t, f.cloud.Calls(), "CreateBucket:shop-staging-backups")
}

func TestEnsure_DestinationFailureKeepsCloudRecord(t *testing.T) {
	f := newFixture()
	f.cp.FailOn("CreateDestination", errors.New("boom"))

	_, err := f.prov.Ensure(context.Background())
	var rerr *reconcile.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "create", rerr.Step)
	require.NotNil(t, f.st.Backups)
	assert.NotEmpty(t, f.st.Backups.IAMAccessKeyID)
	assert.Empty(t, f.st.Backups.DestinationID)
}

func TestEnsureSchedule(t *testing.T) {
	f := newFixture()
	_, err := f.prov.EnsureSchedule(context.Background(), "pg-1", "shop")
	require.ErrorIs(t, err, ErrNotProvisioned)

	rec, err := f.prov.Ensure(context.Background())
	require.NoError(t, err)

	b, err := f.prov.EnsureSchedule(context.Background(), "pg-1", "shop")
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, b.Schedule)
	assert.Equal(t, "staging/postgres", b.Prefix)
	assert.Equal(t, rec.DestinationID, b.DestinationID)
	assert.Equal(t, b.ID, rec.PostgresBackupID)

	again, err := f.prov.EnsureSchedule(context.Background(), "pg-1", "shop")
	require.NoError(t, err)
	assert.Equal(t, b.ID, again.ID)
	assert.Equal(t, 1, f.cp.CountCalls("CreateBackup"))
}

func TestEnsureSchedule_ReplacesScheduleOfOldDestination(t *testing.T) {
	f := newFixture()
	rec, err := f.prov.Ensure(context.Background())
	require.NoError(t, err)
	old, err := f.prov.EnsureSchedule(context.Background(), "pg-1", "shop")
	require.NoError(t, err)

	delete(f.cp.Destinations, rec.DestinationID)
	rec, err = f.prov.Ensure(context.Background())
	require.NoError(t, err)

	b, err := f.prov.EnsureSchedule(context.Background(), "pg-1", "shop")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, b.ID)
	assert.Equal(t, rec.DestinationID, b.DestinationID)
	assert.NotContains(t, f.cp.Backups, old.ID)
}

func TestTeardownCloud(t *testing.T) {
	f := newFixture()
	_, err := f.prov.Ensure(context.Background())
	require.NoError(t, err)
	f.cloud.Buckets["shop-staging-backups"].Objects = 4

	before := len(f.cloud.Calls())
	done, err := f.prov.TeardownCloud(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, f.cloud.Buckets)
	assert.Empty(t, f.cloud.Identities)
	assert.Empty(t, f.cloud.Keys)

	calls := f.cloud.Calls()[before:]
	assert.Equal(t, []string{
		"EmptyBucket:shop-staging-backups",
		"RevokeBucketAccess:shop-staging-backups",
		"DeleteBucket:shop-staging-backups",
		"ListAccessKeys:shop-staging-backup",
		"DeleteAccessKey:" + f.st.Backups.IAMAccessKeyID,
		"DeleteIdentity:shop-staging-backup",
	}, calls)

	// Everything is already gone: a second teardown still succeeds.
	done, err = f.prov.TeardownCloud(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestTeardownCloud_ContinuesAfterFailure(t *testing.T) {
	f := newFixture()
	_, err := f.prov.Ensure(context.Background())
	require.NoError(t, err)
	f.cloud.FailOn("DeleteBucket", errors.New("denied"))

	done, err := f.prov.TeardownCloud(context.Background())
	require.Error(t, err)
	assert.False(t, done)
	assert.Contains(t, err.Error(), "delete bucket")
	assert.Empty(t, f.cloud.Identities, "identity deleted despite bucket failure")
}

func TestTeardownCloud_NothingRecorded(t *testing.T) {
	f := newFixture()
	done, err := f.prov.TeardownCloud(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, f.cloud.Calls())
}

func TestIdentityNameIsTruncated(t *testing.T) {
	p := &Provisioner{Workspace: "a-very-long-workspace-name", Stage: "production"}
	assert.LessOrEqual(t, len(p.IdentityName()), 30)
	assert.NotRegexp(t, `-$`, p.IdentityName())
}
