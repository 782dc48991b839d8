// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestGetOrCreateCredentials_Stable(t *testing.T) {
	s := New("dokploy", "production")
	calls := 0
	gen := func() (string, error) {
		calls++
		return GenerateSecret(24)
	}

	first, created, err := s.GetOrCreateCredentials("api", "api", gen)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.GetOrCreateCredentials("api", "api", gen)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestGetOrCreateCredentials_GeneratorError(t *testing.T) {
	s := New("dokploy", "production")
	_, _, err := s.GetOrCreateCredentials("api", "api", func() (string, error) {
		return "", errors.New("no entropy")
	})
	require.Error(t, err)
	_, ok := s.CredentialsFor("api")
	assert.False(t, ok, "failed generation must not record credentials")
}

func TestGetOrGenerateSecret_Cached(t *testing.T) {
	s := New("dokploy", "production")
	v1, err := s.GetOrGenerateSecret("api", "BETTER_AUTH_SECRET", func() (string, error) { return "one", nil })
	require.NoError(t, err)
	v2, err := s.GetOrGenerateSecret("api", "BETTER_AUTH_SECRET", func() (string, error) { return "two", nil })
	require.NoError(t, err)
	assert.Equal(t, "one", v1)
	assert.Equal(t, "one", v2)

	_, err = s.GetOrGenerateSecret("api", "EMPTY", func() (string, error) { return "", nil })
	assert.ErrorIs(t, err, ErrEmptyGeneratedValue)
}

func TestDNSRecords_RemoveClearsVerification(t *testing.T) {
	s := New("dokploy", "production")
	s.SetDNSRecord(DNSRecordEntry{Domain: "example.com", Name: "api.example.com", Type: "A", Value: "1.2.3.4"})
	s.MarkDNSVerified("api.example.com", "1.2.3.4", time.Now())

	key := DNSRecordKey("api.example.com", "A")
	require.Contains(t, s.DNSRecords, key)

	s.RemoveDNSRecord(key)
	assert.NotContains(t, s.DNSRecords, key)
	assert.NotContains(t, s.DNSVerified, "api.example.com")
}

func TestFileStore_LoadMissingReturnsFresh(t *testing.T) {
	store := NewFileStore(t.TempDir(), "dokploy")
	s, err := store.Load("production")
	require.NoError(t, err)
	assert.Equal(t, "production", s.Stage)
	assert.Equal(t, "dokploy", s.Provider)
	assert.True(t, s.IsEmpty())
	assert.NotNil(t, s.Applications)
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, "dokploy")

	s := New("dokploy", "staging")
	s.SetProject("proj-1", "env-1")
	s.SetApplicationID("api", "app-1")
	s.SetPostgresID("pg-1")
	_, _, err := s.GetOrCreateCredentials("api", "api", func() (string, error) { return "pw", nil })
	require.NoError(t, err)
	s.Touch("run-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	require.NoError(t, store.Save(s))

	info, err := os.Stat(store.Path("staging"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := store.Load("staging")
	require.NoError(t, err)
	assert.Equal(t, s.Applications, loaded.Applications)
	assert.Equal(t, s.Credentials, loaded.Credentials)
	assert.Equal(t, "pg-1", loaded.Services.PostgresID)
	assert.Equal(t, "run-1", loaded.LastRunID)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStore_RejectsIncompatibleFormat(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, "dokploy")
	require.NoError(t, os.WriteFile(store.Path("production"), []byte(`{"version":"v2.0.0","stage":"production"}`), 0600))

	_, err := store.Load("production")
	assert.ErrorIs(t, err, ErrIncompatibleFormat)
}

func TestFileStore_RejectsCorruptAndForeignStage(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, "dokploy")

	require.NoError(t, os.WriteFile(store.Path("production"), []byte(`{not json`), 0600))
	_, err := store.Load("production")
	assert.ErrorIs(t, err, ErrStateCorrupted)

	require.NoError(t, os.WriteFile(store.Path("production"), []byte(`{"version":"v1.0.0","stage":"staging"}`), 0600))
	_, err = store.Load("production")
	assert.ErrorIs(t, err, ErrStateCorrupted)
}

func TestValidateStage(t *testing.T) {
	assert.NoError(t, ValidateStage("production"))
	assert.NoError(t, ValidateStage("pr-42"))
	assert.ErrorIs(t, ValidateStage("../etc"), ErrInvalidStage)
	assert.ErrorIs(t, ValidateStage(""), ErrInvalidStage)
}

func TestLock_Exclusive(t *testing.T) {
	dir := t.TempDir()
	l1, err := NewLock(dir, "production")
	require.NoError(t, err)
	l2, err := NewLock(dir, "production")
	require.NoError(t, err)

	require.NoError(t, l1.Acquire())
	assert.Equal(t, os.Getpid(), l1.HolderPID())
	assert.ErrorIs(t, l2.Acquire(), ErrLockHeld)

	require.NoError(t, l1.Release())
	require.NoError(t, l1.Release())
	require.NoError(t, l2.Acquire())
	require.NoError(t, l2.Release())
}

func TestLock_ReleaseKeepsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "production.lock")
	l1, err := NewLock(dir, "production")
	require.NoError(t, err)
	require.NoError(t, l1.Acquire())

	// A contender that opened the file while l1 held it.
	waiter, err := os.OpenFile(path, os.O_RDWR, 0600)
	require.NoError(t, err)
	defer waiter.Close()

	require.NoError(t, l1.Release())
	_, err = os.Stat(path)
	require.NoError(t, err, "lock file must survive release")
	assert.Zero(t, l1.HolderPID())

	require.NoError(t, unix.Flock(int(waiter.Fd()), unix.LOCK_EX|unix.LOCK_NB))
	l2, err := NewLock(dir, "production")
	require.NoError(t, err)
	assert.ErrorIs(t, l2.Acquire(), ErrLockHeld)

	require.NoError(t, unix.Flock(int(waiter.Fd()), unix.LOCK_UN))
	require.NoError(t, l2.Acquire())
	require.NoError(t, l2.Release())
}

func TestDiff(t *testing.T) {
	local := New("dokploy", "production")
	local.SetApplicationID("api", "app-1")
	local.SetApplicationID("web", "app-2")
	_, _, _ = local.GetOrCreateCredentials("api", "api", func() (string, error) { return "local-pw", nil })

	remote := New("dokploy", "production")
	remote.SetApplicationID("api", "app-9")
	remote.SetPostgresID("pg-1")
	_, _, _ = remote.GetOrCreateCredentials("api", "api", func() (string, error) { return "remote-pw", nil })
	remote.Touch("other-run", time.Now())

	changes, err := Diff(local, remote)
	require.NoError(t, err)

	byPath := make(map[string]Change)
	for _, c := range changes {
		byPath[c.Path] = c
	}
	assert.Equal(t, ChangeChanged, byPath["applications.api"].Kind)
	assert.Equal(t, ChangeRemoved, byPath["applications.web"].Kind)
	assert.Equal(t, ChangeAdded, byPath["services.postgresId"].Kind)

	pw := byPath["appCredentials.api.dbPassword"]
	assert.Equal(t, ChangeChanged, pw.Kind)
	assert.Equal(t, masked, pw.Local)
	assert.Equal(t, masked, pw.Remote)

	_, hasRun := byPath["lastRunId"]
	assert.False(t, hasRun, "run bookkeeping is not a difference")
}

func TestDiff_Identical(t *testing.T) {
	s := New("dokploy", "production")
	s.SetApplicationID("api", "app-1")
	changes, err := Diff(s, s)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

type memoryRemote struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (m *memoryRemote) Pull(_ context.Context, stage string) (*DeployState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[stage]
	if !ok {
		return nil, ErrRemoteStateNotFound
	}
	return Decode(data, stage)
}

func (m *memoryRemote) Push(_ context.Context, s *DeployState) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = make(map[string][]byte)
	}
	m.docs[s.Stage] = data
	return nil
}

func TestFetchBoth(t *testing.T) {
	store := NewFileStore(t.TempDir(), "dokploy")
	remote := &memoryRemote{}

	snap, err := FetchBoth(context.Background(), store, remote, "production")
	require.NoError(t, err)
	assert.NotNil(t, snap.Local)
	assert.Nil(t, snap.Remote)

	pushed := New("dokploy", "production")
	pushed.SetApplicationID("api", "app-1")
	require.NoError(t, remote.Push(context.Background(), pushed))

	snap, err = FetchBoth(context.Background(), store, remote, "production")
	require.NoError(t, err)
	require.NotNil(t, snap.Remote)
	assert.Equal(t, "app-1", snap.Remote.Applications["api"])
}
