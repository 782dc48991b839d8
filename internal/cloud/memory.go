// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cloud

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/launchpad/internal/reconcile"
)

// Memory is an in-process BackupCloud with a call log.
type Memory struct {
	mu    sync.Mutex
	seq   int
	calls []string
	fail  map[string]error

	Buckets    map[string]*MemoryBucket
	Identities map[string]Identity
	Keys       map[string]string // key id -> identity name
	// Denied makes existence checks report ExistsNoAccess for a name.
	Denied map[string]bool
}

// MemoryBucket is a fake bucket.
type MemoryBucket struct {
	Region     string
	Versioning bool
	Objects    int
	Grants     map[string]bool
}

// NewMemory returns an empty cloud.
func NewMemory() *Memory {
	return &Memory{
		fail:       make(map[string]error),
		Buckets:    make(map[string]*MemoryBucket),
		Identities: make(map[string]Identity),
		Keys:       make(map[string]string),
		Denied:     make(map[string]bool),
	}
}

// FailOn injects err for method.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

// Calls returns the call log.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *Memory) enter(method, arg string) error {
	m.calls = append(m.calls, method+":"+arg)
	return m.fail[method]
}

func (m *Memory) BucketExists(_ context.Context, bucket string) (reconcile.Existence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BucketExists", bucket); err != nil {
		return reconcile.Missing, err
	}
	if m.Denied[bucket] {
		return reconcile.ExistsNoAccess, nil
	}
	if _, ok := m.Buckets[bucket]; ok {
		return reconcile.Exists, nil
	}
	return reconcile.Missing, nil
}

func (m *Memory) CreateBucket(_ context.Context, bucket, region string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateBucket", bucket); err != nil {
		return err
	}
	if _, ok := m.Buckets[bucket]; ok {
		return fmt.Errorf("bucket %s already exists", bucket)
	}
	m.Buckets[bucket] = &MemoryBucket{Region: region, Grants: make(map[string]bool)}
	return nil
}

func (m *Memory) EnableVersioning(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("EnableVersioning", bucket); err != nil {
		return err
	}
	b, ok := m.Buckets[bucket]
	if !ok {
		if m.Denied[bucket] {
			return nil
		}
		return fmt.Errorf("bucket %s: %w", bucket, ErrNotFound)
	}
	b.Versioning = true
	return nil
}

func (m *Memory) IdentityFor(name string) Identity {
	return Identity{Name: name, Email: name + "@memory.invalid"}
}

func (m *Memory) IdentityExists(_ context.Context, name string) (reconcile.Existence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("IdentityExists", name); err != nil {
		return reconcile.Missing, err
	}
	if m.Denied[name] {
		return reconcile.ExistsNoAccess, nil
	}
	if _, ok := m.Identities[name]; ok {
		return reconcile.Exists, nil
	}
	return reconcile.Missing, nil
}

func (m *Memory) CreateIdentity(_ context.Context, name string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateIdentity", name); err != nil {
		return Identity{}, err
	}
	if _, ok := m.Identities[name]; ok {
		return Identity{}, fmt.Errorf("identity %s already exists", name)
	}
	id := m.IdentityFor(name)
	m.Identities[name] = id
	return id, nil
}

func (m *Memory) GrantBucketAccess(_ context.Context, id Identity, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GrantBucketAccess", bucket); err != nil {
		return err
	}
	b, ok := m.Buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %s: %w", bucket, ErrNotFound)
	}
	b.Grants[id.Email] = true
	return nil
}

func (m *Memory) RevokeBucketAccess(_ context.Context, id Identity, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RevokeBucketAccess", bucket); err != nil {
		return err
	}
	b, ok := m.Buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %s: %w", bucket, ErrNotFound)
	}
	delete(b.Grants, id.Email)
	return nil
}

func (m *Memory) CreateAccessKey(_ context.Context, id Identity) (AccessKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateAccessKey", id.Name); err != nil {
		return AccessKey{}, err
	}
	m.seq++
	key := AccessKey{ID: fmt.Sprintf("KEY%d", m.seq), Secret: fmt.Sprintf("secret-%d", m.seq)}
	m.Keys[key.ID] = id.Name
	return key, nil
}

func (m *Memory) ListAccessKeys(_ context.Context, id Identity) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListAccessKeys", id.Name); err != nil {
		return nil, err
	}
	var ids []string
	for k, owner := range m.Keys {
		if owner == id.Name {
			ids = append(ids, k)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) DeleteAccessKey(_ context.Context, _ Identity, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteAccessKey", keyID); err != nil {
		return err
	}
	if _, ok := m.Keys[keyID]; !ok {
		return fmt.Errorf("key %s: %w", keyID, ErrNotFound)
	}
	delete(m.Keys, keyID)
	return nil
}

func (m *Memory) EmptyBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("EmptyBucket", bucket); err != nil {
		return err
	}
	b, ok := m.Buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %s: %w", bucket, ErrNotFound)
	}
	b.Objects = 0
	return nil
}

func (m *Memory) DeleteBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteBucket", bucket); err != nil {
		return err
	}
	b, ok := m.Buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %s: %w", bucket, ErrNotFound)
	}
	if b.Objects > 0 {
		return fmt.Errorf("bucket %s is not empty", bucket)
	}
	delete(m.Buckets, bucket)
	return nil
}

func (m *Memory) DeleteIdentity(_ context.Context, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteIdentity", id.Name); err != nil {
		return err
	}
	if _, ok := m.Identities[id.Name]; !ok {
		return fmt.Errorf("identity %s: %w", id.Name, ErrNotFound)
	}
	delete(m.Identities, id.Name)
	return nil
}

func (m *Memory) Endpoint(region string) string {
	return "https://storage." + region + ".memory.invalid"
}

func (m *Memory) BucketRef(bucket string) string {
	return "mem://" + bucket
}

var _ BackupCloud = (*Memory)(nil)
