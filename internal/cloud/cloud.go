// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cloud manages the cloud-side resources behind an off-site backup
// destination: a versioned bucket, a dedicated identity, the identity's
// access to the bucket, and an S3-compatible access key.
//
// Every existence check is tri-state (see reconcile.Existence). A resource
// that exists but cannot be read is treated as present so it is never
// re-created.
package cloud

import (
	"context"
	"errors"

	"github.com/AleutianAI/launchpad/internal/reconcile"
)

// ErrNotFound is returned by deletes of absent resources.
var ErrNotFound = errors.New("cloud resource not found")

// Identity is the principal that writes backups.
type Identity struct {
	Name  string
	Email string
}

// AccessKey is an S3-compatible key pair.
type AccessKey struct {
	ID     string
	Secret string
}

// BackupCloud is the cloud surface used by the backup provisioner.
type BackupCloud interface {
	BucketExists(ctx context.Context, bucket string) (reconcile.Existence, error)
	CreateBucket(ctx context.Context, bucket, region string) error
	EnableVersioning(ctx context.Context, bucket string) error

	IdentityExists(ctx context.Context, name string) (reconcile.Existence, error)
	CreateIdentity(ctx context.Context, name string) (Identity, error)
	IdentityFor(name string) Identity

	// GrantBucketAccess attaches the identity's write policy to bucket.
	GrantBucketAccess(ctx context.Context, id Identity, bucket string) error
	RevokeBucketAccess(ctx context.Context, id Identity, bucket string) error

	CreateAccessKey(ctx context.Context, id Identity) (AccessKey, error)
	ListAccessKeys(ctx context.Context, id Identity) ([]string, error)
	DeleteAccessKey(ctx context.Context, id Identity, keyID string) error

	EmptyBucket(ctx context.Context, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error
	DeleteIdentity(ctx context.Context, id Identity) error

	// Endpoint is the S3-compatible endpoint for region.
	Endpoint(region string) string
	// BucketRef is the provider's resource name for bucket.
	BucketRef(bucket string) string
}
