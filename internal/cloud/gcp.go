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
	"errors"
	"fmt"
	"net/http"
	"strings"

	gcpiam "cloud.google.com/go/iam"
	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	iamv1 "google.golang.org/api/iam/v1"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/AleutianAI/launchpad/internal/reconcile"
)

// backupRole is granted to the backup identity on its bucket.
const backupRole gcpiam.RoleName = "roles/storage.objectAdmin"

// GCP implements BackupCloud with Cloud Storage, IAM service accounts and
// Cloud Storage HMAC keys.
//
// # Description
//
// The bucket is created with uniform bucket-level access and object
// versioning. The identity is a service account; its "inline policy" is a
// bucket IAM binding; its access key is an HMAC key, which the backup
// destination uses against the S3-compatible XML API.
type GCP struct {
	ProjectID string
	storage   *storage.Client
	iam       *iamv1.Service
}

// NewGCP builds clients for projectID. credentialsFile may be empty to use
// application default credentials.
func NewGCP(ctx context.Context, projectID, credentialsFile string) (*GCP, error) {
	if projectID == "" {
		return nil, errors.New("cloud project is required for backups")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	is, err := iamv1.NewService(ctx, opts...)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("failed to create IAM client: %w", err)
	}
	return &GCP{ProjectID: projectID, storage: sc, iam: is}, nil
}

// Close releases the storage client.
func (g *GCP) Close() error {
	return g.storage.Close()
}

// classify maps an API error to existence. Other errors are returned.
func classify(err error) (reconcile.Existence, error) {
	if err == nil {
		return reconcile.Exists, nil
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return reconcile.Missing, nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return reconcile.Missing, nil
		case http.StatusForbidden:
			return reconcile.ExistsNoAccess, nil
		}
	}
	return reconcile.Missing, err
}

func isNotFound(err error) bool {
	if errors.Is(err, storage.ErrBucketNotExist) || errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func notFoundOr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// BucketExists checks bucket.
func (g *GCP) BucketExists(ctx context.Context, bucket string) (reconcile.Existence, error) {
	_, err := g.storage.Bucket(bucket).Attrs(ctx)
	return classify(err)
}

// CreateBucket creates a versioned bucket in region.
func (g *GCP) CreateBucket(ctx context.Context, bucket, region string) error {
	attrs := &storage.BucketAttrs{
		Location:                 region,
		VersioningEnabled:        true,
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{Enabled: true},
	}
	if err := g.storage.Bucket(bucket).Create(ctx, g.ProjectID, attrs); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	return nil
}

// EnableVersioning turns on object versioning.
func (g *GCP) EnableVersioning(ctx context.Context, bucket string) error {
	_, err := g.storage.Bucket(bucket).Update(ctx, storage.BucketAttrsToUpdate{VersioningEnabled: true})
	if err != nil {
		return fmt.Errorf("enabling versioning on %s: %w", bucket, err)
	}
	return nil
}

// IdentityFor derives the service account of an account id.
func (g *GCP) IdentityFor(name string) Identity {
	return Identity{Name: name, Email: fmt.Sprintf("%s@%s.iam.gserviceaccount.com", name, g.ProjectID)}
}

func (g *GCP) resourceName(id Identity) string {
	return fmt.Sprintf("projects/%s/serviceAccounts/%s", g.ProjectID, id.Email)
}

// IdentityExists checks the service account.
func (g *GCP) IdentityExists(ctx context.Context, name string) (reconcile.Existence, error) {
	_, err := g.iam.Projects.ServiceAccounts.Get(g.resourceName(g.IdentityFor(name))).Context(ctx).Do()
	return classify(err)
}

// CreateIdentity creates the service account.
func (g *GCP) CreateIdentity(ctx context.Context, name string) (Identity, error) {
	req := &iamv1.CreateServiceAccountRequest{
		AccountId: name,
		ServiceAccount: &iamv1.ServiceAccount{
			DisplayName: "launchpad backups " + name,
			Description: "Writes database backups for a launchpad stage",
		},
	}
	sa, err := g.iam.Projects.ServiceAccounts.Create("projects/"+g.ProjectID, req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
			return g.IdentityFor(name), nil
		}
		return Identity{}, fmt.Errorf("creating service account %s: %w", name, err)
	}
	return Identity{Name: name, Email: sa.Email}, nil
}

// GrantBucketAccess binds the object admin role on bucket.
func (g *GCP) GrantBucketAccess(ctx context.Context, id Identity, bucket string) error {
	handle := g.storage.Bucket(bucket).IAM()
	policy, err := handle.Policy(ctx)
	if err != nil {
		return fmt.Errorf("reading IAM policy of %s: %w", bucket, err)
	}
	member := "serviceAccount:" + id.Email
	if policy.HasRole(member, backupRole) {
		return nil
	}
	policy.Add(member, backupRole)
	if err := handle.SetPolicy(ctx, policy); err != nil {
		return fmt.Errorf("granting %s on %s: %w", backupRole, bucket, err)
	}
	return nil
}

// RevokeBucketAccess removes the binding added by GrantBucketAccess.
func (g *GCP) RevokeBucketAccess(ctx context.Context, id Identity, bucket string) error {
	handle := g.storage.Bucket(bucket).IAM()
	policy, err := handle.Policy(ctx)
	if err != nil {
		return notFoundOr(err, "reading IAM policy of %s", bucket)
	}
	member := "serviceAccount:" + id.Email
	if !policy.HasRole(member, backupRole) {
		return nil
	}
	policy.Remove(member, backupRole)
	if err := handle.SetPolicy(ctx, policy); err != nil {
		return fmt.Errorf("revoking %s on %s: %w", backupRole, bucket, err)
	}
	return nil
}

// CreateAccessKey creates an HMAC key for the identity.
func (g *GCP) CreateAccessKey(ctx context.Context, id Identity) (AccessKey, error) {
	key, err := g.storage.CreateHMACKey(ctx, g.ProjectID, id.Email)
	if err != nil {
		return AccessKey{}, fmt.Errorf("creating HMAC key for %s: %w", id.Email, err)
	}
	return AccessKey{ID: key.AccessID, Secret: key.Secret}, nil
}

// ListAccessKeys lists the identity's HMAC key ids, active or not.
func (g *GCP) ListAccessKeys(ctx context.Context, id Identity) ([]string, error) {
	it := g.storage.ListHMACKeys(ctx, g.ProjectID, storage.ForHMACKeyServiceAccountEmail(id.Email))
	var ids []string
	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing HMAC keys of %s: %w", id.Email, err)
		}
		if key.State == storage.Deleted {
			continue
		}
		ids = append(ids, key.AccessID)
	}
	return ids, nil
}

// DeleteAccessKey deactivates and deletes an HMAC key.
func (g *GCP) DeleteAccessKey(ctx context.Context, _ Identity, keyID string) error {
	handle := g.storage.HMACKeyHandle(g.ProjectID, keyID)
	if _, err := handle.Update(ctx, storage.HMACKeyAttrsToUpdate{State: storage.Inactive}); err != nil {
		return notFoundOr(err, "deactivating HMAC key %s", keyID)
	}
	return notFoundOr(handle.Delete(ctx), "deleting HMAC key %s", keyID)
}

// EmptyBucket deletes every object generation in bucket.
func (g *GCP) EmptyBucket(ctx context.Context, bucket string) error {
	b := g.storage.Bucket(bucket)
	it := b.Objects(ctx, &storage.Query{Versions: true})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return notFoundOr(err, "listing objects of %s", bucket)
		}
		err = b.Object(attrs.Name).Generation(attrs.Generation).Delete(ctx)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("deleting gs://%s/%s#%d: %w", bucket, attrs.Name, attrs.Generation, err)
		}
	}
}

// DeleteBucket deletes an empty bucket.
func (g *GCP) DeleteBucket(ctx context.Context, bucket string) error {
	return notFoundOr(g.storage.Bucket(bucket).Delete(ctx), "deleting bucket %s", bucket)
}

// DeleteIdentity deletes the service account.
func (g *GCP) DeleteIdentity(ctx context.Context, id Identity) error {
	_, err := g.iam.Projects.ServiceAccounts.Delete(g.resourceName(id)).Context(ctx).Do()
	return notFoundOr(err, "deleting service account %s", id.Email)
}

// Endpoint returns the Cloud Storage XML API endpoint. It is global.
func (g *GCP) Endpoint(string) string {
	return "https://storage.googleapis.com"
}

// BucketRef returns the gs:// URL of bucket.
func (g *GCP) BucketRef(bucket string) string {
	return "gs://" + strings.TrimPrefix(bucket, "gs://")
}

var _ BackupCloud = (*GCP)(nil)
