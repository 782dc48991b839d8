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
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrRemoteStateNotFound is returned by Pull when no remote copy exists.
var ErrRemoteStateNotFound = errors.New("remote state not found")

// Remote is a shared copy of stage state, used by teams that deploy from
// more than one machine.
type Remote interface {
	// Pull fetches the remote copy of stage.
	Pull(ctx context.Context, stage string) (*DeployState, error)

	// Push replaces the remote copy with s.
	Push(ctx context.Context, s *DeployState) error
}

// GCSRemote stores state documents as objects in a Cloud Storage bucket.
//
// # Description
//
// Objects are named "{Prefix}/{stage}.json". Writes replace the object as a
// whole; readers never observe a partial document.
type GCSRemote struct {
	client *storage.Client
	Bucket string
	Prefix string
}

// NewGCSRemote creates a remote backed by bucket.
//
// # Inputs
//
//   - ctx: Context for client creation.
//   - bucket: Bucket name.
//   - prefix: Object prefix (may be empty).
//   - credentialsFile: Service account key path; empty uses application default credentials.
func NewGCSRemote(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSRemote, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSRemote{client: client, Bucket: bucket, Prefix: prefix}, nil
}

// Close releases the underlying storage client.
func (r *GCSRemote) Close() error {
	return r.client.Close()
}

func (r *GCSRemote) objectName(stage string) string {
	return path.Join(r.Prefix, stage+".json")
}

// Pull implements Remote.
func (r *GCSRemote) Pull(ctx context.Context, stage string) (*DeployState, error) {
	if err := ValidateStage(stage); err != nil {
		return nil, err
	}
	reader, err := r.client.Bucket(r.Bucket).Object(r.objectName(stage)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrRemoteStateNotFound, r.Bucket, r.objectName(stage))
	}
	if err != nil {
		return nil, fmt.Errorf("opening remote state: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading remote state: %w", err)
	}
	return Decode(data, stage)
}

// Push implements Remote.
func (r *GCSRemote) Push(ctx context.Context, s *DeployState) error {
	if err := ValidateStage(s.Stage); err != nil {
		return err
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}

	writer := r.client.Bucket(r.Bucket).Object(r.objectName(s.Stage)).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing remote state gs://%s/%s: %w", r.Bucket, r.objectName(s.Stage), err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", r.objectName(s.Stage), err)
	}
	return nil
}

var _ Remote = (*GCSRemote)(nil)
