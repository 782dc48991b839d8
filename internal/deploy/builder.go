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
	"fmt"
	"strings"

	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/workspace"
)

// BuildRequest is what a Builder needs to produce one app's image.
type BuildRequest struct {
	Workspace string
	App       string
	Config    workspace.AppConfig
	Stage     string
	RunID     string
	// BuildArgs are the variables baked into the image.
	BuildArgs map[string]string
	// Secrets is the encrypted payload embedded in the image, or nil.
	Secrets *secrets.EncryptedPayload
}

// Builder turns an app into a pullable image reference. Building and
// pushing happen outside the orchestrator.
type Builder interface {
	Build(ctx context.Context, req BuildRequest) (string, error)
}

// StaticImageBuilder derives image references for images built and pushed
// by an external pipeline: <registry>/<workspace>-<app>:<tag>.
type StaticImageBuilder struct {
	Registry string
	// Tag defaults to the stage.
	Tag string
}

// Build returns the image reference; it performs no I/O.
func (b StaticImageBuilder) Build(_ context.Context, req BuildRequest) (string, error) {
	tag := b.Tag
	if tag == "" {
		tag = req.Stage
	}
	if tag == "" {
		return "", fmt.Errorf("app %s: image tag is empty", req.App)
	}
	name := strings.ToLower(req.Workspace + "-" + req.App)
	if b.Registry == "" {
		return name + ":" + tag, nil
	}
	return strings.TrimSuffix(b.Registry, "/") + "/" + name + ":" + tag, nil
}

// CredentialRequest asks for one missing credential.
type CredentialRequest struct {
	// Name is the variable name, e.g. REGISTRY_PASSWORD.
	Name        string
	Description string
	Stage       string
}

// CredentialResolver supplies credentials that are not in the stage
// secrets. Interactive implementations prompt; others fail with
// ErrCredentialRequired.
type CredentialResolver interface {
	ResolveCredential(ctx context.Context, req CredentialRequest) (string, error)
}

// NoCredentials fails every request.
type NoCredentials struct{}

// ResolveCredential returns ErrCredentialRequired.
func (NoCredentials) ResolveCredential(_ context.Context, req CredentialRequest) (string, error) {
	return "", fmt.Errorf("%w: %s (%s)", ErrCredentialRequired, req.Name, req.Description)
}

// StaticCredentials answers from a fixed map.
type StaticCredentials map[string]string

// ResolveCredential returns the mapped value or ErrCredentialRequired.
func (s StaticCredentials) ResolveCredential(ctx context.Context, req CredentialRequest) (string, error) {
	if v, ok := s[req.Name]; ok && v != "" {
		return v, nil
	}
	return NoCredentials{}.ResolveCredential(ctx, req)
}
