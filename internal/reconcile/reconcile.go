// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reconcile implements the find-or-create pattern every remote
// resource goes through.
//
// A cached identifier is tried first. If fetching it fails the resource is
// assumed to have been deleted out-of-band, and the natural key is searched
// instead. Only when both miss is the resource created, and the new
// identifier is handed to Persist before the call returns.
package reconcile

import (
	"context"
	"errors"
	"fmt"
)

// Action records how a resource was obtained.
type Action string

const (
	// ActionReused means the cached identifier still resolved.
	ActionReused Action = "reused"
	// ActionAdopted means an existing resource was found by natural key.
	ActionAdopted Action = "adopted"
	// ActionCreated means a new resource was created.
	ActionCreated Action = "created"
)

// ErrNotFound is returned by Find functions that found nothing.
var ErrNotFound = errors.New("resource not found")

// Request describes one reconciliation.
type Request[T any] struct {
	// Resource names the resource type for errors and logs ("application").
	Resource string
	// Key is the natural key, usually a name or hostname.
	Key string
	// CachedID is the identifier recorded in state, or empty.
	CachedID string

	// Get fetches by identifier. Optional.
	Get func(ctx context.Context, id string) (T, error)
	// Find searches by natural key and returns ErrNotFound on a miss.
	Find func(ctx context.Context, key string) (T, error)
	// Create makes the resource.
	Create func(ctx context.Context) (T, error)
	// ID extracts the identifier of a resource.
	ID func(T) string
	// Persist records an identifier in state. Called for every outcome
	// whose identifier differs from CachedID.
	Persist func(id string) error
	// OnStaleID is told when the cached identifier could not be fetched.
	OnStaleID func(id string, err error)
	// IsConflict recognizes an "already exists" answer from Create. The
	// resource is then searched for again and adopted.
	IsConflict func(error) bool
}

// Outcome is the result of FindOrCreate.
type Outcome[T any] struct {
	Value  T
	ID     string
	Action Action
}

// Error wraps a failed reconciliation step with its resource context.
type Error struct {
	Resource string
	Key      string
	Step     string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %q: %s failed: %v", e.Resource, e.Key, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FindOrCreate reconciles one resource.
//
// # Description
//
//  1. With a cached identifier and a Get function, fetch it. Any error is a
//     miss, reported through OnStaleID.
//  2. Search by natural key; reuse a match.
//  3. Create, then Persist the new identifier. A create rejected as a
//     conflict searches again and adopts what it finds.
//
// # Outputs
//
//   - Outcome[T]: Resource, identifier and action taken.
//   - error: *Error naming the failed step.
func FindOrCreate[T any](ctx context.Context, req Request[T]) (Outcome[T], error) {
	var zero Outcome[T]

	if req.CachedID != "" && req.Get != nil {
		v, err := req.Get(ctx, req.CachedID)
		if err == nil {
			return Outcome[T]{Value: v, ID: req.CachedID, Action: ActionReused}, nil
		}
		if req.OnStaleID != nil {
			req.OnStaleID(req.CachedID, err)
		}
	}

	if req.Find != nil {
		v, err := req.Find(ctx, req.Key)
		switch {
		case err == nil:
			id := req.ID(v)
			if err := persist(req, id); err != nil {
				return zero, err
			}
			return Outcome[T]{Value: v, ID: id, Action: ActionAdopted}, nil
		case !errors.Is(err, ErrNotFound):
			return zero, &Error{Resource: req.Resource, Key: req.Key, Step: "find", Err: err}
		}
	}

	if req.Create == nil {
		return zero, &Error{Resource: req.Resource, Key: req.Key, Step: "create", Err: ErrNotFound}
	}
	v, err := req.Create(ctx)
	if err != nil {
		if req.IsConflict != nil && req.IsConflict(err) && req.Find != nil {
			return adoptAfterConflict(ctx, req, err)
		}
		return zero, &Error{Resource: req.Resource, Key: req.Key, Step: "create", Err: err}
	}
	id := req.ID(v)
	if err := persist(req, id); err != nil {
		return zero, err
	}
	return Outcome[T]{Value: v, ID: id, Action: ActionCreated}, nil
}

func adoptAfterConflict[T any](ctx context.Context, req Request[T], createErr error) (Outcome[T], error) {
	var zero Outcome[T]
	v, err := req.Find(ctx, req.Key)
	if err != nil {
		return zero, &Error{Resource: req.Resource, Key: req.Key, Step: "create", Err: errors.Join(createErr, err)}
	}
	id := req.ID(v)
	if err := persist(req, id); err != nil {
		return zero, err
	}
	return Outcome[T]{Value: v, ID: id, Action: ActionAdopted}, nil
}

func persist[T any](req Request[T], id string) error {
	if req.Persist == nil || id == req.CachedID {
		return nil
	}
	if err := req.Persist(id); err != nil {
		return &Error{Resource: req.Resource, Key: req.Key, Step: "persist", Err: err}
	}
	return nil
}

// Existence is a tri-state existence check for cloud resources.
type Existence int

const (
	Missing Existence = iota
	Exists
	// ExistsNoAccess means the resource exists but the caller may not read
	// it. It is treated as present so a create is never attempted.
	ExistsNoAccess
)

// Present reports whether the resource must not be created.
func (e Existence) Present() bool { return e != Missing }

func (e Existence) String() string {
	switch e {
	case Exists:
		return "exists"
	case ExistsNoAccess:
		return "exists-no-access"
	default:
		return "missing"
	}
}
