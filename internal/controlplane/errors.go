// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controlplane

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors matched by APIError and returned by Memory.
var (
	ErrNotFound     = errors.New("control-plane resource not found")
	ErrConflict     = errors.New("control-plane resource already exists")
	ErrUnauthorized = errors.New("control-plane credentials rejected")
)

// IsConflict reports whether err says the resource already exists.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// Issue is one structured validation problem reported by the API.
type Issue struct {
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
	Code    string   `json:"code,omitempty"`
}

// APIError is a non-2xx response from the control plane.
type APIError struct {
	StatusCode int
	Method     string
	Procedure  string
	Message    string
	Issues     []Issue
}

func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("control plane %s %s: %d", e.Method, e.Procedure, e.StatusCode))
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	for _, is := range e.Issues {
		if len(is.Path) > 0 {
			sb.WriteString(fmt.Sprintf("; %s: %s", strings.Join(is.Path, "."), is.Message))
		} else {
			sb.WriteString("; " + is.Message)
		}
	}
	return sb.String()
}

// IsNotFound reports a 404.
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsConflict reports a 409, or a 400 whose message says the resource
// already exists.
func (e *APIError) IsConflict() bool {
	if e.StatusCode == http.StatusConflict {
		return true
	}
	return e.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "already exists")
}

// Is lets errors.Is match the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.IsNotFound()
	case ErrConflict:
		return e.IsConflict()
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}
