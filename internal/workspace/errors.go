// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for configuration problems detected before any remote call.
var (
	ErrCyclicDependency  = errors.New("cyclic app dependencies")
	ErrUnknownApps       = errors.New("unknown apps")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrUnsupportedTarget = errors.New("unsupported deploy target")
)

// ConfigurationError is a fatal workspace configuration problem.
//
// # Description
//
// Kind is one of the sentinel errors above so callers can use errors.Is.
// Members names the apps involved (cycle members, unknown names, apps with
// an unsupported target).
type ConfigurationError struct {
	Kind    error
	Members []string
	Detail  string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrUnknownApps):
		return fmt.Sprintf("Unknown apps: %s", strings.Join(e.Members, ", "))
	case errors.Is(e.Kind, ErrCyclicDependency):
		return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.Members, " -> "))
	case len(e.Members) > 0 && e.Detail != "":
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Detail, strings.Join(e.Members, ", "))
	case e.Detail != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	default:
		return e.Kind.Error()
	}
}

// Unwrap returns the sentinel kind.
func (e *ConfigurationError) Unwrap() error {
	return e.Kind
}
