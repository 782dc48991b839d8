// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/launchpad/cmd/launchpad/config"
	"github.com/AleutianAI/launchpad/internal/deploy"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitConfig means nothing remote was touched: the workspace, secrets
	// or flags need fixing first.
	ExitConfig = 2
	// ExitPartial means the run finished but some apps or teardown steps
	// failed.
	ExitPartial = 3
	// ExitLocked means another process holds the stage lock.
	ExitLocked = 4
)

// errReported marks errors whose details the command already printed.
var errReported = errors.New("reported")

// reportedError carries an exit code for a failure that was rendered
// already, so main does not print it a second time.
type reportedError struct {
	code int
	err  error
}

func (e *reportedError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *reportedError) Unwrap() []error {
	if e.err == nil {
		return []error{errReported}
	}
	return []error{errReported, e.err}
}

func reported(code int, err error) error {
	return &reportedError{code: code, err: err}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var re *reportedError
	if errors.As(err, &re) {
		return re.code
	}
	var cfgErr *workspace.ConfigurationError
	switch {
	case errors.Is(err, state.ErrLockHeld):
		return ExitLocked
	case errors.As(err, &cfgErr),
		errors.Is(err, config.ErrInvalidWorkspace),
		errors.Is(err, workspace.ErrCyclicDependency),
		errors.Is(err, workspace.ErrUnknownApps),
		errors.Is(err, deploy.ErrUnresolvedSecrets),
		errors.Is(err, deploy.ErrCredentialRequired):
		return ExitConfig
	default:
		return ExitFailure
	}
}
