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
	"errors"
	"fmt"

	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/workspace"
)

// AppPhase is the position of one app in its deployment state machine.
type AppPhase int

const (
	PhaseNotDeployed AppPhase = iota
	PhaseResolving
	PhaseConfiguring
	PhaseDeploying
	PhaseDomainBinding
	PhaseDeployed
	PhaseFailed
)

func (p AppPhase) String() string {
	switch p {
	case PhaseNotDeployed:
		return "not-deployed"
	case PhaseResolving:
		return "resolving"
	case PhaseConfiguring:
		return "configuring"
	case PhaseDeploying:
		return "deploying"
	case PhaseDomainBinding:
		return "domain-binding"
	case PhaseDeployed:
		return "deployed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("AppPhase(%d)", int(p))
	}
}

// Options selects what a run deploys.
type Options struct {
	// Apps restricts the run. Empty means every app in the workspace.
	Apps  []string
	Stage string
	// AllowMissingSecrets lets a run start although the pre-flight report
	// lists unresolved backend secrets.
	AllowMissingSecrets bool
}

// AppResult is the outcome of one app.
type AppResult struct {
	AppName       string            `json:"appName"`
	Type          workspace.AppType `json:"type"`
	Success       bool              `json:"success"`
	ApplicationID string            `json:"applicationId,omitempty"`
	URL           string            `json:"url,omitempty"`
	// Phase is the last phase reached; PhaseFailed apps record where in
	// FailedPhase.
	Phase       AppPhase `json:"-"`
	FailedPhase AppPhase `json:"-"`
	Error       string   `json:"error,omitempty"`
	Err         error    `json:"-"`
}

// Result is the structured outcome of a deploy run.
type Result struct {
	RunID        string          `json:"runId"`
	Stage        string          `json:"stage"`
	Apps         []AppResult     `json:"apps"`
	SuccessCount int             `json:"successCount"`
	FailedCount  int             `json:"failedCount"`
	Report       *secrets.Report `json:"-"`
	// DNSWarnings are non-fatal DNS problems of the run.
	DNSWarnings []string `json:"dnsWarnings,omitempty"`
}

func (r *Result) add(a AppResult) {
	if a.Err != nil && a.Error == "" {
		a.Error = a.Err.Error()
	}
	r.Apps = append(r.Apps, a)
	if a.Success {
		r.SuccessCount++
	} else {
		r.FailedCount++
	}
}

// App returns the result of app, if it was attempted.
func (r *Result) App(name string) (AppResult, bool) {
	for _, a := range r.Apps {
		if a.AppName == name {
			return a, true
		}
	}
	return AppResult{}, false
}

// UndeployOptions selects the optional teardown steps.
type UndeployOptions struct {
	Stage              string
	DeleteProject      bool
	DeleteCloudBackups bool
}

// StepError is one failed teardown step.
type StepError struct {
	Step     string `json:"step"`
	Resource string `json:"resource,omitempty"`
	Err      error  `json:"-"`
	Message  string `json:"message"`
}

func (e StepError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s %s: %v", e.Step, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e StepError) Unwrap() error { return e.Err }

// UndeployResult is the structured outcome of a teardown. Errors never
// abort the teardown; the caller inspects them.
type UndeployResult struct {
	DeletedApplications       []string    `json:"deletedApplications"`
	DeletedPostgres           bool        `json:"deletedPostgres"`
	DeletedRedis              bool        `json:"deletedRedis"`
	DeletedProject            bool        `json:"deletedProject"`
	DeletedBackupDestination  bool        `json:"deletedBackupDestination"`
	DeletedAwsBackupResources bool        `json:"deletedAwsBackupResources"`
	DeletedDNSRecords         int         `json:"deletedDnsRecords"`
	UpdatedState              bool        `json:"updatedState"`
	Errors                    []StepError `json:"errors"`
}

// Errors returned by Deploy.
var (
	ErrBackendFailed      = errors.New("backend deployment failed")
	ErrUnresolvedSecrets  = errors.New("backend apps have unresolved secrets")
	ErrCredentialRequired = errors.New("credential required but no interactive terminal is available")
)

// BackendFailedError aborts a run after a backend app failed.
type BackendFailedError struct {
	App   string
	Phase AppPhase
	Err   error
}

func (e *BackendFailedError) Error() string {
	return fmt.Sprintf("backend %s failed while %s: %v", e.App, e.Phase, e.Err)
}

func (e *BackendFailedError) Unwrap() []error { return []error{ErrBackendFailed, e.Err} }

// UnresolvedSecretsError refuses to start a run.
type UnresolvedSecretsError struct {
	Apps []secrets.AppReport
}

func (e *UnresolvedSecretsError) Error() string {
	return fmt.Sprintf("%d backend app(s) have unresolved secrets; fix them or pass --allow-missing", len(e.Apps))
}

func (e *UnresolvedSecretsError) Unwrap() error { return ErrUnresolvedSecrets }
