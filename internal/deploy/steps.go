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
	"time"

	"github.com/AleutianAI/launchpad/pkg/logging"
)

// =============================================================================
// Step Sequencer
// =============================================================================

// step is one remote mutation in a sequence.
type step struct {
	// Name identifies the step in logs, metrics and errors.
	Name string
	// Phase is the app phase the step belongs to. Teardown steps leave it
	// at PhaseNotDeployed.
	Phase AppPhase
	// Run performs the step.
	Run func(ctx context.Context) error
	// Timeout overrides the sequence default. Zero uses the default.
	Timeout time.Duration
}

// sequence runs steps strictly in order.
//
// # Description
//
// Cancellation is only observed between steps: once a step has been issued
// it runs under a context detached from the caller's cancellation (but
// still bounded by its timeout), so the run always sees the result of a
// mutation it started and can record it in state.
//
// With ContinueOnError every step runs and every failure is returned. Without
// it the first failure stops the sequence.
type sequence struct {
	StepTimeout     time.Duration
	ContinueOnError bool
	Logger          *logging.Logger

	// OnStepStart is called before each step.
	OnStepStart func(s step)
	// OnStepComplete is called after each successful step.
	OnStepComplete func(s step, d time.Duration)
	// OnStepFail is called after each failed step.
	OnStepFail func(s step, err error)
}

// stepFailure names the step a sequence failed in.
type stepFailure struct {
	Step  step
	Err   error
	Index int
}

func (f stepFailure) Error() string { return fmt.Sprintf("%s: %v", f.Step.Name, f.Err) }

func (f stepFailure) Unwrap() error { return f.Err }

// Execute runs steps and returns the failures; nil means all succeeded.
func (q *sequence) Execute(ctx context.Context, steps []step) []stepFailure {
	var failures []stepFailure
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			failures = append(failures, stepFailure{Step: s, Err: err, Index: i})
			return failures
		}
		if q.OnStepStart != nil {
			q.OnStepStart(s)
		}
		start := time.Now()
		err := q.run(ctx, s)
		if err == nil {
			if q.OnStepComplete != nil {
				q.OnStepComplete(s, time.Since(start))
			}
			continue
		}
		if q.OnStepFail != nil {
			q.OnStepFail(s, err)
		}
		q.logger().Warn("step failed", "step", s.Name, "error", err)
		failures = append(failures, stepFailure{Step: s, Err: err, Index: i})
		if !q.ContinueOnError {
			return failures
		}
	}
	return failures
}

func (q *sequence) run(ctx context.Context, s step) error {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = q.StepTimeout
	}
	stepCtx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, timeout)
		defer cancel()
	}
	return s.Run(stepCtx)
}

func (q *sequence) logger() *logging.Logger {
	if q.Logger == nil {
		return logging.Nop()
	}
	return q.Logger
}
