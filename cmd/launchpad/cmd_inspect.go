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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
)

func runSecretsReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	if err := state.ValidateStage(stage); err != nil {
		return err
	}
	o, err := env.orchestrator(ctx, stage, nil, nil)
	if err != nil {
		return err
	}
	report, err := o.Preflight(appList)
	if err != nil {
		return err
	}
	renderReport(env.printer, report)
	if report.HasUnresolved() {
		return reported(ExitConfig, nil)
	}
	return nil
}

// runOrder prints the deploy order, backends first.
func runOrder(cmd *cobra.Command, _ []string) error {
	env, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.close()

	order, err := plan(env.ws, appList)
	if err != nil {
		return err
	}
	backends, frontends := workspace.SplitPhases(order, env.ws.Apps)
	rows := make([][]string, 0, len(order))
	for i, name := range append(backends, frontends...) {
		app := env.ws.Apps[name]
		rows = append(rows, []string{fmt.Sprint(i + 1), name, string(app.Type), strings.Join(app.Dependencies, ", ")})
	}
	env.printer.Table([]string{"#", "APP", "TYPE", "DEPENDS ON"}, rows)
	return nil
}
