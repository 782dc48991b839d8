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

	"github.com/AleutianAI/launchpad/internal/deploy"
	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/pkg/ux"
)

func renderDeploy(p *ux.Printer, r *deploy.Result) {
	p.Title(fmt.Sprintf("Deploy %s (run %s)", r.Stage, r.RunID))
	rows := make([][]string, 0, len(r.Apps))
	for _, a := range r.Apps {
		status, detail := "deployed", a.URL
		if !a.Success {
			status = "failed: " + a.FailedPhase.String()
			detail = firstLine(a.Error)
		}
		rows = append(rows, []string{a.AppName, string(a.Type), status, detail})
	}
	if len(rows) > 0 {
		p.Table([]string{"APP", "TYPE", "STATUS", "URL / ERROR"}, rows)
	}
	for _, w := range r.DNSWarnings {
		p.Warning(w)
	}
	p.Summary("deployed", r.SuccessCount, "failed", r.FailedCount)
}

func renderUndeploy(p *ux.Printer, stage string, r *deploy.UndeployResult) {
	p.Title("Undeploy " + stage)
	var removed []string
	removed = append(removed, r.DeletedApplications...)
	for _, item := range []struct {
		done bool
		name string
	}{
		{r.DeletedPostgres, "postgres"},
		{r.DeletedRedis, "redis"},
		{r.DeletedBackupDestination, "backup destination"},
		{r.DeletedAwsBackupResources, "backup bucket and identity"},
		{r.DeletedProject, "project"},
	} {
		if item.done {
			removed = append(removed, item.name)
		}
	}
	for _, name := range removed {
		p.Success("deleted " + name)
	}
	if r.DeletedDNSRecords > 0 {
		p.Success(fmt.Sprintf("deleted %d DNS record(s)", r.DeletedDNSRecords))
	}
	if len(r.Errors) > 0 {
		lines := make([]string, 0, len(r.Errors))
		for _, e := range r.Errors {
			lines = append(lines, e.Error())
		}
		p.ErrorBox("Teardown incomplete", strings.Join(lines, "\n")+"\n\nRun undeploy again to retry only the failed steps.")
	}
	p.Summary("deleted", len(removed), "errors", len(r.Errors))
}

func renderReport(p *ux.Printer, r *secrets.Report) {
	p.Title("Secrets for " + r.Stage)
	rows := make([][]string, 0, len(r.Apps))
	for _, a := range r.Apps {
		rows = append(rows, []string{a.App, string(a.Status), strings.Join(a.Found, ", "), strings.Join(a.Missing, ", ")})
	}
	p.Table([]string{"APP", "STATUS", "FOUND", "MISSING"}, rows)
	if r.HasUnresolved() {
		p.Warning(fmt.Sprintf("%d app(s) have unresolved secrets", len(r.Unresolved())))
	}
}

// renderChanges prints a ledger diff. An empty diff prints a success line.
func renderChanges(p *ux.Printer, changes []state.Change, same string) {
	if len(changes) == 0 {
		p.Success(same)
		return
	}
	for _, c := range changes {
		p.Info(c.String())
	}
	p.Summary("differences", len(changes))
}

// renderState prints every recorded value of st with secrets masked.
func renderState(p *ux.Printer, st *state.DeployState) error {
	changes, err := state.Diff(nil, st)
	if err != nil {
		return err
	}
	p.Title(fmt.Sprintf("State of %s (%s)", st.Stage, st.Provider))
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{c.Path, c.Remote})
	}
	if len(rows) == 0 {
		p.Muted("nothing has been deployed to this stage")
		return nil
	}
	p.Table([]string{"PATH", "VALUE"}, rows)
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
