// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

// ReportStatus classifies one app in a secrets report.
type ReportStatus string

const (
	StatusHasSecrets ReportStatus = "has-secrets"
	StatusNoSecrets  ReportStatus = "no-secrets"
	StatusUnresolved ReportStatus = "unresolved"
)

// AppReport is one line of the pre-flight secrets report.
type AppReport struct {
	App     string
	Status  ReportStatus
	Found   []string
	Missing []string
}

// Report is the pre-flight view of which apps have, need, or lack secrets.
type Report struct {
	Stage string
	Apps  []AppReport
}

// BuildReport classifies every sniffed app, in name order.
//
// Apps with any missing variable are unresolved; apps with found secrets and
// nothing missing have secrets; the rest need none.
func BuildReport(store *StageSecrets, sniffed map[string]SniffedEnvironment, provided Provided) *Report {
	r := &Report{}
	if store != nil {
		r.Stage = store.Stage
	}
	for _, app := range sortedApps(sniffed) {
		env := sniffed[app]
		if env.AppName == "" {
			env.AppName = app
		}
		f := FilterForApp(store, env, provided)
		line := AppReport{App: app, Found: f.Found, Missing: f.Missing}
		switch {
		case len(f.Missing) > 0:
			line.Status = StatusUnresolved
		case len(f.Found) > 0:
			line.Status = StatusHasSecrets
		default:
			line.Status = StatusNoSecrets
		}
		r.Apps = append(r.Apps, line)
	}
	return r
}

// HasUnresolved reports whether any app lacks a required secret.
func (r *Report) HasUnresolved() bool {
	return len(r.Unresolved()) > 0
}

// Unresolved returns the unresolved lines.
func (r *Report) Unresolved() []AppReport {
	var out []AppReport
	for _, a := range r.Apps {
		if a.Status == StatusUnresolved {
			out = append(out, a)
		}
	}
	return out
}

// App returns the line for app, if present.
func (r *Report) App(name string) (AppReport, bool) {
	for _, a := range r.Apps {
		if a.App == name {
			return a, true
		}
	}
	return AppReport{}, false
}
