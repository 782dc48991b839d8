// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package envresolve

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingVariables is matched by every MissingVariablesError.
var ErrMissingVariables = errors.New("required environment variables are unresolved")

// MissingVariablesError reports which variables an app needs but could not
// be resolved, with a remediation hint per variable.
type MissingVariablesError struct {
	App     string
	Stage   string
	Missing []string
	Hints   map[string]string
}

func (e *MissingVariablesError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("app %s: %d unresolved environment variable(s): %s\n",
		e.App, len(e.Missing), strings.Join(e.Missing, ", ")))
	sb.WriteString("\nTo fix:\n")
	for _, name := range e.Missing {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", name, e.Hints[name]))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (e *MissingVariablesError) Unwrap() error { return ErrMissingVariables }

// Err returns nil when nothing is missing, otherwise a
// *MissingVariablesError for ctx's app.
func (r Result) Err(ctx *Context) error {
	if len(r.Missing) == 0 {
		return nil
	}
	hints := make(map[string]string, len(r.Missing))
	for _, name := range r.Missing {
		hints[name] = Hint(name, ctx)
	}
	return &MissingVariablesError{
		App:     ctx.App,
		Stage:   ctx.Stage,
		Missing: append([]string(nil), r.Missing...),
		Hints:   hints,
	}
}

// Hint returns setup help for a missing variable.
func Hint(name string, ctx *Context) string {
	secretsFile := fmt.Sprintf(".launchpad/secrets/%s.yaml", ctx.Stage)
	for _, dep := range ctx.Config.Dependencies {
		if strings.EqualFold(DependencyVar(dep), name) {
			return fmt.Sprintf("dependency %q has not been deployed in this stage; deploy it first or include it in --apps", dep)
		}
	}
	switch name {
	case VarDatabaseURL:
		return fmt.Sprintf("enable services.postgres in launchpad.yaml or set urls.%s in %s", name, secretsFile)
	case VarRedisURL:
		return fmt.Sprintf("enable services.redis in launchpad.yaml or set urls.%s in %s", name, secretsFile)
	case VarAuthURL:
		return "set deploy.domain in launchpad.yaml so the app has a public hostname"
	case VarSecretsMasterKey:
		return "the app has no prepared secrets; check the sniffed variables for this app"
	}
	if strings.HasSuffix(name, "_URL") {
		return fmt.Sprintf("set urls.%s or custom.%s in %s", name, name, secretsFile)
	}
	return fmt.Sprintf("set custom.%s in %s", name, secretsFile)
}
