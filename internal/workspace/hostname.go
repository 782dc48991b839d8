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
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
)

// ProductionStage is the stage whose hostnames carry no stage suffix.
const ProductionStage = "production"

// Hostname returns the public hostname of app for stage.
//
// # Description
//
// The first label is the app's Subdomain, or its name. Non-production stages
// append "-<stage>" to that label so that stages never collide inside one
// apex domain:
//
//	api, production -> api.example.com
//	api, staging    -> api-staging.example.com
func (w *Workspace) Hostname(app, stage string) (string, error) {
	label := app
	if cfg, ok := w.Apps[app]; ok && cfg.Subdomain != "" {
		label = cfg.Subdomain
	}
	label = strings.ToLower(label)
	if stage != "" && stage != ProductionStage {
		label = label + "-" + strings.ToLower(stage)
	}

	host := label + "." + strings.TrimSuffix(w.Deploy.Domain, ".")
	if !strfmt.IsHostname(host) {
		return "", fmt.Errorf("app %s: computed hostname %q is not a valid hostname", app, host)
	}
	return host, nil
}

// PublicURL returns the https URL of app for stage.
func (w *Workspace) PublicURL(app, stage string) (string, error) {
	host, err := w.Hostname(app, stage)
	if err != nil {
		return "", err
	}
	return "https://" + host, nil
}

// FrontendURLs returns the public URLs of every frontend app, in name order.
func (w *Workspace) FrontendURLs(stage string) ([]string, error) {
	var urls []string
	for _, name := range w.AppNames() {
		if w.Apps[name].Type != AppTypeFrontend {
			continue
		}
		u, err := w.PublicURL(name, stage)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}
