// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package controlplane is the typed client of the remote application
// platform: projects, environments, applications, domains, registries,
// managed Postgres and Redis, backup destinations and backup schedules.
//
// Client is consumed by the deploy orchestrator. HTTPClient speaks the
// platform's HTTP+JSON API; Memory is an in-process implementation with a
// call log, used by tests and dry runs.
package controlplane
