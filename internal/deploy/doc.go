// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deploy runs the two-phase deployment of a workspace onto the
// control plane, and its reverse-order teardown.
//
// # Description
//
// A deploy run reconciles the project, environment, registry and shared
// services, then deploys every backend app in dependency order, then every
// frontend app. Frontends bake backend URLs into their build, so no
// frontend starts before all backends are finished. A failed backend stops
// the run; a failed frontend is recorded and the run moves on.
//
// Every remote resource goes through reconcile.FindOrCreate with the deploy
// state as the idempotence key, and the state file is saved after every
// app, so re-running after any failure is safe.
//
// # Thread Safety
//
// Orchestrator and Undeployer are single-run, single-goroutine objects.
// Concurrent runs against one stage must be excluded by the caller
// (see state.Lock).
package deploy
