// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state is the persisted ledger of what a deployment stage has
// created remotely.
//
// # Description
//
// A DeployState records application, service, credential, secret, DNS and
// backup identifiers for one stage. Every reconciliation step consults it
// before calling a remote API, so it is the idempotence key of the whole
// deploy: a key present in the ledger means "believed to exist remotely",
// absence means "not created yet or torn down".
//
// State is mutated only through named operations (SetApplicationID,
// GetOrCreateCredentials, ...) and flushed by FileStore after every
// successful resource mutation. A remote copy can be pulled, pushed and
// diffed against the local file.
//
// # Thread Safety
//
// DeployState is owned by a single orchestrator goroutine and is not safe for
// concurrent mutation. Cross-process exclusion is provided by Lock.
package state
