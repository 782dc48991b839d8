// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets prepares user-managed stage secrets for deployment.
//
// A stage's secret store is filtered down to what one app reads, then
// encrypted under a fresh per-app key. Only that key crosses the deployment
// target's environment-variable channel; the ciphertext is embedded in the
// built artifact and decrypted at process start.
package secrets
