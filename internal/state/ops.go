// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyGeneratedValue is returned when a generator produced nothing.
var ErrEmptyGeneratedValue = errors.New("generator returned an empty value")

// SetProject records the control-plane project and environment.
func (s *DeployState) SetProject(projectID, environmentID string) {
	s.ProjectID = projectID
	s.EnvironmentID = environmentID
}

// SetApplicationID marks app as deployed under id.
func (s *DeployState) SetApplicationID(app, id string) {
	s.ensureMaps()
	s.Applications[app] = id
}

// ApplicationID returns the recorded id of app.
func (s *DeployState) ApplicationID(app string) (string, bool) {
	id, ok := s.Applications[app]
	return id, ok && id != ""
}

// RemoveApplication forgets app after it was deleted remotely.
func (s *DeployState) RemoveApplication(app string) {
	delete(s.Applications, app)
}

// SetPostgresID records the shared Postgres service.
func (s *DeployState) SetPostgresID(id string) { s.Services.PostgresID = id }

// SetRedisID records the shared Redis service.
func (s *DeployState) SetRedisID(id string) { s.Services.RedisID = id }

// ClearPostgres forgets the Postgres service.
func (s *DeployState) ClearPostgres() { s.Services.PostgresID = "" }

// ClearRedis forgets the Redis service.
func (s *DeployState) ClearRedis() { s.Services.RedisID = "" }

// GetOrCreateCredentials returns the stored credentials for app, creating
// them on first use.
//
// # Description
//
// Credentials are generated exactly once per app and stage. Later calls
// return the stored value even if the remote database user has to be
// re-applied, so a redeploy never rotates a password by accident.
//
// # Inputs
//
//   - app: App name.
//   - user: Database user name to record when creating.
//   - gen: Password generator, called only when no credentials exist.
//
// # Outputs
//
//   - Credentials: Stored or newly created credentials.
//   - bool: True when the credentials were created by this call.
//   - error: Generator failure.
func (s *DeployState) GetOrCreateCredentials(app, user string, gen func() (string, error)) (Credentials, bool, error) {
	s.ensureMaps()
	if c, ok := s.Credentials[app]; ok && c.DBPassword != "" {
		return c, false, nil
	}
	password, err := gen()
	if err != nil {
		return Credentials{}, false, fmt.Errorf("generating database password for %s: %w", app, err)
	}
	if password == "" {
		return Credentials{}, false, ErrEmptyGeneratedValue
	}
	c := Credentials{DBUser: user, DBPassword: password}
	s.Credentials[app] = c
	return c, true, nil
}

// CredentialsFor returns stored credentials without creating any.
func (s *DeployState) CredentialsFor(app string) (Credentials, bool) {
	c, ok := s.Credentials[app]
	return c, ok
}

// GetOrGenerateSecret returns generatedSecrets[app][name], generating and
// caching it on first use.
func (s *DeployState) GetOrGenerateSecret(app, name string, gen func() (string, error)) (string, error) {
	s.ensureMaps()
	if v := s.GeneratedSecrets[app][name]; v != "" {
		return v, nil
	}
	v, err := gen()
	if err != nil {
		return "", fmt.Errorf("generating %s for %s: %w", name, app, err)
	}
	if v == "" {
		return "", ErrEmptyGeneratedValue
	}
	if s.GeneratedSecrets[app] == nil {
		s.GeneratedSecrets[app] = make(map[string]string)
	}
	s.GeneratedSecrets[app][name] = v
	return v, nil
}

// DNSRecordKey is the ledger key of a record.
func DNSRecordKey(name, recordType string) string {
	return name + ":" + recordType
}

// SetDNSRecord records a created or confirmed DNS record.
func (s *DeployState) SetDNSRecord(entry DNSRecordEntry) {
	s.ensureMaps()
	s.DNSRecords[DNSRecordKey(entry.Name, entry.Type)] = entry
}

// RemoveDNSRecord forgets a deleted record and its verification.
func (s *DeployState) RemoveDNSRecord(key string) {
	if entry, ok := s.DNSRecords[key]; ok {
		delete(s.DNSVerified, entry.Name)
	}
	delete(s.DNSRecords, key)
}

// MarkDNSVerified records that hostname resolves to serverIP.
func (s *DeployState) MarkDNSVerified(hostname, serverIP string, at time.Time) {
	s.ensureMaps()
	s.DNSVerified[hostname] = DNSVerification{ServerIP: serverIP, VerifiedAt: at}
}

// SetBackups replaces the backup section.
func (s *DeployState) SetBackups(b *BackupState) { s.Backups = b }

// ClearBackups forgets the backup section.
func (s *DeployState) ClearBackups() { s.Backups = nil }

// Touch records the completion time of a deploy run.
func (s *DeployState) Touch(runID string, now time.Time) {
	t := now.UTC()
	s.LastDeployedAt = &t
	s.LastRunID = runID
}

// IsEmpty reports whether the ledger records no remote resources at all.
func (s *DeployState) IsEmpty() bool {
	return s.ProjectID == "" &&
		len(s.Applications) == 0 &&
		s.Services.PostgresID == "" &&
		s.Services.RedisID == "" &&
		len(s.DNSRecords) == 0 &&
		s.Backups == nil
}

// GenerateSecret returns a URL-safe random string encoding n random bytes.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("secret length must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
