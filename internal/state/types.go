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
	"sort"
	"time"
)

// FormatVersion is the state file format written by this package.
const FormatVersion = "v1.0.0"

// Credentials are the generated per-app database login.
type Credentials struct {
	DBUser     string `json:"dbUser"`
	DBPassword string `json:"dbPassword"`
}

// ServiceIDs holds control-plane identifiers of shared services.
type ServiceIDs struct {
	PostgresID string `json:"postgresId,omitempty"`
	RedisID    string `json:"redisId,omitempty"`
}

// DNSRecordEntry is a DNS record the deployer created.
type DNSRecordEntry struct {
	App       string    `json:"app,omitempty"`
	Domain    string    `json:"domain"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	TTL       int       `json:"ttl"`
	CreatedAt time.Time `json:"createdAt"`
}

// DNSVerification records that a hostname was seen resolving to ServerIP.
type DNSVerification struct {
	ServerIP   string    `json:"serverIp"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// BackupState describes the off-site backup destination of a stage.
type BackupState struct {
	BucketName         string    `json:"bucketName"`
	BucketArn          string    `json:"bucketArn,omitempty"`
	IAMUserName        string    `json:"iamUserName"`
	IAMAccessKeyID     string    `json:"iamAccessKeyId"`
	IAMSecretAccessKey string    `json:"iamSecretAccessKey"`
	DestinationID      string    `json:"destinationId"`
	PostgresBackupID   string    `json:"postgresBackupId,omitempty"`
	Region             string    `json:"region"`
	CreatedAt          time.Time `json:"createdAt"`
}

// DeployState is the mutable ledger for one deployment stage.
type DeployState struct {
	Version       string `json:"version"`
	Provider      string `json:"provider"`
	Stage         string `json:"stage"`
	ProjectID     string `json:"projectId,omitempty"`
	EnvironmentID string `json:"environmentId,omitempty"`
	RegistryID    string `json:"registryId,omitempty"`
	LastRunID     string `json:"lastRunId,omitempty"`

	// Applications only holds apps whose deployment completed.
	Applications     map[string]string            `json:"applications"`
	Services         ServiceIDs                   `json:"services"`
	Credentials      map[string]Credentials       `json:"appCredentials"`
	GeneratedSecrets map[string]map[string]string `json:"generatedSecrets"`
	DNSRecords       map[string]DNSRecordEntry    `json:"dnsRecords"`
	DNSVerified      map[string]DNSVerification   `json:"dnsVerified"`
	Backups          *BackupState                 `json:"backups,omitempty"`
	LastDeployedAt   *time.Time                   `json:"lastDeployedAt,omitempty"`
}

// New returns an empty ledger for stage.
func New(provider, stage string) *DeployState {
	s := &DeployState{
		Version:  FormatVersion,
		Provider: provider,
		Stage:    stage,
	}
	s.ensureMaps()
	return s
}

// ensureMaps replaces nil maps so callers never write to a nil map after
// loading a file that omitted a section.
func (s *DeployState) ensureMaps() {
	if s.Applications == nil {
		s.Applications = make(map[string]string)
	}
	if s.Credentials == nil {
		s.Credentials = make(map[string]Credentials)
	}
	if s.GeneratedSecrets == nil {
		s.GeneratedSecrets = make(map[string]map[string]string)
	}
	if s.DNSRecords == nil {
		s.DNSRecords = make(map[string]DNSRecordEntry)
	}
	if s.DNSVerified == nil {
		s.DNSVerified = make(map[string]DNSVerification)
	}
}

// ApplicationNames returns deployed app names in sorted order.
func (s *DeployState) ApplicationNames() []string {
	names := make([]string, 0, len(s.Applications))
	for name := range s.Applications {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DNSRecordKeys returns record keys in sorted order.
func (s *DeployState) DNSRecordKeys() []string {
	keys := make([]string, 0, len(s.DNSRecords))
	for k := range s.DNSRecords {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
