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

import (
	"sort"
	"strings"
)

// PostgresSecrets are shadow copies of provisioned Postgres credentials.
type PostgresSecrets struct {
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// RedisSecrets are shadow copies of provisioned Redis credentials.
type RedisSecrets struct {
	Password string `yaml:"password,omitempty"`
}

// ServiceSecrets groups provisioned-service credentials.
type ServiceSecrets struct {
	Postgres PostgresSecrets `yaml:"postgres"`
	Redis    RedisSecrets    `yaml:"redis"`
}

// StageSecrets is the read-only secret store of one stage.
type StageSecrets struct {
	Stage    string            `yaml:"stage"`
	Services ServiceSecrets    `yaml:"services"`
	URLs     map[string]string `yaml:"urls"`
	Custom   map[string]string `yaml:"custom"`
}

// serviceAliases maps variable names to service-derived values.
var serviceAliases = map[string]func(*ServiceSecrets) string{
	"POSTGRES_PASSWORD": func(s *ServiceSecrets) string { return s.Postgres.Password },
	"DB_PASSWORD":       func(s *ServiceSecrets) string { return s.Postgres.Password },
	"PGPASSWORD":        func(s *ServiceSecrets) string { return s.Postgres.Password },
	"POSTGRES_USER":     func(s *ServiceSecrets) string { return s.Postgres.User },
	"DB_USER":           func(s *ServiceSecrets) string { return s.Postgres.User },
	"PGUSER":            func(s *ServiceSecrets) string { return s.Postgres.User },
	"REDIS_PASSWORD":    func(s *ServiceSecrets) string { return s.Redis.Password },
}

// Lookup returns the value the store holds for a variable name.
//
// # Description
//
// Sources are consulted in order: custom keys, then well-known URL keys
// (exact name, then the lower-cased name without its _URL suffix, so
// "DATABASE_URL" also matches urls.database), then service aliases.
// Empty values count as absent.
func (s *StageSecrets) Lookup(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	if v := s.Custom[name]; v != "" {
		return v, true
	}
	if v := s.URLs[name]; v != "" {
		return v, true
	}
	if short, ok := strings.CutSuffix(name, "_URL"); ok {
		if v := s.URLs[strings.ToLower(short)]; v != "" {
			return v, true
		}
	}
	if fn, ok := serviceAliases[name]; ok {
		if v := fn(&s.Services); v != "" {
			return v, true
		}
	}
	return "", false
}

// Names returns every variable name the store can satisfy, sorted.
func (s *StageSecrets) Names() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool)
	for k, v := range s.Custom {
		if v != "" {
			seen[k] = true
		}
	}
	for k, v := range s.URLs {
		if v != "" {
			seen[k] = true
		}
	}
	for k, fn := range serviceAliases {
		if fn(&s.Services) != "" {
			seen[k] = true
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SniffedEnvironment is the list of variables an app reads, as discovered by
// static analysis.
type SniffedEnvironment struct {
	AppName         string   `json:"appName"`
	RequiredEnvVars []string `json:"requiredEnvVars"`
}

// Filtered is the subset of a stage's secrets one app needs.
type Filtered struct {
	AppName string
	Secrets map[string]string
	Found   []string
	Missing []string
}

// EncryptedPayload is the per-app ciphertext handed to the build.
//
// MasterKey is never serialized; it only travels as a runtime variable.
type EncryptedPayload struct {
	AppName        string     `json:"appName"`
	Payload        Ciphertext `json:"payload"`
	MasterKey      string     `json:"-"`
	SecretCount    int        `json:"secretCount"`
	MissingSecrets []string   `json:"missingSecrets,omitempty"`
}

// Ciphertext is base64 ciphertext plus its nonce.
type Ciphertext struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
}
