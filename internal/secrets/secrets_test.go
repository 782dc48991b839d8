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
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore() *StageSecrets {
	return &StageSecrets{
		Stage: "production",
		Services: ServiceSecrets{
			Postgres: PostgresSecrets{User: "admin", Password: "pg-secret"},
		},
		URLs:   map[string]string{"STRIPE_WEBHOOK_URL": "https://hooks.example.com", "sentry": "https://sentry.example.com/1"},
		Custom: map[string]string{"STRIPE_KEY": "sk_live_123", "EMPTY": ""},
	}
}

func TestStageSecrets_Lookup(t *testing.T) {
	s := testStore()

	v, ok := s.Lookup("STRIPE_KEY")
	assert.True(t, ok)
	assert.Equal(t, "sk_live_123", v)

	v, ok = s.Lookup("SENTRY_URL")
	assert.True(t, ok)
	assert.Equal(t, "https://sentry.example.com/1", v)

	v, ok = s.Lookup("DB_PASSWORD")
	assert.True(t, ok)
	assert.Equal(t, "pg-secret", v)

	_, ok = s.Lookup("EMPTY")
	assert.False(t, ok, "empty values are absent")

	_, ok = s.Lookup("REDIS_PASSWORD")
	assert.False(t, ok)

	var nilStore *StageSecrets
	_, ok = nilStore.Lookup("STRIPE_KEY")
	assert.False(t, ok)
}

func TestFilterForApp(t *testing.T) {
	env := SniffedEnvironment{
		AppName:         "api",
		RequiredEnvVars: []string{"STRIPE_KEY", "PORT", "MAILGUN_KEY", "STRIPE_KEY", "SENTRY_URL"},
	}
	provided := func(name string) bool { return name == "PORT" }

	f := FilterForApp(testStore(), env, provided)
	assert.Equal(t, "api", f.AppName)
	assert.Equal(t, []string{"SENTRY_URL", "STRIPE_KEY"}, f.Found)
	assert.Equal(t, []string{"MAILGUN_KEY"}, f.Missing)
	assert.Len(t, f.Secrets, 2)
	assert.NotContains(t, f.Secrets, "PORT")
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	f := FilterForApp(testStore(), SniffedEnvironment{
		AppName:         "api",
		RequiredEnvVars: []string{"STRIPE_KEY", "DB_PASSWORD", "UNKNOWN"},
	}, nil)
	want := map[string]string{}
	for k, v := range f.Secrets {
		want[k] = v
	}

	payload, err := EncryptForApp(f)
	require.NoError(t, err)
	assert.Equal(t, "api", payload.AppName)
	assert.Equal(t, 2, payload.SecretCount)
	assert.Equal(t, []string{"UNKNOWN"}, payload.MissingSecrets)
	assert.Len(t, payload.MasterKey, MasterKeySize*2)
	assert.NotContains(t, payload.Payload.Encrypted, "sk_live_123")

	got, err := Decrypt(payload, payload.MasterKey)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEncrypt_FreshKeyPerCall(t *testing.T) {
	f := Filtered{AppName: "api", Secrets: map[string]string{"A": "1"}}
	p1, err := EncryptForApp(f)
	require.NoError(t, err)
	p2, err := EncryptForApp(f)
	require.NoError(t, err)
	assert.NotEqual(t, p1.MasterKey, p2.MasterKey)
	assert.NotEqual(t, p1.Payload.IV, p2.Payload.IV)
}

func TestDecrypt_Failures(t *testing.T) {
	payload, err := EncryptForApp(Filtered{AppName: "api", Secrets: map[string]string{"A": "1"}})
	require.NoError(t, err)

	_, err = Decrypt(payload, "not-hex")
	assert.ErrorIs(t, err, ErrInvalidMasterKey)

	other, err := EncryptForApp(Filtered{AppName: "api", Secrets: map[string]string{}})
	require.NoError(t, err)
	_, err = Decrypt(payload, other.MasterKey)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	renamed := *payload
	renamed.AppName = "web"
	_, err = Decrypt(&renamed, payload.MasterKey)
	assert.ErrorIs(t, err, ErrDecryptFailed, "payload is bound to its app")
}

func TestEncryptedPayload_JSONOmitsMasterKey(t *testing.T) {
	payload, err := EncryptForApp(Filtered{AppName: "api", Secrets: map[string]string{"A": "1"}})
	require.NoError(t, err)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), payload.MasterKey))
	assert.NotContains(t, string(data), "masterKey")
}

func TestPrepareAll_SkipsAppsWithoutVariables(t *testing.T) {
	sniffed := map[string]SniffedEnvironment{
		"api": {RequiredEnvVars: []string{"STRIPE_KEY"}},
		"web": {RequiredEnvVars: nil},
	}
	out, err := PrepareAll(testStore(), sniffed, nil)
	require.NoError(t, err)
	require.Contains(t, out, "api")
	assert.NotContains(t, out, "web")
	assert.Equal(t, "api", out["api"].AppName)
}

func TestBuildReport(t *testing.T) {
	sniffed := map[string]SniffedEnvironment{
		"api":    {RequiredEnvVars: []string{"STRIPE_KEY"}},
		"web":    {RequiredEnvVars: []string{"PORT"}},
		"worker": {RequiredEnvVars: []string{"MAILGUN_KEY", "STRIPE_KEY"}},
	}
	r := BuildReport(testStore(), sniffed, func(n string) bool { return n == "PORT" })

	assert.Equal(t, "production", r.Stage)
	require.Len(t, r.Apps, 3)
	assert.Equal(t, []string{"api", "web", "worker"}, []string{r.Apps[0].App, r.Apps[1].App, r.Apps[2].App})

	api, _ := r.App("api")
	assert.Equal(t, StatusHasSecrets, api.Status)
	web, _ := r.App("web")
	assert.Equal(t, StatusNoSecrets, web.Status)
	worker, _ := r.App("worker")
	assert.Equal(t, StatusUnresolved, worker.Status)
	assert.Equal(t, []string{"MAILGUN_KEY"}, worker.Missing)

	assert.True(t, r.HasUnresolved())
	assert.Len(t, r.Unresolved(), 1)
}
