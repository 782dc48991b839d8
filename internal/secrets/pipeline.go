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
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
)

// MasterKeySize is the symmetric key length in bytes.
const MasterKeySize = chacha20poly1305.KeySize

// Errors returned by the pipeline.
var (
	ErrInvalidMasterKey = errors.New("invalid master key")
	ErrDecryptFailed    = errors.New("secrets payload could not be decrypted")
)

// Provided reports whether a variable is supplied by something other than the
// secret store (computed, structural or inter-app values). Such names are
// neither found nor missing as far as the store is concerned.
type Provided func(name string) bool

// FilterForApp intersects an app's required variables with the stage store.
func FilterForApp(store *StageSecrets, env SniffedEnvironment, provided Provided) Filtered {
	f := Filtered{AppName: env.AppName, Secrets: make(map[string]string)}
	seen := make(map[string]bool)
	for _, name := range env.RequiredEnvVars {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if provided != nil && provided(name) {
			continue
		}
		if v, ok := store.Lookup(name); ok {
			f.Secrets[name] = v
			f.Found = append(f.Found, name)
			continue
		}
		f.Missing = append(f.Missing, name)
	}
	sort.Strings(f.Found)
	sort.Strings(f.Missing)
	return f
}

// EncryptForApp encrypts the filtered secrets under a fresh master key.
//
// # Description
//
// A 32-byte key is drawn into a memguard LockedBuffer, the secret map is
// serialized into a second locked buffer, and the plaintext is sealed with
// XChaCha20-Poly1305 using the app name as associated data. Both buffers are
// destroyed before returning. The key is returned hex-encoded; ciphertext
// and nonce are base64.
//
// # Inputs
//
//   - f: Output of FilterForApp.
//
// # Outputs
//
//   - *EncryptedPayload: Ciphertext, key and counts.
//   - error: Serialization or cipher failure.
func EncryptForApp(f Filtered) (*EncryptedPayload, error) {
	key := memguard.NewBufferRandom(MasterKeySize)
	defer key.Destroy()

	raw, err := json.Marshal(f.Secrets)
	if err != nil {
		return nil, fmt.Errorf("serializing secrets for %s: %w", f.AppName, err)
	}
	// NewBufferFromBytes wipes raw.
	plain := memguard.NewBufferFromBytes(raw)
	defer plain.Destroy()

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("reading nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plain.Bytes(), []byte(f.AppName))

	return &EncryptedPayload{
		AppName: f.AppName,
		Payload: Ciphertext{
			Encrypted: base64.StdEncoding.EncodeToString(sealed),
			IV:        base64.StdEncoding.EncodeToString(nonce),
		},
		MasterKey:      hex.EncodeToString(key.Bytes()),
		SecretCount:    len(f.Secrets),
		MissingSecrets: append([]string(nil), f.Missing...),
	}, nil
}

// Decrypt reverses EncryptForApp.
func Decrypt(p *EncryptedPayload, masterKey string) (map[string]string, error) {
	keyBytes, err := hex.DecodeString(masterKey)
	if err != nil || len(keyBytes) != MasterKeySize {
		return nil, ErrInvalidMasterKey
	}
	key := memguard.NewBufferFromBytes(keyBytes)
	defer key.Destroy()

	sealed, err := base64.StdEncoding.DecodeString(p.Payload.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrDecryptFailed, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(p.Payload.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrDecryptFailed, err)
	}

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: iv has %d bytes", ErrDecryptFailed, len(nonce))
	}
	plain, err := aead.Open(nil, nonce, sealed, []byte(p.AppName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	buf := memguard.NewBufferFromBytes(plain)
	defer buf.Destroy()

	out := make(map[string]string)
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return out, nil
}

// PrepareAll encrypts secrets for every sniffed app that reads at least one
// variable. Apps with no required variables are skipped.
func PrepareAll(store *StageSecrets, sniffed map[string]SniffedEnvironment, provided Provided) (map[string]*EncryptedPayload, error) {
	out := make(map[string]*EncryptedPayload)
	for _, app := range sortedApps(sniffed) {
		env := sniffed[app]
		if env.AppName == "" {
			env.AppName = app
		}
		if len(env.RequiredEnvVars) == 0 {
			continue
		}
		payload, err := EncryptForApp(FilterForApp(store, env, provided))
		if err != nil {
			return nil, err
		}
		out[app] = payload
	}
	return out, nil
}

func sortedApps(sniffed map[string]SniffedEnvironment) []string {
	apps := make([]string, 0, len(sniffed))
	for app := range sniffed {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}
