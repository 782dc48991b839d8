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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/mod/semver"
)

// Sentinel errors for the state file store.
var (
	ErrInvalidStage       = errors.New("invalid stage name")
	ErrIncompatibleFormat = errors.New("incompatible state file format")
	ErrStateCorrupted     = errors.New("state file is corrupted")
)

var stagePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateStage rejects stage names that cannot be used as file names.
func ValidateStage(stage string) error {
	if !stagePattern.MatchString(stage) {
		return fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}
	return nil
}

// FileStore persists one JSON document per stage under Dir.
//
// # Description
//
// Save writes to a temp file in the same directory and renames it over the
// target, so a crash leaves either the previous or the new document, never a
// truncated one. Files are written 0600 because they hold generated
// credentials.
type FileStore struct {
	Dir      string
	Provider string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir, provider string) *FileStore {
	return &FileStore{Dir: dir, Provider: provider}
}

// Path returns the state file path for stage.
func (f *FileStore) Path(stage string) string {
	return filepath.Join(f.Dir, stage+".json")
}

// Load reads the stage's state, returning a fresh ledger when no file exists.
func (f *FileStore) Load(stage string) (*DeployState, error) {
	if err := ValidateStage(stage); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path(stage))
	if errors.Is(err, os.ErrNotExist) {
		return New(f.Provider, stage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state %s: %w", f.Path(stage), err)
	}
	return Decode(data, stage)
}

// Decode parses a state document and checks its format version.
func Decode(data []byte, stage string) (*DeployState, error) {
	var s DeployState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupted, err)
	}
	if s.Version == "" {
		s.Version = FormatVersion
	}
	if !semver.IsValid(s.Version) || semver.Major(s.Version) != semver.Major(FormatVersion) {
		return nil, fmt.Errorf("%w: file has %q, this build reads %s.x", ErrIncompatibleFormat, s.Version, semver.Major(FormatVersion))
	}
	if s.Stage == "" {
		s.Stage = stage
	}
	if s.Stage != stage {
		return nil, fmt.Errorf("%w: document is for stage %q, expected %q", ErrStateCorrupted, s.Stage, stage)
	}
	s.ensureMaps()
	return &s, nil
}

// Encode renders s as indented JSON.
func Encode(s *DeployState) ([]byte, error) {
	if s.Version == "" {
		s.Version = FormatVersion
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return append(data, '\n'), nil
}

// Save atomically writes s to its stage file.
func (f *FileStore) Save(s *DeployState) error {
	if err := ValidateStage(s.Stage); err != nil {
		return err
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(f.Dir, "."+s.Stage+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("setting state file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, f.Path(s.Stage)); err != nil {
		return fmt.Errorf("renaming temp state file: %w", err)
	}
	cleanup = false
	return nil
}
