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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ChangeKind classifies one difference between two ledgers.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"   // present remotely only
	ChangeRemoved ChangeKind = "removed" // present locally only
	ChangeChanged ChangeKind = "changed"
)

// Change is one differing leaf value, addressed by a dotted path such as
// "applications.api" or "backups.destinationId".
type Change struct {
	Path   string
	Kind   ChangeKind
	Local  string
	Remote string
}

// String renders the change for terminal output.
func (c Change) String() string {
	switch c.Kind {
	case ChangeAdded:
		return fmt.Sprintf("+ %s = %s", c.Path, c.Remote)
	case ChangeRemoved:
		return fmt.Sprintf("- %s = %s", c.Path, c.Local)
	default:
		return fmt.Sprintf("~ %s: %s -> %s", c.Path, c.Local, c.Remote)
	}
}

// sensitivePaths lists path fragments whose values are masked in a diff.
var sensitivePaths = []string{"dbPassword", "generatedSecrets.", "iamSecretAccessKey"}

const masked = "********"

// Diff compares local and remote and returns their differences sorted by
// path. Timestamps of the last run are ignored. Sensitive values are masked,
// but a change to them is still reported.
func Diff(local, remote *DeployState) ([]Change, error) {
	l, err := flatten(local)
	if err != nil {
		return nil, fmt.Errorf("flattening local state: %w", err)
	}
	r, err := flatten(remote)
	if err != nil {
		return nil, fmt.Errorf("flattening remote state: %w", err)
	}

	var changes []Change
	for p, lv := range l {
		rv, ok := r[p]
		switch {
		case !ok:
			changes = append(changes, Change{Path: p, Kind: ChangeRemoved, Local: mask(p, lv)})
		case rv != lv:
			changes = append(changes, Change{Path: p, Kind: ChangeChanged, Local: mask(p, lv), Remote: mask(p, rv)})
		}
	}
	for p, rv := range r {
		if _, ok := l[p]; !ok {
			changes = append(changes, Change{Path: p, Kind: ChangeAdded, Remote: mask(p, rv)})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func mask(p, v string) string {
	for _, s := range sensitivePaths {
		if strings.Contains(p, s) {
			return masked
		}
	}
	return v
}

func flatten(s *DeployState) (map[string]string, error) {
	out := make(map[string]string)
	if s == nil {
		return out, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	delete(tree, "lastDeployedAt")
	delete(tree, "lastRunId")
	walk("", tree, out)
	return out, nil
}

func walk(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			walk(p, child, out)
		}
	case []any:
		for i, child := range v {
			walk(fmt.Sprintf("%s[%d]", prefix, i), child, out)
		}
	case nil:
	case string:
		if v != "" {
			out[prefix] = v
		}
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

// Snapshot pairs a local ledger with its remote copy.
type Snapshot struct {
	Local  *DeployState
	Remote *DeployState
}

// FetchBoth loads the local file and pulls the remote copy concurrently.
// A missing remote copy yields a nil Remote rather than an error.
func FetchBoth(ctx context.Context, store *FileStore, remote Remote, stage string) (*Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := store.Load(stage)
		if err != nil {
			return err
		}
		snap.Local = s
		return nil
	})
	g.Go(func() error {
		s, err := remote.Pull(gctx, stage)
		if errors.Is(err, ErrRemoteStateNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		snap.Remote = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}
