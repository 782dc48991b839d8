// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dns

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Provider. Zones must be added before use.
type Memory struct {
	mu    sync.Mutex
	zones map[string]map[string]Record
	// Fail makes operations on a record name fail.
	Fail map[string]error
}

// NewMemory returns a provider hosting zones.
func NewMemory(zones ...string) *Memory {
	m := &Memory{zones: make(map[string]map[string]Record), Fail: make(map[string]error)}
	for _, z := range zones {
		m.zones[strings.ToLower(z)] = make(map[string]Record)
	}
	return m
}

// Name returns "memory".
func (m *Memory) Name() string { return "memory" }

func (m *Memory) zone(domain string) (map[string]Record, error) {
	z, ok := m.zones[strings.ToLower(strings.TrimSuffix(domain, "."))]
	if !ok {
		return nil, fmt.Errorf("no zone for %s", domain)
	}
	return z, nil
}

// GetRecords lists a zone's records sorted by key.
func (m *Memory) GetRecords(_ context.Context, domain string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.zone(domain)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(z))
	for _, r := range z {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// UpsertRecords creates or replaces records.
func (m *Memory) UpsertRecords(_ context.Context, domain string, records []Record) ([]UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.zone(domain)
	if err != nil {
		return nil, err
	}
	results := make([]UpsertResult, 0, len(records))
	for _, r := range records {
		if ferr := m.Fail[r.Name]; ferr != nil {
			results = append(results, UpsertResult{Record: r, Err: ferr})
			continue
		}
		prev, ok := z[r.Key()]
		z[r.Key()] = r
		results = append(results, UpsertResult{Record: r, Created: !ok, Unchanged: ok && prev == r})
	}
	return results, nil
}

// DeleteRecords removes records; absent ones are NotFound.
func (m *Memory) DeleteRecords(_ context.Context, domain string, records []Record) ([]DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.zone(domain)
	if err != nil {
		return nil, err
	}
	results := make([]DeleteResult, 0, len(records))
	for _, r := range records {
		if ferr := m.Fail[r.Name]; ferr != nil {
			results = append(results, DeleteResult{Record: r, Err: ferr})
			continue
		}
		if _, ok := z[r.Key()]; !ok {
			results = append(results, DeleteResult{Record: r, NotFound: true})
			continue
		}
		delete(z, r.Key())
		results = append(results, DeleteResult{Record: r, Deleted: true})
	}
	return results, nil
}

var _ Provider = (*Memory)(nil)
