// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dns maps app hostnames to record upserts and deletes against a
// pluggable DNS backend, and records what it created in the deploy state.
package dns

import (
	"context"
	"fmt"
	"strings"
)

// Record is one DNS record. Name is a fully qualified hostname without the
// trailing dot.
type Record struct {
	Name  string
	Type  string
	TTL   int
	Value string
}

// Key identifies a record set.
func (r Record) Key() string {
	return strings.ToLower(r.Name) + ":" + strings.ToUpper(r.Type)
}

// UpsertResult reports one upserted record.
type UpsertResult struct {
	Record    Record
	Created   bool
	Unchanged bool
	Err       error
}

// DeleteResult reports one deleted record. NotFound counts as success.
type DeleteResult struct {
	Record   Record
	Deleted  bool
	NotFound bool
	Err      error
}

// Provider is a DNS backend.
type Provider interface {
	Name() string
	GetRecords(ctx context.Context, domain string) ([]Record, error)
	UpsertRecords(ctx context.Context, domain string, records []Record) ([]UpsertResult, error)
	DeleteRecords(ctx context.Context, domain string, records []Record) ([]DeleteResult, error)
}

// RecordError is a per-record failure. It never aborts a batch.
type RecordError struct {
	Op     string
	Domain string
	Record Record
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("dns %s %s %s in %s: %v", e.Op, e.Record.Type, e.Record.Name, e.Domain, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
