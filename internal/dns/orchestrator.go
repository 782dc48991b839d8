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
	"time"

	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/pkg/logging"
)

// DefaultTTL is used when the workspace does not set one.
const DefaultTTL = 300

// HostResolver looks up the addresses of a hostname. *net.Resolver
// satisfies it.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// AppHost is the public hostname of one app.
type AppHost struct {
	App      string
	Hostname string
}

// Orchestrator drives a Provider and keeps the deploy state's DNS ledger.
type Orchestrator struct {
	Provider Provider
	Resolver HostResolver
	Logger   *logging.Logger
	Now      func() time.Time
}

// NewOrchestrator returns an orchestrator over provider.
func NewOrchestrator(provider Provider, resolver HostResolver, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{Provider: provider, Resolver: resolver, Logger: logger, Now: time.Now}
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// UpsertAppRecords points each host at serverIP with an A record.
//
// # Description
//
// Successful records, created or unchanged, are written to st.DNSRecords.
// A failure for one record is returned as a *RecordError alongside the
// others and does not stop the batch. A provider-level failure (for
// example, an unknown zone) is returned as the error.
//
// # Outputs
//
//   - []UpsertResult: One entry per host.
//   - []error: Per-record failures.
//   - error: Provider-level failure.
func (o *Orchestrator) UpsertAppRecords(ctx context.Context, st *state.DeployState, domain, serverIP string, ttl int, hosts []AppHost) ([]UpsertResult, []error, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	records := make([]Record, 0, len(hosts))
	appOf := make(map[string]string, len(hosts))
	for _, h := range hosts {
		r := Record{Name: h.Hostname, Type: "A", TTL: ttl, Value: serverIP}
		records = append(records, r)
		appOf[r.Key()] = h.App
	}

	results, err := o.Provider.UpsertRecords(ctx, domain, records)
	if err != nil {
		return nil, nil, fmt.Errorf("dns provider %s: upserting records in %s: %w", o.Provider.Name(), domain, err)
	}

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, &RecordError{Op: "upsert", Domain: domain, Record: res.Record, Err: res.Err})
			o.Logger.Warn("DNS record upsert failed", "record", res.Record.Name, "error", res.Err)
			continue
		}
		entry := state.DNSRecordEntry{
			App:       appOf[res.Record.Key()],
			Domain:    domain,
			Name:      res.Record.Name,
			Type:      res.Record.Type,
			Value:     res.Record.Value,
			TTL:       res.Record.TTL,
			CreatedAt: o.now().UTC(),
		}
		if prev, ok := st.DNSRecords[state.DNSRecordKey(entry.Name, entry.Type)]; ok && res.Unchanged {
			entry.CreatedAt = prev.CreatedAt
		}
		st.SetDNSRecord(entry)
		o.Logger.Info("DNS record reconciled", "record", res.Record.Name, "created", res.Created, "unchanged", res.Unchanged)
	}
	return results, errs, nil
}

// DeleteSummary reports a DeleteRecords run.
type DeleteSummary struct {
	Deleted  int
	NotFound int
	Errors   []error
}

// DeleteRecords deletes every record in st's ledger, one provider call per
// domain. Deleted and not-found records are removed from st; failed ones
// stay for a retry.
func (o *Orchestrator) DeleteRecords(ctx context.Context, st *state.DeployState) DeleteSummary {
	var sum DeleteSummary

	byDomain := make(map[string][]string)
	for _, key := range st.DNSRecordKeys() {
		entry := st.DNSRecords[key]
		byDomain[entry.Domain] = append(byDomain[entry.Domain], key)
	}
	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	for _, domain := range domains {
		keys := byDomain[domain]
		records := make([]Record, 0, len(keys))
		keyOf := make(map[string]string, len(keys))
		for _, key := range keys {
			e := st.DNSRecords[key]
			r := Record{Name: e.Name, Type: e.Type, TTL: e.TTL, Value: e.Value}
			records = append(records, r)
			keyOf[r.Key()] = key
		}

		results, err := o.Provider.DeleteRecords(ctx, domain, records)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Errorf("dns provider %s: deleting records in %s: %w", o.Provider.Name(), domain, err))
			continue
		}
		for _, res := range results {
			key, ok := keyOf[res.Record.Key()]
			if !ok {
				continue
			}
			switch {
			case res.Err != nil:
				sum.Errors = append(sum.Errors, &RecordError{Op: "delete", Domain: domain, Record: res.Record, Err: res.Err})
			case res.NotFound:
				sum.NotFound++
				st.RemoveDNSRecord(key)
			case res.Deleted:
				sum.Deleted++
				st.RemoveDNSRecord(key)
			}
		}
	}
	return sum
}

// VerifyResult lists hostnames that did and did not resolve to the server.
type VerifyResult struct {
	Verified   []string
	Unverified []string
}

// Verify resolves every A record in st and marks those pointing at
// serverIP as verified. Lookup failures are unverified, not errors.
func (o *Orchestrator) Verify(ctx context.Context, st *state.DeployState, serverIP string) VerifyResult {
	var res VerifyResult
	if o.Resolver == nil {
		return res
	}
	for _, key := range st.DNSRecordKeys() {
		entry := st.DNSRecords[key]
		if entry.Type != "A" {
			continue
		}
		addrs, err := o.Resolver.LookupHost(ctx, entry.Name)
		if err == nil && contains(addrs, serverIP) {
			st.MarkDNSVerified(entry.Name, serverIP, o.now().UTC())
			res.Verified = append(res.Verified, entry.Name)
			continue
		}
		o.Logger.Warn("hostname does not resolve to the server yet", "hostname", entry.Name, "expected", serverIP, "got", addrs)
		res.Unverified = append(res.Unverified, entry.Name)
	}
	return res
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
