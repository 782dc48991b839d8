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
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/launchpad/internal/state"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	addrs, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func fixedNow() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

// TestUpsertAppRecords_RecordsLedger tests creation and the unchanged path.
func TestUpsertAppRecords_RecordsLedger(t *testing.T) {
	ctx := context.Background()
	provider := NewMemory("example.com")
	o := NewOrchestrator(provider, nil, nil)
	o.Now = fixedNow
	st := state.New("dokploy", "production")

	hosts := []AppHost{{App: "api", Hostname: "api.example.com"}, {App: "web", Hostname: "web.example.com"}}
	results, errs, err := o.UpsertAppRecords(ctx, st, "example.com", "203.0.113.10", 0, hosts)
	if err != nil || len(errs) != 0 {
		t.Fatalf("UpsertAppRecords: %v %v", err, errs)
	}
	for _, r := range results {
		if !r.Created {
			t.Errorf("%s should be created", r.Record.Name)
		}
	}
	entry, ok := st.DNSRecords["api.example.com:A"]
	if !ok || entry.App != "api" || entry.TTL != DefaultTTL || entry.Value != "203.0.113.10" {
		t.Fatalf("ledger entry = %+v (present=%v)", entry, ok)
	}

	results, _, _ = o.UpsertAppRecords(ctx, st, "example.com", "203.0.113.10", 0, hosts)
	if !results[0].Unchanged {
		t.Error("second upsert should be unchanged")
	}
}

// TestUpsertAppRecords_PerRecordFailure tests that one failure does not
// abort the batch.
func TestUpsertAppRecords_PerRecordFailure(t *testing.T) {
	provider := NewMemory("example.com")
	provider.Fail["web.example.com"] = errors.New("quota")
	o := NewOrchestrator(provider, nil, nil)
	st := state.New("dokploy", "production")

	_, errs, err := o.UpsertAppRecords(context.Background(), st, "example.com", "203.0.113.10", 60,
		[]AppHost{{App: "api", Hostname: "api.example.com"}, {App: "web", Hostname: "web.example.com"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %v", errs)
	}
	var rerr *RecordError
	if !errors.As(errs[0], &rerr) || rerr.Record.Name != "web.example.com" {
		t.Errorf("unexpected error %v", errs[0])
	}
	if _, ok := st.DNSRecords["api.example.com:A"]; !ok {
		t.Error("successful record should still be recorded")
	}
	if _, ok := st.DNSRecords["web.example.com:A"]; ok {
		t.Error("failed record must not be recorded")
	}
}

// TestUpsertAppRecords_UnknownZone tests provider-level failure.
func TestUpsertAppRecords_UnknownZone(t *testing.T) {
	o := NewOrchestrator(NewMemory("example.com"), nil, nil)
	_, _, err := o.UpsertAppRecords(context.Background(), state.New("dokploy", "production"),
		"other.org", "203.0.113.10", 60, []AppHost{{App: "api", Hostname: "api.other.org"}})
	if err == nil {
		t.Fatal("expected error for a domain without a zone")
	}
}

// TestDeleteRecords_GroupsByDomainAndTreatsNotFoundAsSuccess tests teardown.
func TestDeleteRecords_GroupsByDomainAndTreatsNotFoundAsSuccess(t *testing.T) {
	ctx := context.Background()
	provider := NewMemory("example.com", "example.org")
	o := NewOrchestrator(provider, nil, nil)
	st := state.New("dokploy", "production")

	_, _, _ = o.UpsertAppRecords(ctx, st, "example.com", "203.0.113.10", 60, []AppHost{{App: "api", Hostname: "api.example.com"}})
	_, _, _ = o.UpsertAppRecords(ctx, st, "example.org", "203.0.113.10", 60, []AppHost{{App: "web", Hostname: "web.example.org"}})
	// Recorded in state but already gone remotely.
	st.SetDNSRecord(state.DNSRecordEntry{Domain: "example.com", Name: "old.example.com", Type: "A", Value: "203.0.113.10"})
	// Fails remotely and must be kept.
	_, _, _ = o.UpsertAppRecords(ctx, st, "example.com", "203.0.113.10", 60, []AppHost{{App: "admin", Hostname: "admin.example.com"}})
	provider.Fail["admin.example.com"] = errors.New("denied")

	sum := o.DeleteRecords(ctx, st)

	if sum.Deleted != 2 || sum.NotFound != 1 || len(sum.Errors) != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(st.DNSRecords) != 1 {
		t.Fatalf("ledger = %v", st.DNSRecords)
	}
	if _, ok := st.DNSRecords["admin.example.com:A"]; !ok {
		t.Error("failed deletion must remain in the ledger")
	}
}

// TestVerify tests that only matching addresses are marked verified.
func TestVerify(t *testing.T) {
	ctx := context.Background()
	resolver := fakeResolver{
		"api.example.com": {"203.0.113.10"},
		"web.example.com": {"198.51.100.1"},
	}
	o := NewOrchestrator(NewMemory("example.com"), resolver, nil)
	o.Now = fixedNow
	st := state.New("dokploy", "production")
	_, _, _ = o.UpsertAppRecords(ctx, st, "example.com", "203.0.113.10", 60, []AppHost{
		{App: "api", Hostname: "api.example.com"},
		{App: "web", Hostname: "web.example.com"},
		{App: "admin", Hostname: "admin.example.com"},
	})

	res := o.Verify(ctx, st, "203.0.113.10")

	if len(res.Verified) != 1 || res.Verified[0] != "api.example.com" {
		t.Errorf("Verified = %v", res.Verified)
	}
	if len(res.Unverified) != 2 {
		t.Errorf("Unverified = %v", res.Unverified)
	}
	v, ok := st.DNSVerified["api.example.com"]
	if !ok || v.ServerIP != "203.0.113.10" || !v.VerifiedAt.Equal(fixedNow()) {
		t.Errorf("verification = %+v", v)
	}
}
