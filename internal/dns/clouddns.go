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
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	clouddns "google.golang.org/api/dns/v1"
	"google.golang.org/api/option"
)

// ErrZoneNotFound is returned when no managed zone serves a domain.
var ErrZoneNotFound = errors.New("no managed zone for domain")

// CloudDNS is a Provider backed by Google Cloud DNS.
//
// # Description
//
// The managed zone of a domain is looked up by DNS name on first use and
// cached. Each record is written with its own change so that one failing
// record does not take the others with it.
type CloudDNS struct {
	Project string
	svc     *clouddns.Service

	mu    sync.Mutex
	zones map[string]string
}

// NewCloudDNS builds a client for project. credentialsFile may be empty.
func NewCloudDNS(ctx context.Context, project, credentialsFile string) (*CloudDNS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := clouddns.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud DNS client: %w", err)
	}
	return &CloudDNS{Project: project, svc: svc, zones: make(map[string]string)}, nil
}

// Name returns "clouddns".
func (c *CloudDNS) Name() string { return "clouddns" }

func fqdn(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".") + "."
}

func (c *CloudDNS) managedZone(ctx context.Context, domain string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if z, ok := c.zones[domain]; ok {
		return z, nil
	}
	resp, err := c.svc.ManagedZones.List(c.Project).DnsName(fqdn(domain)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("listing managed zones: %w", err)
	}
	if len(resp.ManagedZones) == 0 {
		return "", fmt.Errorf("%w: %s in project %s", ErrZoneNotFound, domain, c.Project)
	}
	c.zones[domain] = resp.ManagedZones[0].Name
	return resp.ManagedZones[0].Name, nil
}

func toRecord(rr *clouddns.ResourceRecordSet) Record {
	value := ""
	if len(rr.Rrdatas) > 0 {
		value = rr.Rrdatas[0]
	}
	return Record{Name: strings.TrimSuffix(rr.Name, "."), Type: rr.Type, TTL: int(rr.Ttl), Value: value}
}

func toRRSet(r Record) *clouddns.ResourceRecordSet {
	return &clouddns.ResourceRecordSet{
		Name:    fqdn(r.Name),
		Type:    strings.ToUpper(r.Type),
		Ttl:     int64(r.TTL),
		Rrdatas: []string{r.Value},
	}
}

// GetRecords lists every record set in the domain's zone.
func (c *CloudDNS) GetRecords(ctx context.Context, domain string) ([]Record, error) {
	zone, err := c.managedZone(ctx, domain)
	if err != nil {
		return nil, err
	}
	var out []Record
	err = c.svc.ResourceRecordSets.List(c.Project, zone).Pages(ctx, func(page *clouddns.ResourceRecordSetsListResponse) error {
		for _, rr := range page.Rrsets {
			out = append(out, toRecord(rr))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing records of %s: %w", zone, err)
	}
	return out, nil
}

func (c *CloudDNS) existing(ctx context.Context, zone string, r Record) (*clouddns.ResourceRecordSet, error) {
	resp, err := c.svc.ResourceRecordSets.List(c.Project, zone).
		Name(fqdn(r.Name)).Type(strings.ToUpper(r.Type)).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Rrsets) == 0 {
		return nil, nil
	}
	return resp.Rrsets[0], nil
}

// UpsertRecords replaces each record set whose value or TTL differs.
func (c *CloudDNS) UpsertRecords(ctx context.Context, domain string, records []Record) ([]UpsertResult, error) {
	zone, err := c.managedZone(ctx, domain)
	if err != nil {
		return nil, err
	}
	results := make([]UpsertResult, 0, len(records))
	for _, r := range records {
		cur, err := c.existing(ctx, zone, r)
		if err != nil {
			results = append(results, UpsertResult{Record: r, Err: err})
			continue
		}
		if cur != nil && toRecord(cur) == (Record{Name: strings.ToLower(r.Name), Type: strings.ToUpper(r.Type), TTL: r.TTL, Value: r.Value}) {
			results = append(results, UpsertResult{Record: r, Unchanged: true})
			continue
		}
		change := &clouddns.Change{Additions: []*clouddns.ResourceRecordSet{toRRSet(r)}}
		if cur != nil {
			change.Deletions = []*clouddns.ResourceRecordSet{cur}
		}
		if _, err := c.svc.Changes.Create(c.Project, zone, change).Context(ctx).Do(); err != nil {
			results = append(results, UpsertResult{Record: r, Err: err})
			continue
		}
		results = append(results, UpsertResult{Record: r, Created: cur == nil})
	}
	return results, nil
}

// DeleteRecords deletes each record set; absent sets are NotFound.
func (c *CloudDNS) DeleteRecords(ctx context.Context, domain string, records []Record) ([]DeleteResult, error) {
	zone, err := c.managedZone(ctx, domain)
	if err != nil {
		return nil, err
	}
	results := make([]DeleteResult, 0, len(records))
	for _, r := range records {
		cur, err := c.existing(ctx, zone, r)
		if err != nil {
			results = append(results, DeleteResult{Record: r, Err: err})
			continue
		}
		if cur == nil {
			results = append(results, DeleteResult{Record: r, NotFound: true})
			continue
		}
		change := &clouddns.Change{Deletions: []*clouddns.ResourceRecordSet{cur}}
		if _, err := c.svc.Changes.Create(c.Project, zone, change).Context(ctx).Do(); err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
				results = append(results, DeleteResult{Record: r, NotFound: true})
				continue
			}
			results = append(results, DeleteResult{Record: r, Err: err})
			continue
		}
		results = append(results, DeleteResult{Record: r, Deleted: true})
	}
	return results, nil
}

var _ Provider = (*CloudDNS)(nil)
