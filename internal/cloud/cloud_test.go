// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cloud

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/AleutianAI/launchpad/internal/reconcile"
)

// TestClassify tests the tri-state mapping of API errors.
func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		want    reconcile.Existence
		wantErr bool
	}{
		{"nil", nil, reconcile.Exists, false},
		{"bucket missing", storage.ErrBucketNotExist, reconcile.Missing, false},
		{"404", &googleapi.Error{Code: http.StatusNotFound}, reconcile.Missing, false},
		{"403", &googleapi.Error{Code: http.StatusForbidden}, reconcile.ExistsNoAccess, false},
		{"wrapped 403", fmt.Errorf("get: %w", &googleapi.Error{Code: http.StatusForbidden}), reconcile.ExistsNoAccess, false},
		{"500", &googleapi.Error{Code: http.StatusInternalServerError}, reconcile.Missing, true},
		{"other", errors.New("dial tcp"), reconcile.Missing, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := classify(tc.err)
			if got != tc.want {
				t.Errorf("classify = %v, want %v", got, tc.want)
			}
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

// TestNotFoundOr tests delete error translation.
func TestNotFoundOr(t *testing.T) {
	if err := notFoundOr(nil, "x"); err != nil {
		t.Errorf("nil should stay nil, got %v", err)
	}
	err := notFoundOr(&googleapi.Error{Code: http.StatusNotFound}, "deleting bucket %s", "b")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("404 should map to ErrNotFound, got %v", err)
	}
	err = notFoundOr(errors.New("boom"), "deleting bucket %s", "b")
	if errors.Is(err, ErrNotFound) {
		t.Error("other errors must not map to ErrNotFound")
	}
}

// TestGCP_IdentityFor tests the service-account email format.
func TestGCP_IdentityFor(t *testing.T) {
	g := &GCP{ProjectID: "acme-prod"}
	id := g.IdentityFor("lp-backup-shop")
	if id.Email != "lp-backup-shop@acme-prod.iam.gserviceaccount.com" {
		t.Errorf("Email = %s", id.Email)
	}
	if g.BucketRef("b") != "gs://b" {
		t.Errorf("BucketRef = %s", g.BucketRef("b"))
	}
}
