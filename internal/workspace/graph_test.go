// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func apps(deps map[string][]string) map[string]AppConfig {
	out := make(map[string]AppConfig, len(deps))
	for name, d := range deps {
		out[name] = AppConfig{Type: AppTypeBackend, Path: "apps/" + name, Port: 3000, Dependencies: d}
	}
	return out
}

// TestBuildOrder_DependenciesFirst tests that every app follows its dependencies.
func TestBuildOrder_DependenciesFirst(t *testing.T) {
	in := apps(map[string][]string{
		"web":    {"api", "auth"},
		"api":    {"auth"},
		"auth":   nil,
		"worker": {"api"},
	})

	order, err := BuildOrder(in)
	if err != nil {
		t.Fatalf("BuildOrder failed: %v", err)
	}

	pos := make(map[string]int)
	for i, name := range order {
		pos[name] = i
	}
	for name, app := range in {
		for _, dep := range app.Dependencies {
			if pos[dep] >= pos[name] {
				t.Errorf("%s (pos %d) should come after %s (pos %d)", name, pos[name], dep, pos[dep])
			}
		}
	}
	if len(order) != len(in) {
		t.Errorf("order has %d apps, want %d", len(order), len(in))
	}
}

// TestBuildOrder_Deterministic tests that independent apps are emitted by name.
func TestBuildOrder_Deterministic(t *testing.T) {
	in := apps(map[string][]string{"c": nil, "a": nil, "b": nil})

	for i := 0; i < 10; i++ {
		order, err := BuildOrder(in)
		if err != nil {
			t.Fatalf("BuildOrder failed: %v", err)
		}
		if want := []string{"a", "b", "c"}; !reflect.DeepEqual(order, want) {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// TestBuildOrder_Cycle tests that a cycle is reported with its members.
func TestBuildOrder_Cycle(t *testing.T) {
	in := apps(map[string][]string{
		"a":    {"b"},
		"b":    {"c"},
		"c":    {"a"},
		"free": nil,
	})

	_, err := BuildOrder(in)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("err = %v, want ErrCyclicDependency", err)
	}

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err is not a *ConfigurationError: %T", err)
	}
	members := strings.Join(cfgErr.Members, ",")
	for _, name := range []string{"a", "b", "c"} {
		if !strings.Contains(members, name) {
			t.Errorf("cycle members %v missing %s", cfgErr.Members, name)
		}
	}
	if strings.Contains(members, "free") {
		t.Errorf("cycle members %v should not include free", cfgErr.Members)
	}
}

// TestBuildOrder_SelfDependency tests that an app depending on itself is a cycle.
func TestBuildOrder_SelfDependency(t *testing.T) {
	_, err := BuildOrder(apps(map[string][]string{"a": {"a"}}))
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("err = %v, want ErrCyclicDependency", err)
	}
}

// TestBuildOrder_UnknownDependency tests that dangling edges are rejected.
func TestBuildOrder_UnknownDependency(t *testing.T) {
	_, err := BuildOrder(apps(map[string][]string{"a": {"ghost"}}))
	if !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("err = %v, want ErrUnknownDependency", err)
	}
}

// TestFilterOrder_PreservesOrder tests subset filtering.
func TestFilterOrder_PreservesOrder(t *testing.T) {
	order := []string{"auth", "api", "worker", "web"}

	got, err := FilterOrder(order, []string{"web", "auth"})
	if err != nil {
		t.Fatalf("FilterOrder failed: %v", err)
	}
	if want := []string{"auth", "web"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestFilterOrder_Empty tests that an empty selection keeps everything.
func TestFilterOrder_Empty(t *testing.T) {
	order := []string{"a", "b"}
	got, err := FilterOrder(order, nil)
	if err != nil {
		t.Fatalf("FilterOrder failed: %v", err)
	}
	if !reflect.DeepEqual(got, order) {
		t.Errorf("got %v, want %v", got, order)
	}
}

// TestFilterOrder_Unknown tests the unknown-app message.
func TestFilterOrder_Unknown(t *testing.T) {
	_, err := FilterOrder([]string{"a"}, []string{"a", "x", "y"})
	if !errors.Is(err, ErrUnknownApps) {
		t.Fatalf("err = %v, want ErrUnknownApps", err)
	}
	if got, want := err.Error(), "Unknown apps: x, y"; got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

// TestSplitPhases tests backend/frontend partitioning.
func TestSplitPhases(t *testing.T) {
	in := map[string]AppConfig{
		"api":   {Type: AppTypeBackend},
		"web":   {Type: AppTypeFrontend},
		"auth":  {Type: AppTypeBackend},
		"admin": {Type: AppTypeFrontend},
	}
	backends, frontends := SplitPhases([]string{"auth", "api", "admin", "web"}, in)
	if want := []string{"auth", "api"}; !reflect.DeepEqual(backends, want) {
		t.Errorf("backends = %v, want %v", backends, want)
	}
	if want := []string{"admin", "web"}; !reflect.DeepEqual(frontends, want) {
		t.Errorf("frontends = %v, want %v", frontends, want)
	}
}
