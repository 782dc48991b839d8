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
	"sort"
)

// BuildOrder returns app names so that every app follows its dependencies.
//
// # Description
//
// Uses Kahn's algorithm over the dependency edges. Apps that become ready at
// the same time are emitted in name order, which keeps the output stable
// between runs. A dependency naming an app that is not in the workspace is a
// configuration error, as is any cycle; the cycle error names the members.
//
// # Inputs
//
//   - apps: The workspace apps keyed by name.
//
// # Outputs
//
//   - []string: App names in deployable order.
//   - error: *ConfigurationError wrapping ErrCyclicDependency or ErrUnknownDependency.
func BuildOrder(apps map[string]AppConfig) ([]string, error) {
	inDegree := make(map[string]int, len(apps))
	dependents := make(map[string][]string, len(apps))

	for name := range apps {
		inDegree[name] = 0
	}
	for name, app := range apps {
		for _, dep := range app.Dependencies {
			if _, ok := apps[dep]; !ok {
				return nil, &ConfigurationError{
					Kind:    ErrUnknownDependency,
					Members: []string{dep},
					Detail:  "app " + name + " depends on an app that is not in the workspace",
				}
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(apps))
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		var released []string
		for _, next := range dependents[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				released = append(released, next)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}

	if len(order) != len(apps) {
		return nil, &ConfigurationError{
			Kind:    ErrCyclicDependency,
			Members: findCycle(apps, inDegree),
		}
	}
	return order, nil
}

// findCycle walks the unresolved apps and returns one cycle, closed by
// repeating its first member.
func findCycle(apps map[string]AppConfig, inDegree map[string]int) []string {
	var remaining []string
	for name, degree := range inDegree {
		if degree > 0 {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)

	const (
		unvisited = iota
		onPath
		done
	)
	color := make(map[string]int, len(remaining))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = onPath
		path = append(path, name)
		deps := append([]string(nil), apps[name].Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			switch color[dep] {
			case onPath:
				for i, p := range path {
					if p == dep {
						cycle = append(append([]string(nil), path[i:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = done
		return false
	}

	for _, name := range remaining {
		if color[name] == unvisited && visit(name) {
			return cycle
		}
	}
	return remaining
}

// FilterOrder keeps only the requested names, preserving their relative order.
//
// # Description
//
// An empty selection returns the full order. Every requested name must be a
// workspace app; otherwise the error lists all unknown names.
func FilterOrder(order []string, names []string) ([]string, error) {
	if len(names) == 0 {
		return append([]string(nil), order...), nil
	}

	known := make(map[string]bool, len(order))
	for _, name := range order {
		known[name] = true
	}

	wanted := make(map[string]bool, len(names))
	var unknown []string
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
			continue
		}
		wanted[name] = true
	}
	if len(unknown) > 0 {
		return nil, &ConfigurationError{Kind: ErrUnknownApps, Members: unknown}
	}

	filtered := make([]string, 0, len(wanted))
	for _, name := range order {
		if wanted[name] {
			filtered = append(filtered, name)
		}
	}
	return filtered, nil
}

// SplitPhases partitions an order into backend and frontend apps while
// keeping the dependency order inside each partition.
func SplitPhases(order []string, apps map[string]AppConfig) (backends, frontends []string) {
	for _, name := range order {
		if apps[name].Type == AppTypeFrontend {
			frontends = append(frontends, name)
		} else {
			backends = append(backends, name)
		}
	}
	return backends, frontends
}
