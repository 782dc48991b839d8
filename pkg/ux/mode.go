// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode controls how rich terminal output is.
type Mode string

const (
	// ModeRich enables colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain keeps icons but drops colors and borders.
	ModePlain Mode = "plain"

	// ModeMachine prints prefixed plain lines suitable for scripts and CI logs.
	ModeMachine Mode = "machine"
)

// ParseMode converts a flag or environment value to a Mode. Unknown values
// select ModePlain.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "full", "color":
		return ModeRich
	case "machine", "quiet", "ci":
		return ModeMachine
	default:
		return ModePlain
	}
}

// DetectMode picks the output mode for f.
//
// LAUNCHPAD_OUTPUT wins when set. Otherwise a terminal gets ModeRich unless
// NO_COLOR is set, and anything else (a pipe, a CI log file) gets
// ModeMachine.
func DetectMode(f *os.File) Mode {
	if v := os.Getenv("LAUNCHPAD_OUTPUT"); v != "" {
		return ParseMode(v)
	}
	if !IsTerminal(f) {
		return ModeMachine
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return ModePlain
	}
	return ModeRich
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
