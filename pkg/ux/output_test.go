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
	"bytes"
	"strings"
	"testing"
)

func newTestPrinter(mode Mode) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewPrinter(&out, &errOut, mode), &out, &errOut
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"rich", ModeRich},
		{"COLOR", ModeRich},
		{"machine", ModeMachine},
		{" ci ", ModeMachine},
		{"plain", ModePlain},
		{"", ModePlain},
		{"bogus", ModePlain},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.in); got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectMode_EnvOverride(t *testing.T) {
	t.Setenv("LAUNCHPAD_OUTPUT", "rich")
	if got := DetectMode(nil); got != ModeRich {
		t.Errorf("DetectMode = %q, want %q", got, ModeRich)
	}
}

func TestDetectMode_NonTerminalIsMachine(t *testing.T) {
	t.Setenv("LAUNCHPAD_OUTPUT", "")
	if got := DetectMode(nil); got != ModeMachine {
		t.Errorf("DetectMode(nil) = %q, want %q", got, ModeMachine)
	}
}

func TestPrinter_MachineMode(t *testing.T) {
	p, out, errOut := newTestPrinter(ModeMachine)

	p.Title("Deploying")
	p.Success("api deployed")
	p.Warning("dns pending")
	p.Error("web failed")
	p.Muted("hidden")
	p.Summary("succeeded", 1, "failed", 1)

	if got, want := out.String(), "OK: api deployed\nSUMMARY: succeeded=1 failed=1\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	if got, want := errOut.String(), "WARN: dns pending\nERROR: web failed\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}

func TestPrinter_PlainModeHasNoEscapes(t *testing.T) {
	p, out, _ := newTestPrinter(ModePlain)
	p.Success("api deployed")
	p.Box("Next steps", "run launchpad state push")

	if strings.Contains(out.String(), "\x1b[") {
		t.Errorf("plain output contains ANSI escapes: %q", out.String())
	}
	if !strings.Contains(out.String(), "✓ api deployed") {
		t.Errorf("missing success line: %q", out.String())
	}
	if !strings.Contains(out.String(), "Next steps\nrun launchpad state push") {
		t.Errorf("missing box content: %q", out.String())
	}
}

func TestPrinter_MachineBoxFlattensContent(t *testing.T) {
	p, _, errOut := newTestPrinter(ModeMachine)
	p.ErrorBox("Unresolved secrets", "api: STRIPE_KEY\nworker: SMTP_URL")

	want := "ERROR Unresolved secrets: api: STRIPE_KEY; worker: SMTP_URL\n"
	if errOut.String() != want {
		t.Errorf("stderr = %q, want %q", errOut.String(), want)
	}
}

func TestPrinter_Table(t *testing.T) {
	rows := [][]string{{"api", "backend", "deployed"}, {"web", "frontend", "failed"}}

	p, out, _ := newTestPrinter(ModeMachine)
	p.Table([]string{"APP", "TYPE", "STATUS"}, rows)
	if got, want := out.String(), "api\tbackend\tdeployed\nweb\tfrontend\tfailed\n"; got != want {
		t.Errorf("machine table = %q, want %q", got, want)
	}

	p, out, _ = newTestPrinter(ModePlain)
	p.Table([]string{"APP", "TYPE", "STATUS"}, rows)
	for _, s := range []string{"APP", "api", "frontend", "failed"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("plain table missing %q:\n%s", s, out.String())
		}
	}
}

func TestNewPrinter_ErrFallsBackToOut(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, nil, ModeMachine)
	p.Warning("careful")
	if out.String() != "WARN: careful\n" {
		t.Errorf("got %q", out.String())
	}
}

func TestIcon_Render(t *testing.T) {
	for _, i := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow} {
		if !strings.Contains(i.Render(), string(i)) {
			t.Errorf("Render(%q) lost the glyph", i)
		}
	}
}
