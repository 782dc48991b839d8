// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/launchpad/internal/deploy"
	"github.com/AleutianAI/launchpad/pkg/ux"
)

// envCredentials answers a request from the environment variable of the same
// name and otherwise defers to next.
type envCredentials struct {
	getenv func(string) string
	next   deploy.CredentialResolver
}

func (e envCredentials) ResolveCredential(ctx context.Context, req deploy.CredentialRequest) (string, error) {
	if v := strings.TrimSpace(e.getenv(req.Name)); v != "" {
		return v, nil
	}
	return e.next.ResolveCredential(ctx, req)
}

// promptCredentials asks for a credential with a masked terminal input.
type promptCredentials struct {
	// accessible replaces the form with plain line prompts for screen
	// readers and dumb terminals.
	accessible bool
}

func (p promptCredentials) ResolveCredential(ctx context.Context, req deploy.CredentialRequest) (string, error) {
	var value string
	input := huh.NewInput().
		Title(fmt.Sprintf("%s (stage %s)", req.Name, req.Stage)).
		Description(req.Description).
		EchoMode(huh.EchoModePassword).
		Validate(requireValue).
		Value(&value)

	form := huh.NewForm(huh.NewGroup(input)).WithAccessible(p.accessible)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", fmt.Errorf("%w: %s was not entered", deploy.ErrCredentialRequired, req.Name)
		}
		return "", fmt.Errorf("prompting for %s: %w", req.Name, err)
	}
	return strings.TrimSpace(value), nil
}

func requireValue(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("a value is required")
	}
	return nil
}

// credentialResolver reads credentials from the environment first. On a
// terminal it then prompts; anywhere else a missing credential is an error.
func credentialResolver(mode ux.Mode) deploy.CredentialResolver {
	var next deploy.CredentialResolver = deploy.NoCredentials{}
	if ux.IsTerminal(os.Stdin) && mode != ux.ModeMachine {
		next = promptCredentials{accessible: mode == ux.ModePlain}
	}
	return envCredentials{getenv: os.Getenv, next: next}
}
