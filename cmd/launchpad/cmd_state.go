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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/launchpad/internal/state"
)

func runStateShow(cmd *cobra.Command, _ []string) error {
	env, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.close()

	st, err := env.store().Load(stage)
	if err != nil {
		return err
	}
	return renderState(env.printer, st)
}

func runStatePull(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	release, err := env.lock(stage)
	if err != nil {
		return err
	}
	defer release()

	store := env.store()
	remote, err := env.remote(ctx)
	if err != nil {
		return err
	}
	defer remote.Close()

	snap, err := state.FetchBoth(ctx, store, remote, stage)
	if err != nil {
		return err
	}
	if snap.Remote == nil {
		return fmt.Errorf("%w for stage %s", state.ErrRemoteStateNotFound, stage)
	}
	changes, err := state.Diff(snap.Local, snap.Remote)
	if err != nil {
		return err
	}
	renderChanges(env.printer, changes, "local state already matches the remote copy")
	if len(changes) == 0 {
		return nil
	}
	if err := store.Save(snap.Remote); err != nil {
		return err
	}
	env.printer.Success("pulled state to " + store.Path(stage))
	return nil
}

// runStatePush uploads the local ledger. It refuses when the remote copy
// records resources the local one does not know about, since overwriting
// it would orphan them; --force pushes anyway.
func runStatePush(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	release, err := env.lock(stage)
	if err != nil {
		return err
	}
	defer release()

	remote, err := env.remote(ctx)
	if err != nil {
		return err
	}
	defer remote.Close()

	snap, err := state.FetchBoth(ctx, env.store(), remote, stage)
	if err != nil {
		return err
	}
	if snap.Remote != nil && !forcePush {
		changes, err := state.Diff(snap.Local, snap.Remote)
		if err != nil {
			return err
		}
		var remoteOnly []state.Change
		for _, c := range changes {
			if c.Kind == state.ChangeAdded {
				remoteOnly = append(remoteOnly, c)
			}
		}
		if len(remoteOnly) > 0 {
			renderChanges(env.printer, remoteOnly, "")
			return reported(ExitFailure, errors.New("the remote state has entries the local state lacks; run state pull first or push with --force"))
		}
	}
	if err := remote.Push(ctx, snap.Local); err != nil {
		return err
	}
	env.printer.Success("pushed state of " + stage)
	return nil
}

func runStateDiff(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	remote, err := env.remote(ctx)
	if err != nil {
		return err
	}
	defer remote.Close()

	snap, err := state.FetchBoth(ctx, env.store(), remote, stage)
	if err != nil {
		return err
	}
	if snap.Remote == nil {
		env.printer.Warning("no remote state for " + stage + "; every local entry is shown as removed")
	}
	changes, err := state.Diff(snap.Local, snap.Remote)
	if err != nil {
		return err
	}
	renderChanges(env.printer, changes, "local and remote state are identical")
	return nil
}
