// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Lock errors.
var (
	ErrLockAcquireFailed = errors.New("failed to acquire state lock")
	ErrLockHeld          = errors.New("another deploy is running for this stage")
)

// Lock is an advisory per-stage lock held for the duration of a run.
//
// # Description
//
// Uses flock(2) on {dir}/{stage}.lock. The holder's pid is written into the
// file so an operator can see who holds it.
//
// # Thread Safety
//
// Lock is NOT safe for concurrent use. Each process should own one instance.
type Lock struct {
	path string
	file *os.File
}

// NewLock returns an unacquired lock for stage in dir.
func NewLock(dir, stage string) (*Lock, error) {
	if err := ValidateStage(stage); err != nil {
		return nil, err
	}
	return &Lock{path: filepath.Join(dir, stage+".lock")}, nil
}

// Acquire takes the lock without blocking.
//
// # Outputs
//
//   - error: ErrLockHeld if another process holds the lock.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("%w: creating lock directory: %v", ErrLockAcquireFailed, err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("%w: opening lock file: %v", ErrLockAcquireFailed, err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrLockHeld
		}
		return fmt.Errorf("%w: flock: %v", ErrLockAcquireFailed, err)
	}

	// Holder info is best effort.
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = fmt.Fprintf(file, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))

	l.file = file
	return nil
}

// Release clears the holder info and unlocks. The file is never removed so
// every contender locks the same inode. Safe to call more than once.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	_ = l.file.Truncate(0)
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}

// HolderPID returns the pid recorded in the lock file, or 0.
func (l *Lock) HolderPID() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			pid, err := strconv.Atoi(strings.TrimSpace(v))
			if err == nil {
				return pid
			}
		}
	}
	return 0
}
