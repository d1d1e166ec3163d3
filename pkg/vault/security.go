// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/subtle"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// constantTimeEqual reports whether a and b are equal using a fixed-time
// comparison, avoiding early-exit timing signals on secret comparisons.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// FileLock is an advisory, process-exclusive lock on a container path,
// used to serialize the single-writer mutating operations described in
// spec.md §5 ("the implementation may use an OS advisory lock on the
// container file"). It is best-effort: correctness of the on-disk format
// does not depend on it, since every mutation commits via atomic rename.
type FileLock struct {
	f *os.File
}

// AcquireFileLock opens (creating if necessary) a sibling lock file next
// to path and takes an exclusive, non-blocking flock on it.
func AcquireFileLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return &FileLock{f: f}, nil
}

// Release unlocks and closes the underlying lock file.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
