// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// clearBytes securely zeros a byte slice in place. Called on every exit
// path (success and failure) for any buffer that held key material,
// passphrase bytes, or derived AEAD keys.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// randomBytes returns n cryptographically secure random bytes.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// atomicWriteFile writes data to path via a temp file in the same
// directory followed by os.Rename, so that readers never observe a
// partially-written container. The temp file is removed on any failure
// path. On filesystems lacking atomic rename this degrades to a direct
// write (spec.md §4.2: "on filesystems lacking atomic rename, fall back to
// non-atomic replace").
func atomicWriteFile(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".vault-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		// Some filesystems (or cross-device moves) cannot rename
		// atomically; fall back to a direct, non-atomic write.
		if werr := os.WriteFile(path, data, perm); werr != nil {
			return fmt.Errorf("failed to replace file: rename: %v, write: %w", err, werr)
		}
		_ = os.Remove(tmpPath)
		err = nil
		return nil
	}
	return nil
}

// fileSize returns the size of path, or -1 and false if it does not exist
// or cannot be stat'd.
func fileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return -1, false
	}
	return info.Size(), true
}
