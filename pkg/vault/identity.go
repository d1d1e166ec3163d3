// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Well-known filenames inside a vault directory (spec.md §6).
const (
	MasterkeyFilename     = "masterkey.cryptomator"
	ConfigFilename        = "vault.cryptomator"
	UnlockDotfileFilename = ".vault.cryptomator.unlock"
	LegacyBackupFilename  = "vault.bak"
	MigratedBackupName    = "vault.bak.migrated"
)

// NewIdentity constructs a transient, in-memory Identity record for UI
// display. The ID is a fresh UUID generated purely for list-diffing in the
// caller's process; it is never written to disk and carries no
// relationship whatsoever to keyslot or config-slot index (spec.md §3).
func NewIdentity(name, description string, isPrimary bool) Identity {
	return Identity{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		IsPrimary:   isPrimary,
		createdAt:   time.Now(),
	}
}

// ListIdentities always returns an empty slice: the core never enumerates
// or counts identities (spec.md §3, §4.4 "Forbidden operations"). It exists
// so upper layers have a single, explicitly-documented call site for "what
// identities exist" that can never regress into leaking slot occupancy.
func ListIdentities(vaultDir string) []Identity {
	return []Identity{}
}

// InitPrimaryOptions configures InitPrimary.
type InitPrimaryOptions struct {
	Password     []byte
	WorkFactor   int
	InitialToken []byte
	Name         string
	Description  string
}

// InitPrimary creates the primary identity of a brand-new vault directory:
// it requires that no masterkey container already exists, persists the
// keyslot container via PersistKeyslot, and persists the initial signed
// configuration token via PersistConfig (single-slot form is acceptable at
// this stage, per spec.md §4.4). It returns the in-memory Identity record
// for the primary, constructed fresh by NewIdentity, for the caller's UI
// layer to track.
func InitPrimary(vaultDir string, mk Masterkey, opts InitPrimaryOptions, codec MasterkeyCodec) (Identity, error) {
	mkPath := filepath.Join(vaultDir, MasterkeyFilename)
	if _, ok := fileSize(mkPath); ok {
		return Identity{}, ErrAlreadyInitialized
	}

	if err := os.MkdirAll(vaultDir, 0700); err != nil {
		return Identity{}, wrapIo("init_primary", err)
	}

	if err := PersistKeyslot(mkPath, mk, opts.Password, opts.WorkFactor, codec); err != nil {
		return Identity{}, err
	}

	cfgPath := filepath.Join(vaultDir, ConfigFilename)
	if err := PersistConfig(cfgPath, opts.InitialToken); err != nil {
		return Identity{}, err
	}

	return NewIdentity(opts.Name, opts.Description, true), nil
}

// AddSecondaryOptions configures AddSecondary.
type AddSecondaryOptions struct {
	PrimaryPassword   []byte
	SecondaryPassword []byte
	WorkFactor        int
	FSProvider        FilesystemProvider
	TempDirParent     string
	Name              string
	Description       string
}

// AddSecondary adds a hidden secondary identity to an existing vault
// (spec.md §4.4). It verifies the primary password first, generates a
// fresh masterkey, initializes a fresh cryptographic filesystem for the
// secondary identity in a private temp workspace, then atomically folds
// the new keyslot and configuration slot into the vault's containers and
// mirrors the secondary filesystem's top-level directory tree (directories
// only) into the live vault, regardless of outcome cleaning up the
// temporary workspace and the secondary masterkey copy. On success it
// returns the in-memory Identity record for the new secondary, constructed
// fresh by NewIdentity, for the caller's UI layer to track.
func AddSecondary(ctx context.Context, vaultDir string, mkCodec MasterkeyCodec, opts AddSecondaryOptions) (Identity, error) {
	mkPath := filepath.Join(vaultDir, MasterkeyFilename)

	primary, verr := LoadKeyslot(mkPath, opts.PrimaryPassword, mkCodec)
	if verr != nil {
		return Identity{}, ErrAuthRequired
	}
	primary.Destroy()

	secondary, gerr := mkCodec.Generate()
	if gerr != nil {
		return Identity{}, wrapIo("generate", gerr)
	}
	defer secondary.Destroy()

	tempDir, terr := os.MkdirTemp(opts.TempDirParent, "vault-secondary-*")
	if terr != nil {
		return Identity{}, wrapIo("add_secondary", terr)
	}
	defer func() { _ = removeAllReverse(tempDir) }()

	keyLoader := func() ([]byte, error) { return secondary.Bytes(), nil }
	tokenBytes, ierr := opts.FSProvider.Initialize(ctx, tempDir, keyLoader, map[string]string{})
	if ierr != nil {
		return Identity{}, fmt.Errorf("add_secondary: initialize secondary filesystem: %w", ierr)
	}

	if err := AddKeyslot(mkPath, secondary, opts.SecondaryPassword, opts.PrimaryPassword, opts.WorkFactor, mkCodec); err != nil {
		return Identity{}, err
	}

	cfgPath := filepath.Join(vaultDir, ConfigFilename)
	if err := AddConfigSlot(cfgPath, tokenBytes); err != nil {
		return Identity{}, err
	}

	dataRoot := filepath.Join(vaultDir, "d")
	if err := mirrorDirectoryTree(tempDir, dataRoot); err != nil {
		return Identity{}, fmt.Errorf("add_secondary: mirror directory tree: %w", err)
	}

	return NewIdentity(opts.Name, opts.Description, false), nil
}

// RemoveIdentity removes the identity authenticated by password: it loads
// the masterkey from the keyslot container, best-effort removes the
// matching configuration slot, removes the matching keyslot, and zeroizes
// the raw key bytes it touched along the way. It returns false without
// mutating anything when password does not authenticate any slot
// (spec.md §4.4).
func RemoveIdentity(vaultDir string, password []byte, mkCodec MasterkeyCodec, cfgCodec ConfigCodec) (bool, error) {
	mkPath := filepath.Join(vaultDir, MasterkeyFilename)

	mk, err := LoadKeyslot(mkPath, password, mkCodec)
	if err != nil {
		return false, nil
	}
	defer mk.Destroy()

	raw := mk.Bytes()
	defer clearBytes(raw)

	cfgPath := filepath.Join(vaultDir, ConfigFilename)
	_, _ = RemoveConfigSlot(cfgPath, raw, cfgCodec) // best-effort; legacy configs return false

	removed, rerr := RemoveKeyslot(mkPath, password)
	if rerr != nil {
		return false, rerr
	}
	return removed, nil
}

// mirrorDirectoryTree walks src and recreates every directory (no files)
// under dst, used to mirror a secondary identity's empty top-level
// structure into the live vault's ciphertext data root.
func mirrorDirectoryTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(src, path)
		if rerr != nil {
			return rerr
		}
		return os.MkdirAll(filepath.Join(dst, rel), 0700)
	})
}

// removeAllReverse deletes dir and its contents, walking children before
// parents so that permission-restricted subdirectories never block
// cleanup of siblings already removed.
func removeAllReverse(dir string) error {
	var paths []string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	for i := len(paths) - 1; i >= 0; i-- {
		_ = os.Remove(paths[i])
	}
	return os.RemoveAll(dir)
}
