// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// UnlockOptions configures Unlock.
type UnlockOptions struct {
	Password    []byte
	MkCodec     MasterkeyCodec
	CfgCodec    ConfigCodec
	FSProvider  FilesystemProvider
	MountProps  map[string]string
}

// UnlockHandle is returned by a successful Unlock; Lock releases it.
type UnlockHandle struct {
	fs         FileSystem
	vaultDir   string
	dotfile    string
	usedDotfile bool
}

// Lock unmounts the filesystem and removes the transient unlock dotfile,
// if one was created (spec.md §4.5 step 5: "The dotfile is also deleted on
// lock.").
func (h *UnlockHandle) Lock() error {
	var err error
	if h.fs != nil {
		err = h.fs.Lock()
	}
	if h.usedDotfile {
		_ = os.Remove(h.dotfile)
	}
	return err
}

// Unlock resolves password against the vault's keyslot container, picks
// the matching configuration slot by signature verification, stages it for
// the filesystem provider, and mounts it (spec.md §4.5). Identity is never
// exposed to the caller: the handle carries no indication of which slot
// won.
func Unlock(ctx context.Context, vaultDir string, opts UnlockOptions) (handle *UnlockHandle, err error) {
	mkPath := filepath.Join(vaultDir, MasterkeyFilename)

	mk, lerr := LoadKeyslot(mkPath, opts.Password, opts.MkCodec)
	if lerr != nil {
		return nil, ErrWrongPassphrase
	}

	raw := mk.Bytes()
	rawCopy := make([]byte, len(raw))
	copy(rawCopy, raw)
	mk.Destroy()

	dotfilePath := filepath.Join(vaultDir, UnlockDotfileFilename)
	usedDotfile := false

	defer func() {
		clearBytes(rawCopy)
		if err != nil && usedDotfile {
			_ = os.Remove(dotfilePath)
		}
	}()

	cfgPath := filepath.Join(vaultDir, ConfigFilename)
	configFilename := ConfigFilename

	if IsMultiKeyslotConfig(cfgPath) {
		verified, cerr := LoadConfig(cfgPath, rawCopy, opts.CfgCodec)
		if cerr != nil {
			return nil, ErrNoMatchingConfig
		}
		if werr := os.WriteFile(dotfilePath, verified.Raw(), 0600); werr != nil {
			return nil, wrapIo("unlock", werr)
		}
		usedDotfile = true
		configFilename = UnlockDotfileFilename
	}

	props := map[string]string{}
	for k, v := range opts.MountProps {
		props[k] = v
	}
	props["config_filename"] = configFilename

	keyLoader := func() ([]byte, error) {
		cp := make([]byte, len(rawCopy))
		copy(cp, rawCopy)
		return cp, nil
	}

	fs, merr := opts.FSProvider.Open(ctx, vaultDir, keyLoader, props)
	if merr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMountFailed, merr)
	}

	return &UnlockHandle{fs: fs, vaultDir: vaultDir, dotfile: dotfilePath, usedDotfile: usedDotfile}, nil
}
