// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vaultcore/pkg/mkcrypto"
	"vaultcore/pkg/vault"
)

type fakeFileSystem struct{ locked bool }

func (f *fakeFileSystem) Lock() error {
	f.locked = true
	return nil
}

// fakeFSProvider stands in for the external encrypted filesystem provider:
// Initialize creates a single "sub" directory under dir and emits a signed
// token over the supplied key; Open simply authenticates keyLoader.
type fakeFSProvider struct{}

func (fakeFSProvider) Initialize(ctx context.Context, dir string, keyLoader func() ([]byte, error), properties map[string]string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0700); err != nil {
		return nil, err
	}
	key, err := keyLoader()
	if err != nil {
		return nil, err
	}
	return mkcrypto.SignToken(key, 1, "secondary")
}

func (fakeFSProvider) Open(ctx context.Context, dir string, keyLoader func() ([]byte, error), properties map[string]string) (vault.FileSystem, error) {
	if _, err := keyLoader(); err != nil {
		return nil, err
	}
	return &fakeFileSystem{}, nil
}

func TestInitPrimaryCreatesContainers(t *testing.T) {
	vaultDir := t.TempDir()
	codec := mkcrypto.Codec{}

	mk, _ := codec.Generate()
	token, err := mkcrypto.SignToken(mk.Bytes(), 1, "primary")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	opts := vault.InitPrimaryOptions{
		Password:     []byte("hunter2"),
		WorkFactor:   12,
		InitialToken: token,
		Name:         "primary",
	}
	identity, err := vault.InitPrimary(vaultDir, mk, opts, codec)
	if err != nil {
		t.Fatalf("init_primary: %v", err)
	}
	if identity.ID == "" {
		t.Errorf("expected a non-empty identity ID")
	}
	if !identity.IsPrimary {
		t.Errorf("expected primary identity to report IsPrimary")
	}

	mkPath := filepath.Join(vaultDir, vault.MasterkeyFilename)
	if !vault.IsMultiKeyslot(mkPath) {
		t.Errorf("expected multi-keyslot masterkey container")
	}

	if _, err := vault.InitPrimary(vaultDir, mk, opts, codec); err != vault.ErrAlreadyInitialized {
		t.Errorf("expected ErrAlreadyInitialized on re-init, got %v", err)
	}
}

func TestRemoveIdentityNoMatchReturnsFalse(t *testing.T) {
	vaultDir := t.TempDir()
	codec := mkcrypto.Codec{}
	cfgCodec := mkcrypto.ConfigCodec{}

	mk, _ := codec.Generate()
	token, _ := mkcrypto.SignToken(mk.Bytes(), 1, "primary")
	opts := vault.InitPrimaryOptions{Password: []byte("hunter2"), WorkFactor: 12, InitialToken: token}
	if _, err := vault.InitPrimary(vaultDir, mk, opts, codec); err != nil {
		t.Fatalf("init_primary: %v", err)
	}

	removed, err := vault.RemoveIdentity(vaultDir, []byte("nope"), codec, cfgCodec)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed {
		t.Errorf("expected removed=false for non-matching password")
	}
}

func TestAddSecondaryAndRemove(t *testing.T) {
	vaultDir := t.TempDir()
	codec := mkcrypto.Codec{}
	cfgCodec := mkcrypto.ConfigCodec{}

	mk, _ := codec.Generate()
	token, _ := mkcrypto.SignToken(mk.Bytes(), 1, "primary")
	initOpts := vault.InitPrimaryOptions{Password: []byte("hunter2"), WorkFactor: 12, InitialToken: token}
	if _, err := vault.InitPrimary(vaultDir, mk, initOpts, codec); err != nil {
		t.Fatalf("init_primary: %v", err)
	}

	addOpts := vault.AddSecondaryOptions{
		PrimaryPassword:   []byte("hunter2"),
		SecondaryPassword: []byte("deniable"),
		WorkFactor:        12,
		FSProvider:        fakeFSProvider{},
		TempDirParent:     t.TempDir(),
		Name:              "secondary",
	}
	secondaryIdentity, err := vault.AddSecondary(context.Background(), vaultDir, codec, addOpts)
	if err != nil {
		t.Fatalf("add_secondary: %v", err)
	}
	if secondaryIdentity.ID == "" {
		t.Errorf("expected a non-empty secondary identity ID")
	}
	if secondaryIdentity.IsPrimary {
		t.Errorf("expected secondary identity to not report IsPrimary")
	}

	mkPath := filepath.Join(vaultDir, vault.MasterkeyFilename)
	if _, err := vault.LoadKeyslot(mkPath, []byte("deniable"), codec); err != nil {
		t.Fatalf("expected secondary password to load: %v", err)
	}

	dataRoot := filepath.Join(vaultDir, "d", "sub")
	if info, err := os.Stat(dataRoot); err != nil || !info.IsDir() {
		t.Errorf("expected mirrored directory tree at %s", dataRoot)
	}

	removed, err := vault.RemoveIdentity(vaultDir, []byte("deniable"), codec, cfgCodec)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatalf("expected removed=true")
	}
	if _, err := vault.LoadKeyslot(mkPath, []byte("deniable"), codec); err != vault.ErrWrongPassphrase {
		t.Errorf("expected removed secondary password to fail, got %v", err)
	}
	if _, err := vault.LoadKeyslot(mkPath, []byte("hunter2"), codec); err != nil {
		t.Errorf("expected primary password to still load: %v", err)
	}
}

func TestAddSecondaryRequiresPrimaryAuth(t *testing.T) {
	vaultDir := t.TempDir()
	codec := mkcrypto.Codec{}

	mk, _ := codec.Generate()
	token, _ := mkcrypto.SignToken(mk.Bytes(), 1, "primary")
	initOpts := vault.InitPrimaryOptions{Password: []byte("hunter2"), WorkFactor: 12, InitialToken: token}
	if _, err := vault.InitPrimary(vaultDir, mk, initOpts, codec); err != nil {
		t.Fatalf("init_primary: %v", err)
	}

	addOpts := vault.AddSecondaryOptions{
		PrimaryPassword:   []byte("wrong"),
		SecondaryPassword: []byte("deniable"),
		WorkFactor:        12,
		FSProvider:        fakeFSProvider{},
		TempDirParent:     t.TempDir(),
	}
	if _, err := vault.AddSecondary(context.Background(), vaultDir, codec, addOpts); err != vault.ErrAuthRequired {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func TestListIdentitiesAlwaysEmpty(t *testing.T) {
	if ids := vault.ListIdentities(t.TempDir()); len(ids) != 0 {
		t.Errorf("expected empty identity list, got %d entries", len(ids))
	}
}
