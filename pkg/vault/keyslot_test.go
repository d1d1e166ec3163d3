// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault_test

import (
	"os"
	"path/filepath"
	"testing"

	"vaultcore/pkg/mkcrypto"
	"vaultcore/pkg/vault"
)

func tempKeyslotPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "masterkey.cryptomator")
}

func TestPersistKeyslotSizeAndRoundTrip(t *testing.T) {
	path := tempKeyslotPath(t)
	codec := mkcrypto.Codec{}

	mk, err := codec.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := mk.Bytes()

	if err := vault.PersistKeyslot(path, mk, []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("persist: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != vault.KeyslotContainerSize {
		t.Fatalf("expected size %d, got %d", vault.KeyslotContainerSize, info.Size())
	}
	if !vault.IsMultiKeyslot(path) {
		t.Fatalf("expected IsMultiKeyslot true")
	}

	loaded, err := vault.LoadKeyslot(path, []byte("hunter2"), codec)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := loaded.Bytes()
	if string(got) != string(want) {
		t.Errorf("loaded key does not match original")
	}
}

func TestLoadKeyslotWrongPassword(t *testing.T) {
	path := tempKeyslotPath(t)
	codec := mkcrypto.Codec{}

	mk, err := codec.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := vault.PersistKeyslot(path, mk, []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("persist: %v", err)
	}

	_, err = vault.LoadKeyslot(path, []byte("incorrect"), codec)
	if err != vault.ErrWrongPassphrase {
		t.Errorf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestHiddenIdentityRoundTrip(t *testing.T) {
	path := tempKeyslotPath(t)
	codec := mkcrypto.Codec{}

	mk1, _ := codec.Generate()
	want1 := mk1.Bytes()
	if err := vault.PersistKeyslot(path, mk1, []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("persist: %v", err)
	}

	mk2, _ := codec.Generate()
	want2 := mk2.Bytes()
	if err := vault.AddKeyslot(path, mk2, []byte("deniable"), []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("add_keyslot: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != vault.KeyslotContainerSize {
		t.Errorf("expected size unchanged at %d, got %d", vault.KeyslotContainerSize, info.Size())
	}

	loaded1, err := vault.LoadKeyslot(path, []byte("hunter2"), codec)
	if err != nil {
		t.Fatalf("load primary: %v", err)
	}
	if string(loaded1.Bytes()) != string(want1) {
		t.Errorf("primary key mismatch")
	}

	loaded2, err := vault.LoadKeyslot(path, []byte("deniable"), codec)
	if err != nil {
		t.Fatalf("load secondary: %v", err)
	}
	if string(loaded2.Bytes()) != string(want2) {
		t.Errorf("secondary key mismatch")
	}

	if _, err := vault.LoadKeyslot(path, []byte("neither"), codec); err != vault.ErrWrongPassphrase {
		t.Errorf("expected ErrWrongPassphrase for unrelated password, got %v", err)
	}
}

func TestAddKeyslotDuplicatePasswordRefused(t *testing.T) {
	path := tempKeyslotPath(t)
	codec := mkcrypto.Codec{}

	mk1, _ := codec.Generate()
	if err := vault.PersistKeyslot(path, mk1, []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("persist: %v", err)
	}
	mk2, _ := codec.Generate()
	if err := vault.AddKeyslot(path, mk2, []byte("deniable"), []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("add_keyslot: %v", err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	mk3, _ := codec.Generate()
	err = vault.AddKeyslot(path, mk3, []byte("hunter2"), []byte("hunter2"), 12, codec)
	if err != vault.ErrDuplicatePassword {
		t.Fatalf("expected ErrDuplicatePassword, got %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("file mutated despite duplicate-password refusal")
	}
}

func TestRemoveThenReAddKeyslot(t *testing.T) {
	path := tempKeyslotPath(t)
	codec := mkcrypto.Codec{}

	mk1, _ := codec.Generate()
	if err := vault.PersistKeyslot(path, mk1, []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("persist: %v", err)
	}
	mk2, _ := codec.Generate()
	if err := vault.AddKeyslot(path, mk2, []byte("deniable"), []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("add_keyslot: %v", err)
	}

	removed, err := vault.RemoveKeyslot(path, []byte("deniable"))
	if err != nil {
		t.Fatalf("remove_keyslot: %v", err)
	}
	if !removed {
		t.Fatalf("expected removed=true")
	}

	if _, err := vault.LoadKeyslot(path, []byte("deniable"), codec); err != vault.ErrWrongPassphrase {
		t.Errorf("expected removed password to fail, got %v", err)
	}
	if _, err := vault.LoadKeyslot(path, []byte("hunter2"), codec); err != nil {
		t.Errorf("expected primary password to still succeed: %v", err)
	}

	mk4, _ := codec.Generate()
	want4 := mk4.Bytes()
	if err := vault.AddKeyslot(path, mk4, []byte("other"), []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	loaded4, err := vault.LoadKeyslot(path, []byte("other"), codec)
	if err != nil {
		t.Fatalf("load re-added: %v", err)
	}
	if string(loaded4.Bytes()) != string(want4) {
		t.Errorf("re-added key mismatch")
	}
}

func TestRemoveKeyslotNoMatch(t *testing.T) {
	path := tempKeyslotPath(t)
	codec := mkcrypto.Codec{}

	mk1, _ := codec.Generate()
	if err := vault.PersistKeyslot(path, mk1, []byte("hunter2"), 12, codec); err != nil {
		t.Fatalf("persist: %v", err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	removed, err := vault.RemoveKeyslot(path, []byte("nope"))
	if err != nil {
		t.Fatalf("remove_keyslot: %v", err)
	}
	if removed {
		t.Fatalf("expected removed=false for non-matching password")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("file mutated despite no match")
	}
}

func TestAddKeyslotAllSlotsOccupied(t *testing.T) {
	path := tempKeyslotPath(t)
	codec := mkcrypto.Codec{}

	passwords := []string{"p0", "p1", "p2", "p3"}
	mk0, _ := codec.Generate()
	if err := vault.PersistKeyslot(path, mk0, []byte(passwords[0]), 12, codec); err != nil {
		t.Fatalf("persist: %v", err)
	}
	for i := 1; i < 4; i++ {
		mk, _ := codec.Generate()
		if err := vault.AddKeyslot(path, mk, []byte(passwords[i]), []byte(passwords[0]), 12, codec); err != nil {
			t.Fatalf("add_keyslot %d: %v", i, err)
		}
	}

	mk5, _ := codec.Generate()
	err := vault.AddKeyslot(path, mk5, []byte("p4"), []byte(passwords[0]), 12, codec)
	if err != vault.ErrAllSlotsOccupied {
		t.Fatalf("expected ErrAllSlotsOccupied, got %v", err)
	}
}

func TestIsMultiKeyslotFalseForMissingOrWrongSizeFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope")
	if vault.IsMultiKeyslot(missing) {
		t.Errorf("expected false for missing file")
	}

	wrongSize := filepath.Join(dir, "small")
	if err := os.WriteFile(wrongSize, []byte("not a container"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if vault.IsMultiKeyslot(wrongSize) {
		t.Errorf("expected false for undersized file")
	}
}
