// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Package mkcrypto is a concrete, testable reference implementation of the
// external MasterkeyCodec and ConfigCodec interfaces that vaultcore/pkg/vault
// treats as opaque collaborators (spec.md §1, §6). A production build links
// against its own cryptographic primitive library and signed-token format;
// this package exists so the round-trip laws in spec.md §8 are exercisable
// within this repository.
//
// The single-keyslot blob format is grounded on gocryptfs's configfile
// package (scrypt-wrapped key material, JSON sidecar, atomic write); see
// _examples/other_examples for the reference this package generalizes from.
package mkcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/scrypt"
	"vaultcore/pkg/vault"
)

const (
	masterkeySize   = 32
	scryptSaltSize  = 32
	scryptNonceSize = 12
	scryptKeySize   = 32

	defaultScryptN = 1 << 16
	scryptR        = 8
	scryptP        = 1
)

// Masterkey is the in-memory vault.Masterkey implementation: a single
// owned 32-byte slice.
type Masterkey struct {
	key []byte
}

// NewMasterkey wraps raw key bytes (taking ownership of the slice) as a
// Masterkey.
func NewMasterkey(key []byte) *Masterkey { return &Masterkey{key: key} }

func (m *Masterkey) Bytes() []byte {
	out := make([]byte, len(m.key))
	copy(out, m.key)
	return out
}

func (m *Masterkey) Copy() vault.Masterkey {
	return &Masterkey{key: m.Bytes()}
}

func (m *Masterkey) Destroy() {
	zero(m.key)
}

// blobFile is the JSON single-keyslot serialization wrapped by Codec,
// structurally mirroring gocryptfs's ConfFile: a scrypt-derived wrapping
// key protects the masterkey bytes under AES-256-GCM.
type blobFile struct {
	ScryptSalt []byte `json:"scrypt_salt"`
	ScryptN    int    `json:"scrypt_n"`
	ScryptR    int    `json:"scrypt_r"`
	ScryptP    int    `json:"scrypt_p"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Codec implements vault.MasterkeyCodec using scrypt key-wrapping and
// AES-256-GCM, with workFactor interpreted as log2(N) for the scrypt cost
// parameter (spec.md §4.2: "the underlying masterkey blob may use a
// separately-configurable scrypt cost parameter").
type Codec struct{}

// Generate returns a fresh Masterkey sourced from crypto/rand.
func (Codec) Generate() (vault.Masterkey, error) {
	key := make([]byte, masterkeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("mkcrypto: generate: %w", err)
	}
	return &Masterkey{key: key}, nil
}

// Serialize wraps mk's bytes under password using scrypt(workFactor) to
// derive an AES-256-GCM key, and returns the JSON-encoded blobFile.
func (Codec) Serialize(mk vault.Masterkey, password []byte, workFactor int) ([]byte, error) {
	n := scryptCost(workFactor)

	salt := make([]byte, scryptSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("mkcrypto: serialize: %w", err)
	}

	wrapKey, err := scrypt.Key(password, salt, n, scryptR, scryptP, scryptKeySize)
	if err != nil {
		return nil, fmt.Errorf("mkcrypto: scrypt: %w", err)
	}
	defer zero(wrapKey)

	gcm, err := newGCM(wrapKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, scryptNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("mkcrypto: serialize: %w", err)
	}

	keyBytes := mk.Bytes()
	defer zero(keyBytes)

	ciphertext := gcm.Seal(nil, nonce, keyBytes, nil)

	out := blobFile{
		ScryptSalt: salt,
		ScryptN:    n,
		ScryptR:    scryptR,
		ScryptP:    scryptP,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
	return json.Marshal(out)
}

// Deserialize recovers a Masterkey from a blob produced by Serialize,
// returning vault.ErrWrongPassphrase when password does not authenticate
// it.
func (Codec) Deserialize(blob []byte, password []byte) (vault.Masterkey, error) {
	var in blobFile
	if err := json.Unmarshal(blob, &in); err != nil {
		return nil, fmt.Errorf("mkcrypto: deserialize: malformed blob: %w", err)
	}

	wrapKey, err := scrypt.Key(password, in.ScryptSalt, in.ScryptN, in.ScryptR, in.ScryptP, scryptKeySize)
	if err != nil {
		return nil, fmt.Errorf("mkcrypto: scrypt: %w", err)
	}
	defer zero(wrapKey)

	gcm, err := newGCM(wrapKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, in.Nonce, in.Ciphertext, nil)
	if err != nil {
		return nil, vault.ErrWrongPassphrase
	}

	return &Masterkey{key: plaintext}, nil
}

func scryptCost(workFactor int) int {
	if workFactor <= 0 {
		return defaultScryptN
	}
	if workFactor > 24 {
		workFactor = 24
	}
	return 1 << uint(workFactor)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("mkcrypto: aes: %w", err)
	}
	return cipher.NewGCM(block)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
