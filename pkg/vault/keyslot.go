// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// IsMultiKeyslot reports whether path exists and is exactly
// KeyslotContainerSize bytes. This is the only on-disk indicator of
// multi-keyslot form and is intentionally ambiguous: no byte inside the
// file is inspected, so the check cannot by itself distinguish an
// occupied container from one where every slot is random (spec.md §4.2).
func IsMultiKeyslot(path string) bool {
	size, ok := fileSize(path)
	return ok && size == KeyslotContainerSize
}

// deriveEnvelopeKey runs the fixed keyslot-envelope KDF: PBKDF2-HMAC-SHA256
// with KeyslotEnvelopeIterations iterations, producing a KeyslotDerivedKeySize
// AES key. The iteration count is a constant of the envelope format itself
// and is independent of the caller-supplied work_factor used by the
// external masterkey blob serializer.
func deriveEnvelopeKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, KeyslotEnvelopeIterations, KeyslotDerivedKeySize, sha256.New)
}

// encryptKeyslotSlot builds one encrypted 4096-byte slot for blob under
// password: a fresh salt and IV, PBKDF2-derived AES key, and an AES-256-GCM
// seal of the length-prefixed, padded plaintext. The length prefix lives
// inside the authenticated plaintext so that no unauthenticated metadata
// anywhere in the slot could reveal occupancy (spec.md §4.2).
func encryptKeyslotSlot(blob, password []byte) ([]byte, error) {
	if len(blob) > KeyslotMaxBlobLength {
		return nil, fmt.Errorf("masterkey blob too large: %d > %d", len(blob), KeyslotMaxBlobLength)
	}

	salt, err := randomBytes(KeyslotSaltSize)
	if err != nil {
		return nil, err
	}
	iv, err := randomBytes(KeyslotIVSize)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, KeyslotPlaintextSize)
	binary.LittleEndian.PutUint32(plaintext[0:KeyslotLengthFieldSize], uint32(len(blob)))
	copy(plaintext[KeyslotLengthFieldSize:], blob)
	padding := plaintext[KeyslotLengthFieldSize+len(blob):]
	if _, err := rand.Read(padding); err != nil {
		return nil, err
	}

	key := deriveEnvelopeKey(password, salt)
	defer clearBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, iv, plaintext, nil)
	clearBytes(plaintext)

	slot := make([]byte, KeyslotSlotSize)
	copy(slot[0:KeyslotSaltSize], salt)
	copy(slot[KeyslotSaltSize:KeyslotSaltSize+KeyslotIVSize], iv)
	copy(slot[KeyslotSaltSize+KeyslotIVSize:], ciphertext)
	return slot, nil
}

// decryptKeyslotSlot attempts to open a single 4096-byte slot under
// password. It returns (blob, true, nil) on success, (nil, false, nil) when
// the AEAD simply does not authenticate (the ordinary negative case - never
// logged, never distinguished from "this is an empty slot"), and a non-nil
// error for a slot of the wrong size, a cipher setup failure, or a
// structurally impossible length field inside an authenticated plaintext.
func decryptKeyslotSlot(slot, password []byte) ([]byte, bool, error) {
	if len(slot) != KeyslotSlotSize {
		return nil, false, fmt.Errorf("invalid slot size: %d", len(slot))
	}

	salt := slot[0:KeyslotSaltSize]
	iv := slot[KeyslotSaltSize : KeyslotSaltSize+KeyslotIVSize]
	ciphertext := slot[KeyslotSaltSize+KeyslotIVSize:]

	key := deriveEnvelopeKey(password, salt)
	defer clearBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, false, err
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, false, nil
	}
	defer clearBytes(plaintext)

	length := binary.LittleEndian.Uint32(plaintext[0:KeyslotLengthFieldSize])
	if length > uint32(KeyslotMaxBlobLength) {
		return nil, false, ErrCorruptContainer
	}

	blob := make([]byte, length)
	copy(blob, plaintext[KeyslotLengthFieldSize:KeyslotLengthFieldSize+int(length)])
	return blob, true, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, wrapIo("aes-init", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, wrapIo("gcm-init", err)
	}
	if gcm.Overhead() != KeyslotGCMTagSize {
		return nil, wrapIo("gcm-init", fmt.Errorf("unexpected tag size %d", gcm.Overhead()))
	}
	return gcm, nil
}

// LoadKeyslot resolves a Masterkey from the keyslot container at path under
// password. When path is not in multi-keyslot form, it delegates entirely
// to codec's single-keyslot deserialization of the raw file contents
// (spec.md §4.2 step 1).
func LoadKeyslot(path string, password []byte, codec MasterkeyCodec) (mk Masterkey, err error) {
	if !IsMultiKeyslot(path) {
		blob, rerr := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
		if rerr != nil {
			return nil, wrapIo("read", rerr)
		}
		defer clearBytes(blob)
		mk, err = codec.Deserialize(blob, password)
		if err != nil {
			return nil, ErrWrongPassphrase
		}
		return mk, nil
	}

	data, rerr := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
	if rerr != nil {
		return nil, wrapIo("read", rerr)
	}
	defer clearBytes(data)

	for i := 0; i < KeyslotSlotCount; i++ {
		slot := data[i*KeyslotSlotSize : (i+1)*KeyslotSlotSize]
		blob, ok, derr := decryptKeyslotSlot(slot, password)
		if derr != nil {
			return nil, derr
		}
		if !ok {
			continue
		}
		mk, err = codec.Deserialize(blob, password)
		clearBytes(blob)
		if err != nil {
			// The envelope opened but the embedded blob itself did not
			// authenticate under password; this cannot happen under
			// honest writes since the envelope and blob share the same
			// password, but is handled as an ordinary miss rather than
			// a panic.
			continue
		}
		return mk, nil
	}

	return nil, ErrWrongPassphrase
}

// PersistKeyslot creates a fresh KeyslotContainerSize-byte container at
// path: slot 0 wraps mk under password at workFactor, slots 1-3 are CSPRNG
// bytes indistinguishable from an encrypted slot. The write commits via
// temp-file-plus-rename.
func PersistKeyslot(path string, mk Masterkey, password []byte, workFactor int, codec MasterkeyCodec) error {
	lock, err := AcquireFileLock(path)
	if err != nil {
		return wrapIo("persist", err)
	}
	defer lock.Release()

	blob, err := codec.Serialize(mk, password, workFactor)
	if err != nil {
		return wrapIo("serialize", err)
	}
	defer clearBytes(blob)

	slot0, err := encryptKeyslotSlot(blob, password)
	if err != nil {
		return &KeyslotError{Op: "persist", Err: err}
	}

	data := make([]byte, KeyslotContainerSize)
	copy(data[0:KeyslotSlotSize], slot0)
	for i := 1; i < KeyslotSlotCount; i++ {
		if _, err := rand.Read(data[i*KeyslotSlotSize : (i+1)*KeyslotSlotSize]); err != nil {
			return &KeyslotError{Op: "persist", Err: err}
		}
	}

	if err := atomicWriteFile(path, data, 0600); err != nil {
		return wrapIo("persist", err)
	}
	return nil
}

// AddKeyslot adds a hidden identity to the keyslot container at path,
// wrapping newMasterkey under newPassword. When path is not yet in
// multi-keyslot form, the existing legacy single-keyslot bytes are read
// and re-wrapped into slot 0 under primaryPassword (not newPassword)
// before the new identity is placed in a later slot (spec.md §4.2).
func AddKeyslot(path string, newMasterkey Masterkey, newPassword, primaryPassword []byte, workFactor int, codec MasterkeyCodec) error {
	lock, err := AcquireFileLock(path)
	if err != nil {
		return wrapIo("add_keyslot", err)
	}
	defer lock.Release()

	var data []byte
	legacyConversion := !IsMultiKeyslot(path)

	if legacyConversion {
		legacyBlob, err := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
		if err != nil {
			return wrapIo("read", err)
		}
		slot0, err := encryptKeyslotSlot(legacyBlob, primaryPassword)
		clearBytes(legacyBlob)
		if err != nil {
			return &KeyslotError{Op: "add_keyslot", Err: err}
		}
		data = make([]byte, KeyslotContainerSize)
		copy(data[0:KeyslotSlotSize], slot0)
		for i := 1; i < KeyslotSlotCount; i++ {
			if _, err := rand.Read(data[i*KeyslotSlotSize : (i+1)*KeyslotSlotSize]); err != nil {
				return &KeyslotError{Op: "add_keyslot", Err: err}
			}
		}
	} else {
		var err error
		data, err = os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
		if err != nil {
			return wrapIo("read", err)
		}
	}

	target := -1
	for i := 0; i < KeyslotSlotCount; i++ {
		slot := data[i*KeyslotSlotSize : (i+1)*KeyslotSlotSize]

		if _, ok, err := decryptKeyslotSlot(slot, newPassword); err != nil {
			return err
		} else if ok {
			return ErrDuplicatePassword
		}

		occupiedByPrimary := false
		if !constantTimeEqual(primaryPassword, newPassword) {
			if _, ok, err := decryptKeyslotSlot(slot, primaryPassword); err != nil {
				return err
			} else if ok {
				occupiedByPrimary = true
			}
		}

		if target == -1 && !occupiedByPrimary && !(legacyConversion && i == 0) {
			target = i
		}
	}

	if target == -1 {
		return ErrAllSlotsOccupied
	}

	blob, err := codec.Serialize(newMasterkey, newPassword, workFactor)
	if err != nil {
		return wrapIo("serialize", err)
	}
	defer clearBytes(blob)

	newSlot, err := encryptKeyslotSlot(blob, newPassword)
	if err != nil {
		return &KeyslotError{Op: "add_keyslot", Err: err}
	}
	copy(data[target*KeyslotSlotSize:(target+1)*KeyslotSlotSize], newSlot)

	if err := atomicWriteFile(path, data, 0600); err != nil {
		return wrapIo("add_keyslot", err)
	}
	return nil
}

// RemoveKeyslot finds the unique slot that decrypts under password and
// overwrites it with fresh CSPRNG bytes, committing via atomic replace. It
// returns false and mutates nothing when no slot matches; it never refuses
// on the grounds of "last slot remaining" (spec.md §4.2).
func RemoveKeyslot(path string, password []byte) (bool, error) {
	if !IsMultiKeyslot(path) {
		return false, nil
	}

	lock, err := AcquireFileLock(path)
	if err != nil {
		return false, wrapIo("remove_keyslot", err)
	}
	defer lock.Release()

	data, err := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
	if err != nil {
		return false, wrapIo("read", err)
	}

	found := false
	for i := 0; i < KeyslotSlotCount; i++ {
		slot := data[i*KeyslotSlotSize : (i+1)*KeyslotSlotSize]
		_, ok, derr := decryptKeyslotSlot(slot, password)
		if derr != nil {
			return false, derr
		}
		if ok {
			if _, err := rand.Read(slot); err != nil {
				return false, &KeyslotError{Op: "remove_keyslot", Err: err}
			}
			found = true
			break
		}
	}

	if !found {
		return false, nil
	}

	if err := atomicWriteFile(path, data, 0600); err != nil {
		return false, wrapIo("remove_keyslot", err)
	}
	return true, nil
}
