// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
)

// IsMultiKeyslotConfig reports whether path exists and is exactly
// ConfigContainerSize bytes.
func IsMultiKeyslotConfig(path string) bool {
	size, ok := fileSize(path)
	return ok && size == ConfigContainerSize
}

// renderConfigSlot builds one occupied ConfigSlotSize-byte slot:
// length_u32_le || token || random padding.
func renderConfigSlot(token []byte) ([]byte, error) {
	if len(token) < ConfigMinTokenLength || len(token) > ConfigMaxTokenLength {
		return nil, fmt.Errorf("token length %d out of range [%d, %d]", len(token), ConfigMinTokenLength, ConfigMaxTokenLength)
	}
	slot := make([]byte, ConfigSlotSize)
	binary.LittleEndian.PutUint32(slot[0:ConfigLengthFieldSize], uint32(len(token)))
	copy(slot[ConfigLengthFieldSize:], token)
	padding := slot[ConfigLengthFieldSize+len(token):]
	if _, err := rand.Read(padding); err != nil {
		return nil, err
	}
	return slot, nil
}

// readConfigSlotToken applies the length sanity rule to a raw slot and, if
// it passes, returns the candidate token bytes. A slot that fails the
// sanity rule is treated as empty and is not an error: this is what lets an
// empty slot's random first four bytes be silently rejected with
// overwhelming probability (spec.md §3).
func readConfigSlotToken(slot []byte) ([]byte, bool) {
	if len(slot) != ConfigSlotSize {
		return nil, false
	}
	length := binary.LittleEndian.Uint32(slot[0:ConfigLengthFieldSize])
	if length < ConfigMinTokenLength || length > uint32(ConfigMaxTokenLength) {
		return nil, false
	}
	end := ConfigLengthFieldSize + int(length)
	if end > len(slot) {
		return nil, false
	}
	token := make([]byte, length)
	copy(token, slot[ConfigLengthFieldSize:end])
	return token, true
}

// LoadConfig resolves a VerifiedConfig from the configuration container at
// path under rawMasterkey. When path is not in multi-keyslot form, it
// delegates to codec's legacy single-token decode+verify path.
func LoadConfig(path string, rawMasterkey []byte, codec ConfigCodec) (VerifiedConfig, error) {
	if !IsMultiKeyslotConfig(path) {
		if size, ok := fileSize(path); ok && size > MaxTokenFileSize {
			return nil, &ConfigError{Op: "load", Err: fmt.Errorf("token file too large: %d bytes", size)}
		}
		data, err := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
		if err != nil {
			return nil, wrapIo("read", err)
		}
		unverified, err := codec.Decode(data)
		if err != nil {
			return nil, &ConfigError{Op: "load", Err: err}
		}
		verified, err := unverified.Verify(rawMasterkey)
		if err != nil {
			return nil, ErrNoMatchingConfig
		}
		return verified, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
	if err != nil {
		return nil, wrapIo("read", err)
	}

	for i := 0; i < ConfigSlotCount; i++ {
		slot := data[i*ConfigSlotSize : (i+1)*ConfigSlotSize]
		token, ok := readConfigSlotToken(slot)
		if !ok {
			continue
		}
		unverified, err := codec.Decode(token)
		if err != nil {
			continue
		}
		verified, err := unverified.Verify(rawMasterkey)
		if err != nil {
			continue
		}
		return verified, nil
	}

	return nil, ErrNoMatchingConfig
}

// PersistConfig creates a fresh ConfigContainerSize-byte container at path
// with slot 0 holding token and slots 1-3 filled with CSPRNG bytes.
func PersistConfig(path string, token []byte) error {
	lock, err := AcquireFileLock(path)
	if err != nil {
		return wrapIo("persist", err)
	}
	defer lock.Release()

	slot0, err := renderConfigSlot(token)
	if err != nil {
		return &ConfigError{Op: "persist", Err: err}
	}

	data := make([]byte, ConfigContainerSize)
	copy(data[0:ConfigSlotSize], slot0)
	for i := 1; i < ConfigSlotCount; i++ {
		if _, err := rand.Read(data[i*ConfigSlotSize : (i+1)*ConfigSlotSize]); err != nil {
			return &ConfigError{Op: "persist", Err: err}
		}
	}

	if err := atomicWriteFile(path, data, 0600); err != nil {
		return wrapIo("persist", err)
	}
	return nil
}

// AddConfigSlot adds newToken to the first null slot of the configuration
// container at path. When path is legacy, the existing token is read and
// promoted into slot 0 of a freshly-synthesized 4-slot representation
// first. During that conversion slots 1-3 are filled with fresh CSPRNG
// bytes, so a file that has just been converted from legacy form is
// indistinguishable from one created with PersistConfig. In a container
// that is already in multi-keyslot form, only the target slot is rewritten;
// the other slots are written back unchanged.
func AddConfigSlot(path string, newToken []byte) error {
	lock, err := AcquireFileLock(path)
	if err != nil {
		return wrapIo("add_config_slot", err)
	}
	defer lock.Release()

	var data []byte

	if !IsMultiKeyslotConfig(path) {
		legacyToken, err := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
		if err != nil {
			return wrapIo("read", err)
		}
		slot0, err := renderConfigSlot(legacyToken)
		if err != nil {
			return &ConfigError{Op: "add_config_slot", Err: err}
		}
		data = make([]byte, ConfigContainerSize)
		copy(data[0:ConfigSlotSize], slot0)
		for i := 1; i < ConfigSlotCount; i++ {
			if _, err := rand.Read(data[i*ConfigSlotSize : (i+1)*ConfigSlotSize]); err != nil {
				return &ConfigError{Op: "add_config_slot", Err: err}
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
	for i := 0; i < ConfigSlotCount; i++ {
		slot := data[i*ConfigSlotSize : (i+1)*ConfigSlotSize]
		if _, ok := readConfigSlotToken(slot); !ok {
			target = i
			break
		}
	}
	if target == -1 {
		return ErrNoAvailableSlot
	}

	newSlot, err := renderConfigSlot(newToken)
	if err != nil {
		return &ConfigError{Op: "add_config_slot", Err: err}
	}
	copy(data[target*ConfigSlotSize:(target+1)*ConfigSlotSize], newSlot)

	if err := atomicWriteFile(path, data, 0600); err != nil {
		return wrapIo("add_config_slot", err)
	}
	return nil
}

// RemoveConfigSlot finds the unique slot verifying under rawMasterkey and
// erases it. If no real slot or at least two real slots would remain
// afterward, the multi-keyslot form is preserved; if exactly one would remain,
// the container is downgraded back to a plain legacy token file, since a
// one-real-slot multi-keyslot file offers no deniability advantage over a
// legacy file of the same apparent size class (spec.md §4.3). Returns
// false, mutating nothing, for a legacy file (best-effort only) or when no
// slot verifies.
func RemoveConfigSlot(path string, rawMasterkey []byte, codec ConfigCodec) (bool, error) {
	if !IsMultiKeyslotConfig(path) {
		return false, nil
	}

	lock, err := AcquireFileLock(path)
	if err != nil {
		return false, wrapIo("remove_config_slot", err)
	}
	defer lock.Release()

	data, err := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
	if err != nil {
		return false, wrapIo("read", err)
	}

	type slotInfo struct {
		index int
		token []byte
	}
	var occupied []slotInfo
	matchIndex := -1

	for i := 0; i < ConfigSlotCount; i++ {
		slot := data[i*ConfigSlotSize : (i+1)*ConfigSlotSize]
		token, ok := readConfigSlotToken(slot)
		if !ok {
			continue
		}
		occupied = append(occupied, slotInfo{index: i, token: token})
		if matchIndex != -1 {
			continue
		}
		unverified, err := codec.Decode(token)
		if err != nil {
			continue
		}
		if _, err := unverified.Verify(rawMasterkey); err == nil {
			matchIndex = i
		}
	}

	if matchIndex == -1 {
		return false, nil
	}

	remaining := len(occupied) - 1

	if remaining != 1 {
		slot := data[matchIndex*ConfigSlotSize : (matchIndex+1)*ConfigSlotSize]
		if _, err := rand.Read(slot); err != nil {
			return false, &ConfigError{Op: "remove_config_slot", Err: err}
		}
		if err := atomicWriteFile(path, data, 0600); err != nil {
			return false, wrapIo("remove_config_slot", err)
		}
		return true, nil
	}

	// Exactly one real slot will remain: downgrade to legacy form,
	// preserving that slot's token as the new file's entire contents.
	var survivor []byte
	for _, s := range occupied {
		if s.index != matchIndex {
			survivor = s.token
		}
	}
	if err := atomicWriteFile(path, survivor, 0600); err != nil {
		return false, wrapIo("remove_config_slot", err)
	}
	return true, nil
}

// LoadFirstSlotUnverified returns the decoded token from the lowest-index
// slot that survives the length sanity check, without any signature
// verification. It exists solely for vault-state probes that cannot yet
// supply a masterkey (spec.md §4.3); it must never be used to authorize an
// operation.
func LoadFirstSlotUnverified(path string, codec ConfigCodec) (UnverifiedConfig, error) {
	if !IsMultiKeyslotConfig(path) {
		data, err := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
		if err != nil {
			return nil, wrapIo("read", err)
		}
		return codec.Decode(data)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- vault-directory path controlled by caller
	if err != nil {
		return nil, wrapIo("read", err)
	}

	for i := 0; i < ConfigSlotCount; i++ {
		slot := data[i*ConfigSlotSize : (i+1)*ConfigSlotSize]
		token, ok := readConfigSlotToken(slot)
		if !ok {
			continue
		}
		return codec.Decode(token)
	}

	return nil, ErrNoMatchingConfig
}
