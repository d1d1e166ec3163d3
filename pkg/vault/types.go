// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Package vault implements the plausibly-deniable multi-keyslot container
// formats and identity lifecycle protocols that sit in front of a
// client-side encrypted vault: a fixed-size keyslot container holding up to
// four AEAD-wrapped masterkeys, a fixed-size configuration container
// holding up to four signed configuration tokens bound to those masterkeys,
// and the create/add/unlock/remove/migrate protocols built on top of them.
package vault

import "time"

const (
	// KeyslotSlotCount is the number of fixed-size slots in a keyslot
	// container file.
	KeyslotSlotCount = 4

	// KeyslotSlotSize is the size in bytes of one keyslot container slot.
	KeyslotSlotSize = 4096

	// KeyslotContainerSize is the total size of a multi-keyslot container
	// file: KeyslotSlotCount * KeyslotSlotSize.
	KeyslotContainerSize = KeyslotSlotCount * KeyslotSlotSize

	// KeyslotSaltSize is the size of the random salt at the start of an
	// encrypted keyslot.
	KeyslotSaltSize = 32

	// KeyslotIVSize is the size of the random GCM nonce/IV within a slot.
	KeyslotIVSize = 12

	// KeyslotGCMTagSize is the AES-GCM authentication tag length in bytes.
	KeyslotGCMTagSize = 16

	// KeyslotCiphertextSize is the size of the AEAD ciphertext-and-tag
	// region within a slot: KeyslotSlotSize - KeyslotSaltSize - KeyslotIVSize.
	KeyslotCiphertextSize = KeyslotSlotSize - KeyslotSaltSize - KeyslotIVSize

	// KeyslotPlaintextSize is the size of the padded plaintext that the
	// AEAD authenticates: KeyslotCiphertextSize - KeyslotGCMTagSize.
	KeyslotPlaintextSize = KeyslotCiphertextSize - KeyslotGCMTagSize

	// KeyslotLengthFieldSize is the size of the u32-LE length prefix
	// embedded inside the authenticated plaintext.
	KeyslotLengthFieldSize = 4

	// KeyslotMaxBlobLength is the largest masterkey_blob that fits in the
	// padded plaintext alongside the length prefix.
	KeyslotMaxBlobLength = KeyslotPlaintextSize - KeyslotLengthFieldSize

	// KeyslotEnvelopeIterations is the fixed PBKDF2-HMAC-SHA256 iteration
	// count used to derive the AEAD key that wraps a keyslot. This is a
	// constant of the envelope itself, independent of the caller-supplied
	// work_factor that the external masterkey blob serializer applies.
	KeyslotEnvelopeIterations = 100000

	// KeyslotDerivedKeySize is the size of the AES-256 key derived for the
	// keyslot envelope.
	KeyslotDerivedKeySize = 32
)

const (
	// ConfigSlotCount is the number of fixed-size slots in a configuration
	// container file.
	ConfigSlotCount = 4

	// ConfigSlotSize is the size in bytes of one configuration container
	// slot.
	ConfigSlotSize = 8192

	// ConfigContainerSize is the total size of a multi-keyslot
	// configuration container file.
	ConfigContainerSize = ConfigSlotCount * ConfigSlotSize

	// ConfigLengthFieldSize is the size of the u32-LE length prefix at the
	// start of a configuration slot.
	ConfigLengthFieldSize = 4

	// ConfigMinTokenLength and ConfigMaxTokenLength bound the plausible
	// length of a token_bytes payload; values outside this range cause a
	// slot to be treated as empty without attempting to decode it.
	ConfigMinTokenLength = 100
	ConfigMaxTokenLength = ConfigSlotSize - ConfigLengthFieldSize
)

// MaxTokenFileSize caps the size of a legacy (single-token) config file that
// LoadConfig will read into memory, guarding against unbounded allocation
// on a corrupt or hostile file (spec.md §4.3, "Bounds and safety").
const MaxTokenFileSize = 1 << 20 // 1 MiB

// Identity is a transient, in-memory-only record describing one vault
// identity for the UI layer. The core never persists it, never derives it
// from on-disk bytes, and never enumerates existing identities; every
// function that would answer "which identities exist" returns an empty
// slice by contract (spec.md §3, §4.4 "Forbidden operations").
type Identity struct {
	// ID is a process-local correlation handle for UI list-diffing only.
	// It is generated fresh every time an Identity value is constructed,
	// never persisted, and carries no relationship to on-disk slot order.
	ID          string
	Name        string
	Description string
	IsPrimary   bool
	createdAt   time.Time
}

// CreatedAt reports when this in-memory Identity value was constructed.
func (id Identity) CreatedAt() time.Time { return id.createdAt }
