// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"errors"
	"fmt"
)

// Sentinel errors for the abstract error kinds named in spec.md §7. Callers
// compare against these with errors.Is; wrapped forms below preserve an
// underlying cause without widening the matchable error surface.
var (
	// ErrWrongPassphrase means the supplied password did not authenticate
	// any slot of the keyslot container (or the legacy single-keyslot
	// file).
	ErrWrongPassphrase = errors.New("vault: wrong passphrase")

	// ErrNoMatchingConfig means no configuration slot verified under the
	// loaded masterkey.
	ErrNoMatchingConfig = errors.New("vault: no matching configuration slot")

	// ErrDuplicatePassword means add_keyslot found the new password
	// already wraps an existing slot.
	ErrDuplicatePassword = errors.New("vault: password already in use by another identity")

	// ErrAllSlotsOccupied means add_keyslot found no target slot: every
	// slot opens under the primary password, or is slot 0 during legacy
	// conversion. A slot held by a password the caller did not supply is
	// not protected and may be chosen as the target.
	ErrAllSlotsOccupied = errors.New("vault: all keyslots occupied")

	// ErrNoAvailableSlot means the configuration container has no null
	// slot left for add_config_slot.
	ErrNoAvailableSlot = errors.New("vault: no available configuration slot")

	// ErrAuthRequired means a secondary-identity operation was attempted
	// without first verifying the primary password.
	ErrAuthRequired = errors.New("vault: primary password verification required")

	// ErrCorruptContainer means a container has the expected file size
	// but an authenticated length field decoded out of range. Under
	// honest writes this cannot happen; it is always fatal to the slot
	// that produced it.
	ErrCorruptContainer = errors.New("vault: corrupt container slot")

	// ErrMountFailed and ErrReadOnly surface failures reported by the
	// external filesystem provider.
	ErrMountFailed = errors.New("vault: mount failed")
	ErrReadOnly    = errors.New("vault: filesystem is read-only")

	// ErrAlreadyInitialized means init_primary was called against a vault
	// directory that already has a masterkey container.
	ErrAlreadyInitialized = errors.New("vault: vault already initialized")
)

// IoError wraps an underlying filesystem error without adding any other
// context, keeping the public error surface narrow per spec.md §7 ("crypto
// library misuse... surfaces as IoError wrapping the original cause").
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("vault: %s: %v", e.Op, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

func wrapIo(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Op: op, Err: err}
}

// KeyslotError annotates a keyslot-container failure with the operation
// that produced it.
type KeyslotError struct {
	Op  string
	Err error
}

func (e *KeyslotError) Error() string { return fmt.Sprintf("vault: keyslot %s: %v", e.Op, e.Err) }
func (e *KeyslotError) Unwrap() error { return e.Err }

// ConfigError annotates a configuration-container failure with the
// operation that produced it.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("vault: config %s: %v", e.Op, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }
