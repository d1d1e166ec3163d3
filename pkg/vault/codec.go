// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault

import "context"

// Masterkey is the long-term symmetric key material protecting a vault's
// contents. It is supplied by an external cryptographic primitive library
// (spec.md §1, §3) and is opaque to this package beyond the operations
// below; pkg/vault never constructs key bytes of its own except by asking
// a MasterkeyCodec to generate a Masterkey.
type Masterkey interface {
	// Bytes returns the raw 256-bit key. The returned slice is owned by
	// the caller, who must zero it (clearBytes) once finished with it.
	Bytes() []byte

	// Copy returns an independent Masterkey holding the same key bytes.
	Copy() Masterkey

	// Destroy overwrites the key's backing memory with zeros. Safe to
	// call more than once.
	Destroy()
}

// MasterkeyCodec serializes a Masterkey to and from the single-keyslot
// blob format embedded in masterkey_blob (spec.md §3, §6). It is supplied
// externally; pkg/vault only calls it, never implements it.
type MasterkeyCodec interface {
	// Generate returns a fresh Masterkey sourced from a CSPRNG.
	Generate() (Masterkey, error)

	// Serialize encodes mk as a single-keyslot blob protected by password
	// at the given work factor. The returned blob is the masterkey_blob
	// payload embedded in a keyslot envelope's authenticated plaintext,
	// or (when the container is in legacy single-keyslot form) the
	// entire contents of masterkey.cryptomator.
	Serialize(mk Masterkey, password []byte, workFactor int) ([]byte, error)

	// Deserialize recovers a Masterkey from a blob previously produced
	// by Serialize, authenticating it against password. It returns
	// ErrWrongPassphrase when password does not authenticate blob.
	Deserialize(blob []byte, password []byte) (Masterkey, error)
}

// VerifiedConfig is a configuration token that has already been checked
// against a masterkey's raw bytes. Its contents beyond that fact are
// opaque to pkg/vault.
type VerifiedConfig interface {
	// Raw returns the verified token's original byte representation, for
	// callers that need to hand it to the external filesystem provider.
	Raw() []byte
}

// UnverifiedConfig is a decoded-but-not-yet-verified configuration token.
type UnverifiedConfig interface {
	// Verify checks the token's signature against rawMasterkey for the
	// token's own claimed format version, returning a VerifiedConfig on
	// success.
	Verify(rawMasterkey []byte) (VerifiedConfig, error)

	// AllegedVersion returns the format version the token itself claims.
	// Per spec.md §9, trusting this value is safe only because Verify is
	// a MAC over the whole token, including the version field.
	AllegedVersion() int

	// Raw returns the token's original byte representation.
	Raw() []byte
}

// ConfigCodec decodes the signed configuration tokens stored in a
// configuration container (spec.md §3, §6). It is supplied externally.
type ConfigCodec interface {
	// Decode parses tokenBytes into an UnverifiedConfig without checking
	// its signature.
	Decode(tokenBytes []byte) (UnverifiedConfig, error)
}

// CsprngSource yields uniformly distributed bytes, the kind used to fill
// empty slots and to sample salts and IVs. The functions in this package
// read from crypto/rand directly; none of them accepts a CsprngSource, so
// the random source cannot be substituted.
type CsprngSource interface {
	Read(p []byte) (n int, err error)
}

// FilesystemProvider mounts and initializes the encrypted filesystem that
// sits behind a vault directory (spec.md §1, §6). pkg/vault never
// implements this; C4 and C5 call it as a collaborator.
type FilesystemProvider interface {
	// Initialize creates a fresh cryptographic filesystem rooted at dir,
	// protected by the key the loader returns, and emits the signed
	// configuration token describing it.
	Initialize(ctx context.Context, dir string, keyLoader func() ([]byte, error), properties map[string]string) (tokenBytes []byte, err error)

	// Open mounts the cryptographic filesystem rooted at dir using the
	// configuration named by properties["config_filename"].
	Open(ctx context.Context, dir string, keyLoader func() ([]byte, error), properties map[string]string) (FileSystem, error)
}

// FileSystem is the mounted handle returned by FilesystemProvider.Open.
type FileSystem interface {
	// Lock unmounts the filesystem and invalidates the handle.
	Lock() error
}
