// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package mkcrypto

import (
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"vaultcore/pkg/vault"
)

// configClaims is the JSON payload carried inside the compact JWS token
// that token_bytes denotes (spec.md §3: "a compact JWS-like string").
type configClaims struct {
	Version int    `json:"version"`
	Data    string `json:"data,omitempty"`
}

// ConfigCodec implements vault.ConfigCodec with HS256-signed JWS compact
// tokens keyed by the raw masterkey bytes.
type ConfigCodec struct{}

// Decode parses tokenBytes as a JWS compact serialization without checking
// its signature.
func (ConfigCodec) Decode(tokenBytes []byte) (vault.UnverifiedConfig, error) {
	msg, err := jws.Parse(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("mkcrypto: config: parse: %w", err)
	}

	var claims configClaims
	if err := json.Unmarshal(msg.Payload(), &claims); err != nil {
		return nil, fmt.Errorf("mkcrypto: config: malformed claims: %w", err)
	}

	return &unverifiedConfig{raw: tokenBytes, claims: claims}, nil
}

// SignToken builds a new signed configuration token for rawMasterkey,
// carrying version and an opaque data payload.
func SignToken(rawMasterkey []byte, version int, data string) ([]byte, error) {
	payload, err := json.Marshal(configClaims{Version: version, Data: data})
	if err != nil {
		return nil, fmt.Errorf("mkcrypto: sign token: %w", err)
	}
	return jws.Sign(payload, jws.WithKey(jwa.HS256, rawMasterkey))
}

type unverifiedConfig struct {
	raw    []byte
	claims configClaims
}

func (u *unverifiedConfig) AllegedVersion() int { return u.claims.Version }
func (u *unverifiedConfig) Raw() []byte         { return u.raw }

// Verify re-parses and authenticates the token under rawMasterkey,
// re-deriving claims from the verified payload rather than trusting the
// unverified decode (spec.md §9: "safe only because the verification is a
// MAC over the whole token").
func (u *unverifiedConfig) Verify(rawMasterkey []byte) (vault.VerifiedConfig, error) {
	payload, err := jws.Verify(u.raw, jws.WithKey(jwa.HS256, rawMasterkey))
	if err != nil {
		return nil, fmt.Errorf("mkcrypto: config: signature verification failed: %w", err)
	}

	var claims configClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("mkcrypto: config: malformed verified claims: %w", err)
	}
	if claims.Version != u.claims.Version {
		return nil, fmt.Errorf("mkcrypto: config: alleged version does not match verified payload")
	}

	return &verifiedConfig{raw: u.raw}, nil
}

type verifiedConfig struct{ raw []byte }

func (v *verifiedConfig) Raw() []byte { return v.raw }
