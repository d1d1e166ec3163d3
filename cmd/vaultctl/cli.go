// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"vaultcore/pkg/kdf"
	"vaultcore/pkg/mkcrypto"
	"vaultcore/pkg/vault"
)

// CLI is a thin, dependency-injected command dispatcher exercising
// pkg/vault end to end, grounded on cmd/luks2/cli.go's CLI struct.
type CLI struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Terminal Terminal
}

// NewCLI returns a CLI wired to real stdout/stderr and terminal input.
func NewCLI() *CLI {
	return &CLI{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Terminal: &DefaultTerminal{},
	}
}

// Run dispatches args[1] (the subcommand; args[0] is the program name) to
// the matching cmdXxx method.
func (c *CLI) Run(args []string) int {
	if len(args) < 2 {
		c.usage()
		return 2
	}

	var err error
	switch args[1] {
	case "init-primary":
		err = c.cmdInitPrimary(args[2:])
	case "unlock":
		err = c.cmdUnlock(args[2:])
	case "remove":
		err = c.cmdRemove(args[2:])
	case "migrate":
		err = c.cmdMigrate(args[2:])
	case "calibrate":
		err = c.cmdCalibrate(args[2:])
	default:
		c.usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(c.Stderr, "vaultctl: %v\n", err)
		return 1
	}
	return 0
}

func (c *CLI) usage() {
	fmt.Fprintf(c.Stderr, "usage: vaultctl <init-primary|unlock|remove|migrate|calibrate> [args]\n")
}

func (c *CLI) promptPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(c.Stdout, prompt)
	pw, err := c.Terminal.ReadPassword(0)
	fmt.Fprintln(c.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return pw, nil
}

func (c *CLI) cmdInitPrimary(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: init-primary <vault-dir>")
	}
	vaultDir := args[0]

	password, err := c.promptPassphrase("Primary password: ")
	if err != nil {
		return err
	}
	defer clearSlice(password)

	codec := mkcrypto.Codec{}
	mk, err := codec.Generate()
	if err != nil {
		return err
	}
	defer mk.Destroy()

	rawMk := mk.Bytes()
	defer clearSlice(rawMk)

	token, err := mkcrypto.SignToken(rawMk, 1, "primary")
	if err != nil {
		return err
	}

	opts := vault.InitPrimaryOptions{
		Password:     password,
		WorkFactor:   15,
		InitialToken: token,
		Name:         "primary",
	}
	identity, err := vault.InitPrimary(vaultDir, mk, opts, codec)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.Stdout, "vault initialized at %s (identity %s)\n", vaultDir, identity.ID)
	return nil
}

func (c *CLI) cmdUnlock(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: unlock <vault-dir>")
	}
	vaultDir := args[0]

	password, err := c.promptPassphrase("Password: ")
	if err != nil {
		return err
	}
	defer clearSlice(password)

	opts := vault.UnlockOptions{
		Password:   password,
		MkCodec:    mkcrypto.Codec{},
		CfgCodec:   mkcrypto.ConfigCodec{},
		FSProvider: noopFilesystemProvider{},
	}

	handle, err := vault.Unlock(context.Background(), vaultDir, opts)
	if err != nil {
		return err
	}
	defer handle.Lock()

	fmt.Fprintf(c.Stdout, "unlocked %s\n", vaultDir)
	return nil
}

func (c *CLI) cmdRemove(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: remove <vault-dir>")
	}
	vaultDir := args[0]

	password, err := c.promptPassphrase("Password to remove: ")
	if err != nil {
		return err
	}
	defer clearSlice(password)

	removed, err := vault.RemoveIdentity(vaultDir, password, mkcrypto.Codec{}, mkcrypto.ConfigCodec{})
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintln(c.Stdout, "no matching identity")
		return nil
	}

	fmt.Fprintln(c.Stdout, "identity removed")
	return nil
}

func (c *CLI) cmdMigrate(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: migrate <vault-dir>")
	}
	return vault.MigrateLegacyBackup(args[0])
}

func (c *CLI) cmdCalibrate(args []string) error {
	iterations := 250000
	model := kdf.Calibrate()
	estimateMs := model.Predict(iterations)
	level := kdf.SecurityLevel(iterations)
	bruteForce := kdf.BruteForceEstimate(iterations)

	fmt.Fprintf(c.Stdout, "iterations=%d estimate=%dms level=%s brute-force=%s\n",
		iterations, estimateMs, level, bruteForce)
	return nil
}

func clearSlice(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// noopFilesystemProvider is a placeholder FilesystemProvider for the demo
// CLI: vaultctl exercises the vault core's container formats and
// protocols, not a real encrypted filesystem, which spec.md §1 places
// entirely out of the core's scope.
type noopFilesystemProvider struct{}

func (noopFilesystemProvider) Initialize(ctx context.Context, dir string, keyLoader func() ([]byte, error), properties map[string]string) ([]byte, error) {
	_, err := keyLoader()
	if err != nil {
		return nil, err
	}
	return mkcrypto.SignToken(mustKey(keyLoader), 1, "")
}

func (noopFilesystemProvider) Open(ctx context.Context, dir string, keyLoader func() ([]byte, error), properties map[string]string) (vault.FileSystem, error) {
	if _, err := keyLoader(); err != nil {
		return nil, err
	}
	return noopFileSystem{}, nil
}

func mustKey(keyLoader func() ([]byte, error)) []byte {
	k, _ := keyLoader()
	return k
}

type noopFileSystem struct{}

func (noopFileSystem) Lock() error { return nil }
