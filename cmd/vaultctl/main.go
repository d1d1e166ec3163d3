// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Command vaultctl is a demonstration harness exercising the plausibly-
// deniable multi-keyslot vault core (pkg/vault) end to end: initializing a
// primary identity, unlocking, removing an identity, migrating a legacy
// vault.bak, and reporting the PBKDF2 calibrator's current estimate. It is
// not part of the core library; production integrations wire pkg/vault
// against their own MasterkeyCodec, ConfigCodec, and FilesystemProvider
// implementations instead of the reference ones used here.
package main

import "os"

func main() {
	cli := NewCLI()
	os.Exit(cli.Run(os.Args))
}
