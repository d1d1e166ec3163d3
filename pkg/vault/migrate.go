// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"os"
	"path/filepath"
)

// MigrateLegacyBackup reads a pre-existing vault.bak auxiliary file and
// merges its contents as a second slot of the vault's configuration
// container, then removes vault.bak (spec.md §4.6). It is idempotent: if
// vault.bak is absent, it is a no-op; running it twice in a row is
// equivalent to running it once, since the second run simply finds no
// legacy marker left to migrate.
//
// Before removing vault.bak, a crash-safety copy is written to
// vault.bak.migrated; if the process dies after that copy but before
// vault.bak is removed, a second invocation still completes correctly:
// when a slot of the configuration container already holds exactly the
// vault.bak token, it is not added again, and only vault.bak is removed.
func MigrateLegacyBackup(vaultDir string) error {
	bakPath := filepath.Join(vaultDir, LegacyBackupFilename)

	bakData, err := os.ReadFile(bakPath) // #nosec G304 -- vault-directory path controlled by caller
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return wrapIo("migrate", err)
	}

	migratedPath := filepath.Join(vaultDir, MigratedBackupName)
	if err := atomicWriteFile(migratedPath, bakData, 0600); err != nil {
		return wrapIo("migrate", err)
	}

	cfgPath := filepath.Join(vaultDir, ConfigFilename)
	alreadyMerged := false
	if IsMultiKeyslotConfig(cfgPath) {
		cfgData, err := os.ReadFile(cfgPath) // #nosec G304 -- vault-directory path controlled by caller
		if err != nil {
			return wrapIo("migrate", err)
		}
		for i := 0; i < ConfigSlotCount && !alreadyMerged; i++ {
			token, ok := readConfigSlotToken(cfgData[i*ConfigSlotSize : (i+1)*ConfigSlotSize])
			alreadyMerged = ok && bytes.Equal(token, bakData)
		}
	}
	if !alreadyMerged {
		if err := AddConfigSlot(cfgPath, bakData); err != nil {
			return err
		}
	}

	if err := os.Remove(bakPath); err != nil {
		return wrapIo("migrate", err)
	}

	return nil
}
