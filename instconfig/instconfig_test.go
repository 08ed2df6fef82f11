// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package instconfig_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archkit.sh/instconfig"
)

const validDoc = `
version: "1.0.0"
hostname: archbox
username: kade
desktop_environment: gnome
packages: ["git", "vim"]
root_password:
  password: hunter2
  confirm: hunter2
device_plan:
  strategy: simple
  disks: ["/dev/sda"]
  boot_mode: uefi
  bootloader: systemd-boot
  esp_mib: 256
  boot_mib: 512
  root_fs: ext4
`

func TestLoadValidDocumentAndResolvePlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "install.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o644))

	doc, err := instconfig.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "archbox", doc.Hostname)

	plan, err := doc.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "/dev/sda", plan.TargetDisk())

	assert.NoError(t, doc.Validate())
}

func TestValidateRejectsMismatchedRootPassword(t *testing.T) {
	doc := &instconfig.Document{
		RootPassword: instconfig.PasswordPair{Password: "hunter2", Confirm: "hunter3"},
	}
	assert.Error(t, doc.Validate())
}

func TestValidateRejectsMismatchedUserPassword(t *testing.T) {
	doc := &instconfig.Document{
		Username:     "kade",
		UserPassword: instconfig.PasswordPair{Password: "hunter2", Confirm: "hunter3"},
	}
	assert.Error(t, doc.Validate())
}

func TestValidateRejectsMismatchedEncryptionPassphrase(t *testing.T) {
	doc := &instconfig.Document{
		DevicePlan:           instconfig.DevicePlanDocument{EncryptRoot: true},
		EncryptionPassphrase: instconfig.PasswordPair{Password: "hunter2", Confirm: "hunter3"},
	}
	assert.Error(t, doc.Validate())
}

func TestValidateRejectsEncryptRootWithoutPassphrase(t *testing.T) {
	doc := &instconfig.Document{
		DevicePlan: instconfig.DevicePlanDocument{EncryptRoot: true},
	}
	assert.Error(t, doc.Validate())
}

func TestResolveBindsEncryptionSecretOnlyWhenPassphrasePresent(t *testing.T) {
	doc := &instconfig.Document{
		DevicePlan: instconfig.DevicePlanDocument{
			Strategy:    "lvm",
			Disks:       []string{"/dev/sda"},
			BootMode:    "uefi",
			ESPMiB:      256,
			BootMiB:     512,
			RootFS:      "ext4",
			EncryptRoot: true,
		},
	}

	// No passphrase bound yet: Resolve must refuse rather than silently
	// treat the plan as ready for an encrypted root.
	_, err := doc.Resolve()
	assert.Error(t, err)

	doc.EncryptionPassphrase = instconfig.PasswordPair{Password: "correct horse", Confirm: "correct horse"}
	plan, err := doc.Resolve()
	require.NoError(t, err)
	assert.True(t, plan.EncryptRoot)
	assert.Equal(t, "lvm+luks", plan.Tag())
}

func TestLoadRejectsDocumentMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "install.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0.0\"\n"), 0o644))

	_, err := instconfig.Load(context.Background(), path)
	assert.Error(t, err)
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "install.json")

	doc := &instconfig.Document{
		Version: "1.0.0",
		DevicePlan: instconfig.DevicePlanDocument{
			Strategy: "simple",
			Disks:    []string{"/dev/sda"},
			BootMode: "uefi",
			ESPMiB:   256,
			RootFS:   "ext4",
		},
	}

	require.NoError(t, instconfig.Save(path, doc))

	loaded, err := instconfig.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, doc.DevicePlan.Strategy, loaded.DevicePlan.Strategy)
}
