// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package script_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archkit.sh/script"
)

func TestDiskWipeContractIsDestructiveAndCarriesConfirmationVar(t *testing.T) {
	c, err := script.NewDiskWipeContract(script.DiskWipeOptions{
		Target:   "/dev/sda",
		Strategy: "simple",
		Force:    true,
	})
	require.NoError(t, err)

	assert.True(t, c.Destructive)
	assert.Equal(t, "ARCHKIT_CONFIRM_WIPE", c.ConfirmVar)
	assert.Contains(t, c.CLIVector(), "/dev/sda")
	assert.Contains(t, c.CLIVector(), "--force")

	v, ok := c.Env("ARCHKIT_TARGET_DEVICE")
	assert.True(t, ok)
	assert.Equal(t, "/dev/sda", v)
}

func TestConfirmSetsConfirmationVariableWithoutMutatingOriginal(t *testing.T) {
	c, err := script.NewDiskWipeContract(script.DiskWipeOptions{Target: "/dev/sda", Strategy: "simple"})
	require.NoError(t, err)

	_, ok := c.Env("ARCHKIT_CONFIRM_WIPE")
	assert.False(t, ok, "an unconfirmed contract must not carry its confirmation value")

	confirmed := c.Confirm()
	v, ok := confirmed.Env("ARCHKIT_CONFIRM_WIPE")
	assert.True(t, ok)
	assert.Equal(t, "yes", v)

	_, stillUnset := c.Env("ARCHKIT_CONFIRM_WIPE")
	assert.False(t, stillUnset, "Confirm must not mutate the receiver")
}

func TestDiskMountContractIsDestructive(t *testing.T) {
	c, err := script.NewDiskMountContract(script.DiskMountOptions{
		Partition: "/dev/sda2",
		Target:    "/mnt",
	})
	require.NoError(t, err)
	assert.True(t, c.Destructive)
	assert.Equal(t, "ARCHKIT_CONFIRM_MOUNT", c.ConfirmVar)
}

func TestDiskPartitionAndFormatContractsAreDestructive(t *testing.T) {
	partition, err := script.NewDiskPartitionContract(script.DiskPartitionOptions{Target: "/dev/sda", BootMode: "uefi"}, "")
	require.NoError(t, err)
	assert.True(t, partition.Destructive)
	assert.Equal(t, "ARCHKIT_CONFIRM_PARTITION", partition.ConfirmVar)

	format, err := script.NewDiskFormatContract(script.DiskFormatOptions{Partition: "/dev/sda2", Filesystem: "ext4"})
	require.NoError(t, err)
	assert.True(t, format.Destructive)
	assert.Equal(t, "ARCHKIT_CONFIRM_FORMAT", format.ConfirmVar)
}

func TestDiskPartitionContractOnlyCarriesPassphraseVarWhenEncrypting(t *testing.T) {
	plain, err := script.NewDiskPartitionContract(script.DiskPartitionOptions{
		Target:   "/dev/sda",
		BootMode: "uefi",
	}, "")
	require.NoError(t, err)
	_, ok := plain.Env("ARCHKIT_SECRET_PASSPHRASE_VAR")
	assert.False(t, ok, "a non-encrypted partition contract must not reference a passphrase variable")

	encrypted, err := script.NewDiskPartitionContract(script.DiskPartitionOptions{
		Target:      "/dev/sda",
		BootMode:    "uefi",
		EncryptRoot: true,
	}, "ARCHKIT_SECRET_LUKS_PASSPHRASE_FILE")
	require.NoError(t, err)
	v, ok := encrypted.Env("ARCHKIT_SECRET_PASSPHRASE_VAR")
	assert.True(t, ok)
	assert.Equal(t, "ARCHKIT_SECRET_LUKS_PASSPHRASE_FILE", v)
}

func TestEnvVectorIsSortedAndDeterministic(t *testing.T) {
	c, err := script.NewUserCreateContract(script.UserCreateOptions{
		Username: "arch",
		Shell:    "/bin/bash",
	}, "ARCHKIT_SECRET_abc123")
	require.NoError(t, err)

	ev := c.EnvVector()
	require.Len(t, ev, 1)
	assert.Equal(t, "ARCHKIT_SECRET_PASSWORD_VAR=ARCHKIT_SECRET_abc123", ev[0])
}
