// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package deviceplan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archkit.sh/deviceplan"
)

func validPlan() deviceplan.Plan {
	return deviceplan.Plan{
		Strategy:   deviceplan.StrategySimple,
		Disks:      []string{"/dev/sda"},
		BootMode:   deviceplan.BootModeUEFI,
		Bootloader: deviceplan.BootloaderSystemdBoot,
		ESPMiB:     256,
		BootMiB:    512,
		RootFS:     deviceplan.FilesystemExt4,
	}
}

func TestNewAcceptsValidPlan(t *testing.T) {
	p, err := deviceplan.New(validPlan())
	require.NoError(t, err)
	assert.Equal(t, "/dev/sda", p.TargetDisk())
	assert.Equal(t, "simple", p.Tag())
}

func TestNewRejectsRaidWithOneDisk(t *testing.T) {
	opts := validPlan()
	opts.Strategy = deviceplan.StrategyRAID
	_, err := deviceplan.New(opts)
	assert.Error(t, err)
}

func TestNewRejectsRaidLVMWithOneDisk(t *testing.T) {
	opts := validPlan()
	opts.Strategy = deviceplan.StrategyRAIDLVM
	_, err := deviceplan.New(opts)
	assert.Error(t, err)
}

func TestNewAcceptsRaidLVMWithTwoDisks(t *testing.T) {
	opts := validPlan()
	opts.Strategy = deviceplan.StrategyRAIDLVM
	opts.Disks = []string{"/dev/sda", "/dev/sdb"}
	p, err := deviceplan.New(opts)
	require.NoError(t, err)
	assert.True(t, p.RootIsLogicalVolume())
}

func TestNewRejectsBIOSWithoutGrub(t *testing.T) {
	opts := validPlan()
	opts.BootMode = deviceplan.BootModeBIOS
	opts.Bootloader = deviceplan.BootloaderSystemdBoot
	opts.BIOSBootMiB = 2
	_, err := deviceplan.New(opts)
	assert.Error(t, err)
}

func TestNewRejectsBIOSWithoutBiosBootPartition(t *testing.T) {
	opts := validPlan()
	opts.BootMode = deviceplan.BootModeBIOS
	opts.Bootloader = deviceplan.BootloaderGRUB
	opts.BIOSBootMiB = 0
	_, err := deviceplan.New(opts)
	assert.Error(t, err)
}

func TestNewAcceptsBIOSWithGrubAndBiosBootPartition(t *testing.T) {
	opts := validPlan()
	opts.BootMode = deviceplan.BootModeBIOS
	opts.Bootloader = deviceplan.BootloaderGRUB
	opts.BIOSBootMiB = 2
	_, err := deviceplan.New(opts)
	require.NoError(t, err)
}

func TestNewRejectsUEFIWithoutSeparateBootPartition(t *testing.T) {
	opts := validPlan()
	opts.BootMiB = 0
	_, err := deviceplan.New(opts)
	assert.Error(t, err)
}

func TestNewAcceptsEncryptedSimpleStrategy(t *testing.T) {
	opts := validPlan()
	opts.EncryptRoot = true
	opts.EncryptionSecretBound = true
	p, err := deviceplan.New(opts)
	require.NoError(t, err)
	assert.Equal(t, "simple+luks", p.Tag())
}

func TestNewRejectsEncryptionWithoutBoundSecret(t *testing.T) {
	opts := validPlan()
	opts.Strategy = deviceplan.StrategyLVM
	opts.EncryptRoot = true
	opts.EncryptionSecretBound = false
	_, err := deviceplan.New(opts)
	assert.Error(t, err)
}

func TestNewAcceptsEncryptedLVMWithBoundSecret(t *testing.T) {
	opts := validPlan()
	opts.Strategy = deviceplan.StrategyLVM
	opts.EncryptRoot = true
	opts.EncryptionSecretBound = true
	p, err := deviceplan.New(opts)
	require.NoError(t, err)
	assert.Equal(t, "lvm+luks", p.Tag())
}

func TestNewRejectsSwapSizeWithoutSwapEnabled(t *testing.T) {
	opts := validPlan()
	opts.SwapMiB = 1024
	_, err := deviceplan.New(opts)
	assert.Error(t, err)
}

func TestNewRejectsHomeFilesystemWithoutSeparateHome(t *testing.T) {
	opts := validPlan()
	opts.HomeFS = deviceplan.FilesystemExt4
	_, err := deviceplan.New(opts)
	assert.Error(t, err)
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	opts := validPlan()
	opts.Strategy = deviceplan.Strategy("quantum")
	_, err := deviceplan.New(opts)
	assert.Error(t, err)
}

func TestInitramfsHooksOmitsFsckForBtrfsRoot(t *testing.T) {
	opts := validPlan()
	opts.RootFS = deviceplan.FilesystemBtrfs
	p, err := deviceplan.New(opts)
	require.NoError(t, err)
	assert.NotContains(t, p.InitramfsHooks(), "fsck")
}

func TestPartitionDeviceAppendsNumberDirectlyForSDDisks(t *testing.T) {
	p, err := deviceplan.New(validPlan())
	require.NoError(t, err)
	assert.Equal(t, "/dev/sda1", p.PartitionDevice(1))
	assert.Equal(t, "/dev/sda2", p.PartitionDevice(2))
}

func TestPartitionDeviceInsertsPInfixForNVMeDisks(t *testing.T) {
	opts := validPlan()
	opts.Disks = []string{"/dev/nvme0n1"}
	p, err := deviceplan.New(opts)
	require.NoError(t, err)
	assert.Equal(t, "/dev/nvme0n1p1", p.PartitionDevice(1))
}

func TestInitramfsHooksIncludesEncryptAndLvm2(t *testing.T) {
	opts := validPlan()
	opts.Strategy = deviceplan.StrategyLVM
	opts.EncryptRoot = true
	opts.EncryptionSecretBound = true
	p, err := deviceplan.New(opts)
	require.NoError(t, err)
	hooks := p.InitramfsHooks()
	assert.Contains(t, hooks, "encrypt")
	assert.Contains(t, hooks, "lvm2")
}
