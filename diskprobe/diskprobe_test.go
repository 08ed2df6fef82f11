// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package diskprobe

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
)

func withLister(t *testing.T, parts []disk.PartitionStat, err error) {
	t.Helper()
	orig := partitionLister
	partitionLister = func(context.Context) ([]disk.PartitionStat, error) { return parts, err }
	t.Cleanup(func() { partitionLister = orig })
}

func TestForeignESPDetectsUnrelatedVfatBootMount(t *testing.T) {
	withLister(t, []disk.PartitionStat{
		{Device: "/dev/sdb1", Mountpoint: "/boot/efi", Fstype: "vfat"},
	}, nil)

	foreign, err := ForeignESP(context.Background(), "/dev/sda")
	assert.NoError(t, err)
	assert.True(t, foreign)
}

func TestForeignESPIgnoresTargetsOwnPartitions(t *testing.T) {
	withLister(t, []disk.PartitionStat{
		{Device: "/dev/sda1", Mountpoint: "/boot/efi", Fstype: "vfat"},
	}, nil)

	foreign, err := ForeignESP(context.Background(), "/dev/sda")
	assert.NoError(t, err)
	assert.False(t, foreign)
}

func TestForeignESPIgnoresNonVfatMounts(t *testing.T) {
	withLister(t, []disk.PartitionStat{
		{Device: "/dev/sdb1", Mountpoint: "/boot", Fstype: "ext4"},
	}, nil)

	foreign, err := ForeignESP(context.Background(), "/dev/sda")
	assert.NoError(t, err)
	assert.False(t, foreign)
}

func TestForeignESPTreatsListerErrorAsForeignPresent(t *testing.T) {
	withLister(t, nil, errors.New("boom"))

	foreign, err := ForeignESP(context.Background(), "/dev/sda")
	assert.Error(t, err)
	assert.True(t, foreign)
}
