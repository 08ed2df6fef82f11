// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package diskprobe supplies the refusal gate's ESPProbe: a read-only
// survey of currently-mounted filesystems used to detect a foreign EFI
// System Partition before a destructive PartitioningDisk stage begins.
// It never writes to a disk and never shells out to a worker; it is
// the one piece of disk inspection the core performs for itself,
// because refusing to run is a control-plane decision, not a worker
// one.
package diskprobe

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// partitionLister is swapped out in tests so ForeignESP never depends
// on the host's real mount table.
var partitionLister = func(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, false)
}

// ForeignESP reports whether any mounted partition other than one on
// target looks like an existing EFI System Partition: a vfat
// filesystem mounted under /boot or /efi. It errs on the side of
// refusing: a lister error is reported as "foreign present" rather
// than silently waved through.
func ForeignESP(ctx context.Context, target string) (bool, error) {
	parts, err := partitionLister(ctx)
	if err != nil {
		return true, err
	}

	for _, p := range parts {
		if strings.HasPrefix(p.Device, target) {
			continue
		}
		if !strings.EqualFold(p.Fstype, "vfat") {
			continue
		}
		if strings.HasPrefix(p.Mountpoint, "/boot") || strings.HasPrefix(p.Mountpoint, "/efi") {
			return true, nil
		}
	}

	return false, nil
}
