// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package script

// DiskWipeOptions configures the destructive disk-wipe worker. Target
// and Strategy are always passed as flags; the caller is responsible
// for making sure Target refers to the device the Device Plan selected.
type DiskWipeOptions struct {
	Target   string `flag:"--target"`
	Strategy string `flag:"--strategy"`
	Force    bool   `flag:"--force"`
}

// NewDiskWipeContract builds the contract for the disk-wipe worker.
// It is destructive: the caller must route it through the refusal gate
// before it is ever spawned, and outside a dry run the gate lets it
// through only once its ARCHKIT_CONFIRM_WIPE environment variable is
// set to "yes" (see Contract.Confirm).
func NewDiskWipeContract(opts DiskWipeOptions) (*Contract, error) {
	return newBuilder(FamilyDisk, "disk-wipe").
		withConfirmation("ARCHKIT_CONFIRM_WIPE").
		withEnv("ARCHKIT_TARGET_DEVICE", opts.Target).
		build(opts)
}

// DiskPartitionOptions configures the partitioning worker that lays
// out the Device Plan onto a wiped disk.
type DiskPartitionOptions struct {
	Target      string `flag:"--target"`
	BootMode    string `flag:"--boot-mode"`
	ESPMiB      *int   `flag:"--esp-mib"`
	BootMiB     *int   `flag:"--boot-mib"`
	SwapMiB     *int   `flag:"--swap-mib"`
	EncryptRoot bool   `flag:"--encrypt-root"`
}

// NewDiskPartitionContract builds the contract for the partitioning
// worker. It writes a new partition table to the target disk, so it is
// destructive and carries the ARCHKIT_CONFIRM_PARTITION confirmation
// variable.
//
// passphraseEnvKey names the environment variable that will carry the
// LUKS keyfile path at spawn time; it is empty whenever opts.EncryptRoot
// is false. Like NewUserCreateContract's password var, the contract
// itself only ever records which variable the keyfile path will live
// under — the path is bound in by the orchestrator from a Secret
// Carrier at spawn time, never folded into this contract's own env
// vector.
func NewDiskPartitionContract(opts DiskPartitionOptions, passphraseEnvKey string) (*Contract, error) {
	b := newBuilder(FamilyDisk, "disk-partition").
		withConfirmation("ARCHKIT_CONFIRM_PARTITION").
		withEnv("ARCHKIT_TARGET_DEVICE", opts.Target)

	if opts.EncryptRoot {
		b = b.withEnv("ARCHKIT_SECRET_PASSPHRASE_VAR", passphraseEnvKey)
	}

	return b.build(opts)
}

// DiskFormatOptions configures the filesystem-formatting worker.
type DiskFormatOptions struct {
	Partition  string `flag:"--partition"`
	Filesystem string `flag:"--filesystem"`
	Label      string `flag:"--label"`
}

// NewDiskFormatContract builds the contract for the mkfs worker. It
// writes filesystem structures to the target partition and is
// destructive for the same reason disk-partition is: the refusal gate
// must never let it run for real under --dry-run.
func NewDiskFormatContract(opts DiskFormatOptions) (*Contract, error) {
	return newBuilder(FamilyDisk, "disk-format").
		withConfirmation("ARCHKIT_CONFIRM_FORMAT").
		build(opts)
}

// DiskMountOptions configures the mount worker used before package
// installation and fstab generation.
type DiskMountOptions struct {
	Partition string `flag:"--partition"`
	Target    string `flag:"--target"`
}

// NewDiskMountContract builds the contract for the mount worker.
// Mounting a filesystem read-write updates its on-disk superblock
// (mount count, last-mounted time), which is itself a write to block
// storage, so this is destructive too; it must not be allowed to touch
// the target disk during a dry run.
func NewDiskMountContract(opts DiskMountOptions) (*Contract, error) {
	return newBuilder(FamilyDisk, "disk-mount").
		withConfirmation("ARCHKIT_CONFIRM_MOUNT").
		build(opts)
}

// NetworkConfigureOptions configures the network-bring-up worker.
type NetworkConfigureOptions struct {
	Interface string `flag:"--interface"`
	DHCP      bool   `flag:"--dhcp"`
}

// NewNetworkConfigureContract builds the contract for the networking
// worker run during system preparation.
func NewNetworkConfigureContract(opts NetworkConfigureOptions) (*Contract, error) {
	return newBuilder(FamilyNetwork, "network-configure").build(opts)
}

// UserCreateOptions configures the user-account-creation worker. The
// password is never passed on the CLI vector; it is delivered through
// a Secret Carrier and referenced here only by the secret's env key.
type UserCreateOptions struct {
	Username string `flag:"--username"`
	Shell    string `flag:"--shell"`
	Sudo     bool   `flag:"--sudo"`
}

// NewUserCreateContract builds the contract for the user-creation
// worker and wires passwordEnvKey into its environment so the Secret
// Carrier's value is visible only to this one process.
func NewUserCreateContract(opts UserCreateOptions, passwordEnvKey string) (*Contract, error) {
	return newBuilder(FamilyUser, "user-create").
		withEnv("ARCHKIT_SECRET_PASSWORD_VAR", passwordEnvKey).
		build(opts)
}

// SystemHostnameOptions configures the hostname/locale/timezone
// worker.
type SystemHostnameOptions struct {
	Hostname string `flag:"--hostname"`
	Timezone string `flag:"--timezone"`
	Locale   string `flag:"--locale"`
}

// NewSystemConfigureContract builds the contract for the worker that
// sets hostname, timezone, and locale during chroot configuration.
func NewSystemConfigureContract(opts SystemHostnameOptions) (*Contract, error) {
	return newBuilder(FamilySystem, "system-configure").build(opts)
}

// BootloaderInstallOptions configures the bootloader-install worker.
type BootloaderInstallOptions struct {
	Bootloader string `flag:"--bootloader"`
	Target     string `flag:"--target"`
	BootMode   string `flag:"--boot-mode"`
}

// NewBootloaderInstallContract builds the contract for the bootloader
// worker run during Finalizing.
func NewBootloaderInstallContract(opts BootloaderInstallOptions) (*Contract, error) {
	return newBuilder(FamilySystem, "bootloader-install").build(opts)
}

// PackageInstallOptions configures the base-system package-installation
// worker.
type PackageInstallOptions struct {
	Target   string   `flag:"--target"`
	Packages []string `flag:"--package"`
}

// NewPackageInstallContract builds the contract for the base-install
// worker run during InstallingBase.
func NewPackageInstallContract(opts PackageInstallOptions) (*Contract, error) {
	return newBuilder(FamilyInstallation, "package-install").build(opts)
}

// FstabGenerateOptions configures the fstab-generation worker.
type FstabGenerateOptions struct {
	Target string `flag:"--target"`
}

// NewFstabGenerateContract builds the contract for the fstab-generation
// worker.
func NewFstabGenerateContract(opts FstabGenerateOptions) (*Contract, error) {
	return newBuilder(FamilySystem, "fstab-generate").build(opts)
}

// InitramfsConfigureOptions configures the mkinitcpio worker. Hooks is
// rendered as a single comma-separated flag value because the worker's
// own config parser, not this process, owns splitting it.
type InitramfsConfigureOptions struct {
	Target string `flag:"--target"`
	Hooks  string `flag:"--hooks"`
}

// NewInitramfsConfigureContract builds the contract for the
// mkinitcpio worker run during ConfiguringChroot. Callers derive Hooks
// from deviceplan.Plan.InitramfsHooks so the hook list always matches
// the layout actually built onto disk.
func NewInitramfsConfigureContract(opts InitramfsConfigureOptions) (*Contract, error) {
	return newBuilder(FamilySystem, "initramfs-configure").build(opts)
}
