// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"archkit.sh/cmdfactory"
	"archkit.sh/config"
	"archkit.sh/deviceplan"
	"archkit.sh/diskprobe"
	"archkit.sh/instconfig"
	"archkit.sh/internal/installerctx"
	"archkit.sh/log"
	"archkit.sh/manifest"
	"archkit.sh/orchestrator"
	"archkit.sh/refusal"
	"archkit.sh/script"
	"archkit.sh/secret"
	"archkit.sh/stage"
	"archkit.sh/utils"
)

// InstallCommand drives one installation from a persisted
// instconfig.Document through all nine Install Stages. The terminal
// UI is an external collaborator (out of scope for this core): this
// command's only interactive surface is the --yes flag, which is the
// one legal way a caller may move the destructive PartitioningDisk
// contract past the Refusal Gate.
type InstallCommand struct {
	Config     string `long:"config" usage:"path to a persisted install configuration document"`
	SaveConfig string `long:"save-config" usage:"validate --config and write it back out to this path without installing"`
	DryRun     bool   `long:"dry-run" usage:"route every destructive contract through the refusal gate's dry-run path instead of spawning it"`
	Yes        bool   `long:"yes" usage:"confirm the destructive partitioning stage; required for it to run for real"`
}

// NewInstallCommand builds the "install" subcommand.
func NewInstallCommand() (*cobra.Command, error) {
	return cmdfactory.New(&InstallCommand{}, cobra.Command{
		Use:   "install",
		Short: "run an unattended installation from a persisted configuration document",
	})
}

func (i *InstallCommand) Run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := log.FromContext(ctx)
	cfg := config.G(ctx)
	ic := installerctx.FromContext(ctx)

	if i.Config == "" {
		return fmt.Errorf("install: --config is required")
	}

	doc, err := instconfig.Load(ctx, i.Config)
	if err != nil {
		return err
	}

	if err := doc.Validate(); err != nil {
		return err
	}

	if i.SaveConfig != "" {
		return instconfig.Save(i.SaveConfig, doc)
	}

	plan, err := doc.Resolve()
	if err != nil {
		return err
	}

	dryRun := i.DryRun || cfg.DryRun

	manifests := manifest.NewStore(cfg.Paths.Manifests)
	gate := refusal.NewGate(dryRun)
	orch := orchestrator.New(cfg.Paths.Workers, ic.Guard, manifests, gate, ic.Audit)

	grace := time.Duration(cfg.TerminateGrace) * time.Second

	secrets, err := newInstallSecrets(cfg, plan, doc, ic.RunID)
	if err != nil {
		return err
	}
	defer secrets.releaseAll()

	stages := []struct {
		stage stage.Stage
		steps func() ([]orchestrator.Step, error)
	}{
		{stage.ValidatingConfig, func() ([]orchestrator.Step, error) { return nil, nil }},
		{stage.PreparingSystem, func() ([]orchestrator.Step, error) { return preparingSystemSteps() }},
		{stage.InstallingDependencies, func() ([]orchestrator.Step, error) { return installingDependenciesSteps(plan) }},
		{stage.PartitioningDisk, func() ([]orchestrator.Step, error) { return partitioningDiskSteps(plan, secrets, i.Yes) }},
		{stage.InstallingBase, func() ([]orchestrator.Step, error) { return installingBaseSteps(doc) }},
		{stage.GeneratingFstab, func() ([]orchestrator.Step, error) { return generatingFstabSteps(plan) }},
		{stage.ConfiguringChroot, func() ([]orchestrator.Step, error) { return configuringChrootSteps(plan, doc, secrets) }},
		{stage.Finalizing, func() ([]orchestrator.Step, error) { return finalizingSteps(plan) }},
	}

	// Leave NotStarted before the first stage's steps run; from here on
	// each RunStage call executes against the stage the machine is
	// currently in and its Advance carries the machine into the next
	// one, through to Completed after Finalizing.
	if err := ic.Advance(); err != nil {
		return err
	}

	for _, s := range stages {
		if s.stage != ic.Machine.Current() {
			err := fmt.Errorf("install: machine is at %s but %s was selected to run", ic.Machine.Current(), s.stage)
			_ = ic.Fail(err)
			return err
		}

		if s.stage.IsDestructive() {
			if err := ic.CheckDestructivePrecondition(func() error {
				return refusal.CheckForeignESP(func() (bool, error) {
					return diskprobe.ForeignESP(ctx, plan.TargetDisk())
				})
			}); err != nil {
				_ = ic.Fail(err)
				return err
			}
		}

		steps, err := s.steps()
		if err != nil {
			_ = ic.Fail(err)
			return err
		}

		if err := orch.RunStage(ctx, ic, grace, steps); err != nil {
			if logger != nil {
				logger.Errorf("stage %s failed: %v (run started %s)", ic.Machine.Current(), err, utils.FuzzyAgo(time.Since(ic.StartedAt)))
			}
			return err
		}
	}

	// Finalizing was the last explicit stage driven above; RunStage's
	// own Advance call already carried the machine from Finalizing to
	// Completed, so no further action is needed here.
	return nil
}

func preparingSystemSteps() ([]orchestrator.Step, error) {
	c, err := script.NewNetworkConfigureContract(script.NetworkConfigureOptions{Interface: "auto", DHCP: true})
	if err != nil {
		return nil, err
	}
	return []orchestrator.Step{{Family: string(script.FamilyNetwork), ScriptID: "network-configure", Contract: c}}, nil
}

func installingDependenciesSteps(plan *deviceplan.Plan) ([]orchestrator.Step, error) {
	c, err := script.NewPackageInstallContract(script.PackageInstallOptions{
		Target:   "/",
		Packages: []string{"archlinux-keyring", "pacman-mirrorlist"},
	})
	if err != nil {
		return nil, err
	}
	return []orchestrator.Step{{Family: string(script.FamilyInstallation), ScriptID: "package-install", Contract: c}}, nil
}

// partitioningDiskSteps builds every block-device-writing step of the
// destructive stage: wipe, partition, format, and mount, all derived
// from the same frozen Device Plan. confirmed carries the one --yes
// decision for the whole stage: all four contracts belong to the same
// user-authorized destructive operation, so they share a single
// confirmation rather than prompting separately per contract.
func partitioningDiskSteps(plan *deviceplan.Plan, secrets *installSecrets, confirmed bool) ([]orchestrator.Step, error) {
	var steps []orchestrator.Step

	wipe, err := script.NewDiskWipeContract(script.DiskWipeOptions{
		Target:   plan.TargetDisk(),
		Strategy: plan.Tag(),
		Force:    true,
	})
	if err != nil {
		return nil, err
	}
	if confirmed {
		wipe = wipe.Confirm()
	}
	steps = append(steps, orchestrator.Step{Family: string(script.FamilyDisk), ScriptID: "disk-wipe", Contract: wipe})

	espMiB := plan.ESPMiB
	partition, err := script.NewDiskPartitionContract(script.DiskPartitionOptions{
		Target:      plan.TargetDisk(),
		BootMode:    string(plan.BootMode),
		ESPMiB:      &espMiB,
		BootMiB:     &plan.BootMiB,
		SwapMiB:     &plan.SwapMiB,
		EncryptRoot: plan.EncryptRoot,
	}, secrets.passphraseEnvKey)
	if err != nil {
		return nil, err
	}
	if confirmed {
		partition = partition.Confirm()
	}
	steps = append(steps, orchestrator.Step{
		Family:   string(script.FamilyDisk),
		ScriptID: "disk-partition",
		Contract: partition,
		Secrets:  secrets.passphraseSecrets(),
	})

	rootPartitionNum := 2
	format, err := script.NewDiskFormatContract(script.DiskFormatOptions{
		Partition:  plan.PartitionDevice(rootPartitionNum),
		Filesystem: string(plan.RootFS),
		Label:      "archkit-root",
	})
	if err != nil {
		return nil, err
	}
	if confirmed {
		format = format.Confirm()
	}
	steps = append(steps, orchestrator.Step{Family: string(script.FamilyDisk), ScriptID: "disk-format", Contract: format})

	mount, err := script.NewDiskMountContract(script.DiskMountOptions{
		Partition: plan.PartitionDevice(rootPartitionNum),
		Target:    "/mnt",
	})
	if err != nil {
		return nil, err
	}
	if confirmed {
		mount = mount.Confirm()
	}
	steps = append(steps, orchestrator.Step{Family: string(script.FamilyDisk), ScriptID: "disk-mount", Contract: mount})

	return steps, nil
}

// installingBaseSteps lays the base system onto the filesystem the
// PartitioningDisk stage already built and mounted.
func installingBaseSteps(doc *instconfig.Document) ([]orchestrator.Step, error) {
	basePackages := []string{"base", "linux", "linux-firmware"}
	for _, pkg := range doc.Packages {
		if !utils.Contains(basePackages, pkg) {
			basePackages = append(basePackages, pkg)
		}
	}

	install, err := script.NewPackageInstallContract(script.PackageInstallOptions{
		Target:   "/mnt",
		Packages: basePackages,
	})
	if err != nil {
		return nil, err
	}

	return []orchestrator.Step{{Family: string(script.FamilyInstallation), ScriptID: "package-install", Contract: install}}, nil
}

func generatingFstabSteps(plan *deviceplan.Plan) ([]orchestrator.Step, error) {
	c, err := script.NewFstabGenerateContract(script.FstabGenerateOptions{Target: "/mnt"})
	if err != nil {
		return nil, err
	}
	return []orchestrator.Step{{Family: string(script.FamilySystem), ScriptID: "fstab-generate", Contract: c}}, nil
}

func configuringChrootSteps(plan *deviceplan.Plan, doc *instconfig.Document, secrets *installSecrets) ([]orchestrator.Step, error) {
	var steps []orchestrator.Step

	sysconf, err := script.NewSystemConfigureContract(script.SystemHostnameOptions{
		Hostname: doc.Hostname,
		Timezone: doc.Timezone,
		Locale:   doc.Locale,
	})
	if err != nil {
		return nil, err
	}
	steps = append(steps, orchestrator.Step{Family: string(script.FamilySystem), ScriptID: "system-configure", Contract: sysconf})

	initramfs, err := script.NewInitramfsConfigureContract(script.InitramfsConfigureOptions{
		Target: "/mnt",
		Hooks:  joinHooks(plan.InitramfsHooks()),
	})
	if err != nil {
		return nil, err
	}
	steps = append(steps, orchestrator.Step{Family: string(script.FamilySystem), ScriptID: "initramfs-configure", Contract: initramfs})

	if doc.Username != "" {
		user, err := script.NewUserCreateContract(script.UserCreateOptions{
			Username: doc.Username,
			Shell:    "/bin/bash",
			Sudo:     true,
		}, secrets.userPasswordEnvKey)
		if err != nil {
			return nil, err
		}
		steps = append(steps, orchestrator.Step{
			Family:   string(script.FamilyUser),
			ScriptID: "user-create",
			Contract: user,
			Secrets:  secrets.userSecrets(),
		})
	}

	return steps, nil
}

func finalizingSteps(plan *deviceplan.Plan) ([]orchestrator.Step, error) {
	c, err := script.NewBootloaderInstallContract(script.BootloaderInstallOptions{
		Bootloader: string(plan.Bootloader),
		Target:     plan.TargetDisk(),
		BootMode:   string(plan.BootMode),
	})
	if err != nil {
		return nil, err
	}
	return []orchestrator.Step{{Family: string(script.FamilySystem), ScriptID: "bootloader-install", Contract: c}}, nil
}

func joinHooks(hooks []string) string {
	out := ""
	for i, h := range hooks {
		if i > 0 {
			out += ","
		}
		out += h
	}
	return out
}

// installSecrets holds the Secret Carriers created for one install run
// so they can all be released exactly once, regardless of where the
// run stops.
type installSecrets struct {
	userPassword       *secret.Secret
	userPasswordEnvKey string

	passphrase       *secret.Secret
	passphraseEnvKey string
}

// newInstallSecrets binds every secret-bearing value in doc to a
// Secret Carrier before any worker that needs it is ever contracted.
// The account password travels as a plain env-delivered secret; the
// disk-encryption passphrase travels as a keyfile under cfg.Paths.Secrets,
// named after runID so concurrent runs (were this core ever extended to
// allow them) could never collide on the same path.
func newInstallSecrets(cfg *config.Config, plan *deviceplan.Plan, doc *instconfig.Document, runID string) (*installSecrets, error) {
	s := &installSecrets{
		userPasswordEnvKey: "ARCHKIT_SECRET_USER_PASSWORD",
		passphraseEnvKey:   "ARCHKIT_SECRET_LUKS_PASSPHRASE_FILE",
	}

	if doc.Username != "" {
		s.userPassword = secret.NewEnvSecret(s.userPasswordEnvKey, doc.UserPassword.Password)
	}

	if plan.EncryptRoot {
		if err := os.MkdirAll(cfg.Paths.Secrets, 0o700); err != nil {
			return nil, fmt.Errorf("install: preparing secrets directory: %w", err)
		}
		keyfile, err := secret.NewKeyfileSecret(cfg.Paths.Secrets, runID+"-luks", s.passphraseEnvKey, doc.EncryptionPassphrase.Password)
		if err != nil {
			return nil, err
		}
		s.passphrase = keyfile
	}

	return s, nil
}

func (s *installSecrets) userSecrets() []*secret.Secret {
	if s.userPassword == nil {
		return nil
	}
	return []*secret.Secret{s.userPassword}
}

func (s *installSecrets) passphraseSecrets() []*secret.Secret {
	if s.passphrase == nil {
		return nil
	}
	return []*secret.Secret{s.passphrase}
}

func (s *installSecrets) releaseAll() {
	if s.userPassword != nil {
		_ = s.userPassword.Release()
	}
	if s.passphrase != nil {
		_ = s.passphrase.Release()
	}
}
