// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archkit.sh/auditlog"
	"archkit.sh/guard"
	"archkit.sh/internal/installerctx"
	"archkit.sh/manifest"
	"archkit.sh/orchestrator"
	"archkit.sh/refusal"
	"archkit.sh/script"
)

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644))
}

func newOrchestrator(t *testing.T, bin string, dryRun bool) (*orchestrator.Orchestrator, *installerctx.Context) {
	t.Helper()

	manifestDir := t.TempDir()
	writeManifest(t, manifestDir, "disk-mount", `{"script":"disk-mount"}`)
	writeManifest(t, manifestDir, "disk-wipe", `{"script":"disk-wipe","destructive":true,"required_confirmation":"ARCHKIT_CONFIRM_WIPE","required_env":[{"name":"ARCHKIT_TARGET_DEVICE","pattern":"^/dev/"}]}`)

	audit, err := auditlog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	g := guard.NewRegistry()
	o := orchestrator.New(bin, g, manifest.NewStore(manifestDir), refusal.NewGate(dryRun), audit)
	ic := installerctx.New("run-1", g, audit)

	return o, ic
}

func TestRunScriptSucceeds(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "workers")
	require.NoError(t, os.MkdirAll(filepath.Join(bin, "disk"), 0o755))
	writeExecutableScript(t, filepath.Join(bin, "disk", "disk-mount"), "#!/bin/sh\nexit 0\n")

	o, ic := newOrchestrator(t, bin, false)

	c, err := script.NewDiskMountContract(script.DiskMountOptions{Partition: "/dev/sda2", Target: "/mnt"})
	require.NoError(t, err)
	c = c.Confirm()

	out, err := o.RunScript(context.Background(), ic, "disk", "disk-mount", c)
	require.NoError(t, err)
	assert.Equal(t, script.ClassificationSuccess, out.Classification)
}

func TestRunScriptClassifiesNonZeroExitAsFailure(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "workers")
	require.NoError(t, os.MkdirAll(filepath.Join(bin, "disk"), 0o755))
	writeExecutableScript(t, filepath.Join(bin, "disk", "disk-mount"), "#!/bin/sh\nexit 7\n")

	o, ic := newOrchestrator(t, bin, false)

	c, err := script.NewDiskMountContract(script.DiskMountOptions{Partition: "/dev/sda2", Target: "/mnt"})
	require.NoError(t, err)
	c = c.Confirm()

	out, err := o.RunScript(context.Background(), ic, "disk", "disk-mount", c)
	require.NoError(t, err)
	assert.Equal(t, script.ClassificationFailure, out.Classification)
	assert.Equal(t, 7, out.ExitCode)
}

func TestRunScriptDryRunSkipsDestructiveContractWithoutSpawning(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "workers")

	o, ic := newOrchestrator(t, bin, true)

	c, err := script.NewDiskWipeContract(script.DiskWipeOptions{Target: "/dev/sda", Strategy: "simple"})
	require.NoError(t, err)

	out, err := o.RunScript(context.Background(), ic, "disk", "disk-wipe", c)
	require.NoError(t, err)
	assert.Equal(t, script.ClassificationSkipped, out.Classification)
	assert.True(t, out.DryRun)
}

func TestRunScriptRefusesDestructiveContractWithoutConfirmation(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "workers")

	o, ic := newOrchestrator(t, bin, false)

	c, err := script.NewDiskWipeContract(script.DiskWipeOptions{Target: "/dev/sda", Strategy: "simple"})
	require.NoError(t, err)

	_, err = o.RunScript(context.Background(), ic, "disk", "disk-wipe", c)
	require.Error(t, err)

	var refused *refusal.RefusalError
	assert.ErrorAs(t, err, &refused)
}

func TestRunScriptCapturesStdoutStderrAndDuration(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "workers")
	require.NoError(t, os.MkdirAll(filepath.Join(bin, "disk"), 0o755))
	writeExecutableScript(t, filepath.Join(bin, "disk", "disk-mount"), "#!/bin/sh\necho out-line\necho err-line >&2\nexit 0\n")

	o, ic := newOrchestrator(t, bin, false)

	c, err := script.NewDiskMountContract(script.DiskMountOptions{Partition: "/dev/sda2", Target: "/mnt"})
	require.NoError(t, err)
	c = c.Confirm()

	out, err := o.RunScript(context.Background(), ic, "disk", "disk-mount", c)
	require.NoError(t, err)
	assert.Contains(t, out.Stdout, "out-line")
	assert.Contains(t, out.Stderr, "err-line")
	assert.GreaterOrEqual(t, out.Duration, time.Duration(0))
}

func TestRunScriptFansOutLinesToSubscribers(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "workers")
	require.NoError(t, os.MkdirAll(filepath.Join(bin, "disk"), 0o755))
	writeExecutableScript(t, filepath.Join(bin, "disk", "disk-mount"), "#!/bin/sh\necho hello\n")

	o, ic := newOrchestrator(t, bin, false)
	lines := o.SubscribeLines()

	c, err := script.NewDiskMountContract(script.DiskMountOptions{Partition: "/dev/sda2", Target: "/mnt"})
	require.NoError(t, err)
	c = c.Confirm()

	_, err = o.RunScript(context.Background(), ic, "disk", "disk-mount", c)
	require.NoError(t, err)

	select {
	case l := <-lines:
		assert.Equal(t, "hello", l.Text)
		assert.Equal(t, "stdout", l.Stream)
	case <-time.After(time.Second):
		t.Fatal("expected a line to be published")
	}
}

func TestRunScriptRecordsWipeMethodFromDiskWipeStdout(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "workers")
	require.NoError(t, os.MkdirAll(filepath.Join(bin, "disk"), 0o755))
	writeExecutableScript(t, filepath.Join(bin, "disk", "disk-wipe"), "#!/bin/sh\necho WIPE_METHOD=discard\nexit 0\n")

	manifestDir := t.TempDir()
	writeManifest(t, manifestDir, "disk-wipe", `{"script":"disk-wipe","destructive":true,"required_confirmation":"ARCHKIT_CONFIRM_WIPE","required_env":[{"name":"ARCHKIT_TARGET_DEVICE","pattern":"^/dev/"}]}`)

	audit, err := auditlog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	g := guard.NewRegistry()
	o := orchestrator.New(bin, g, manifest.NewStore(manifestDir), refusal.NewGate(false), audit)
	ic := installerctx.New("run-1", g, audit)

	c, err := script.NewDiskWipeContract(script.DiskWipeOptions{Target: "/dev/sda", Strategy: "simple"})
	require.NoError(t, err)
	c = c.Confirm()

	out, err := o.RunScript(context.Background(), ic, "disk", "disk-wipe", c)
	require.NoError(t, err)
	assert.Equal(t, "discard", out.WipeMethod)
}

func TestRunScriptRespectsManifestAcceptedExitCodes(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "workers")
	require.NoError(t, os.MkdirAll(filepath.Join(bin, "disk"), 0o755))
	writeExecutableScript(t, filepath.Join(bin, "disk", "disk-lenient"), "#!/bin/sh\nexit 3\n")

	manifestDir := t.TempDir()
	writeManifest(t, manifestDir, "disk-lenient", `{"script":"disk-lenient","valid_exit_codes":[0,3]}`)

	audit, err := auditlog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	g := guard.NewRegistry()
	o := orchestrator.New(bin, g, manifest.NewStore(manifestDir), refusal.NewGate(false), audit)
	ic := installerctx.New("run-1", g, audit)

	c, err := script.NewDiskMountContract(script.DiskMountOptions{Partition: "/dev/sda2", Target: "/mnt"})
	require.NoError(t, err)
	c = c.Confirm()

	out, err := o.RunScript(context.Background(), ic, "disk", "disk-lenient", c)
	require.NoError(t, err)
	assert.Equal(t, script.ClassificationSuccess, out.Classification)
	assert.Equal(t, 3, out.ExitCode)
}

func writeExecutableScript(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}
