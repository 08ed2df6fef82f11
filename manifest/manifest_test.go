// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archkit.sh/manifest"
)

type fakeContract map[string]string

func (f fakeContract) Env(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

func (f fakeContract) EnvVector() []string {
	out := make([]string, 0, len(f))
	for k, v := range f {
		out = append(out, k+"="+v)
	}
	return out
}

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644))
}

func TestLoadCachesAfterFirstRead(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "disk-mount", `{"script":"disk-mount"}`)

	s := manifest.NewStore(dir)

	m1, err := s.Load("disk-mount")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "disk-mount.json")))

	m2, err := s.Load("disk-mount")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}

func TestLoadUnknownScript(t *testing.T) {
	s := manifest.NewStore(t.TempDir())
	_, err := s.Load("does-not-exist")
	require.Error(t, err)

	var unknown *manifest.UnknownScriptError
	assert.ErrorAs(t, err, &unknown)
}

func TestValidateMissingRequired(t *testing.T) {
	m := &manifest.Manifest{
		Script:      "disk-wipe",
		RequiredEnv: []manifest.RequiredEnv{{Name: "ARCHKIT_TARGET_DEVICE"}},
	}

	err := manifest.Validate(fakeContract{}, m)
	require.Error(t, err)

	var missing *manifest.MissingRequiredError
	assert.ErrorAs(t, err, &missing)
}

func TestValidatePatternMismatch(t *testing.T) {
	m := &manifest.Manifest{
		Script: "disk-wipe",
		RequiredEnv: []manifest.RequiredEnv{
			{Name: "ARCHKIT_TARGET_DEVICE", Pattern: `^/dev/`},
		},
	}

	err := manifest.Validate(fakeContract{"ARCHKIT_TARGET_DEVICE": "not-a-device"}, m)
	require.Error(t, err)

	var mismatch *manifest.PatternMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestValidateLeavesConfirmationToTheRefusalGate(t *testing.T) {
	m := &manifest.Manifest{
		Script:               "disk-wipe",
		Destructive:          true,
		RequiredConfirmation: "ARCHKIT_CONFIRM_WIPE",
	}

	// An unconfirmed destructive contract still validates: whether it
	// may run is the Refusal Gate's decision, after the dry-run path
	// has had its chance to synthesize a skip.
	assert.NoError(t, manifest.Validate(fakeContract{}, m))
}

func TestValidatePasses(t *testing.T) {
	m := &manifest.Manifest{
		Script:               "disk-wipe",
		Destructive:          true,
		RequiredConfirmation: "ARCHKIT_CONFIRM_WIPE",
		RequiredEnv: []manifest.RequiredEnv{
			{Name: "ARCHKIT_TARGET_DEVICE", Pattern: `^/dev/`},
		},
	}

	err := manifest.Validate(fakeContract{
		"ARCHKIT_TARGET_DEVICE": "/dev/sda",
		"ARCHKIT_CONFIRM_WIPE":  "yes",
	}, m)
	assert.NoError(t, err)
}

func TestLoadRejectsNeedsStdin(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bad-worker", `{"script":"bad-worker","needs_stdin":true}`)

	s := manifest.NewStore(dir)
	_, err := s.Load("bad-worker")
	require.Error(t, err)
}

func TestResolveEnvAppliesOptionalDefaultsWithoutOverridingExplicitValues(t *testing.T) {
	m := &manifest.Manifest{
		Script: "network-configure",
		OptionalEnv: []manifest.OptionalEnv{
			{Name: "ARCHKIT_DHCP_TIMEOUT", Default: "30"},
			{Name: "ARCHKIT_MTU", Default: "1500"},
		},
	}

	c := fakeContract{"ARCHKIT_MTU": "9000"}

	env := manifest.ResolveEnv(c, m)
	assert.Contains(t, env, "ARCHKIT_DHCP_TIMEOUT=30")
	assert.Contains(t, env, "ARCHKIT_MTU=9000")
	assert.NotContains(t, env, "ARCHKIT_MTU=1500")
}
