// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package secret_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archkit.sh/secret"
)

func TestEnvSecretEnvVector(t *testing.T) {
	s := secret.NewEnvSecret("ARCHKIT_SECRET_x", "hunter2")
	assert.Equal(t, []string{"ARCHKIT_SECRET_x=hunter2"}, s.EnvVector())
	assert.NoError(t, s.Release())
}

func TestEnvSecretLogFieldsNeverExposeValue(t *testing.T) {
	s := secret.NewEnvSecret("ARCHKIT_SECRET_x", "hunter2")
	fields := s.LogFields()
	for _, v := range fields {
		assert.NotContains(t, v, "hunter2")
	}
}

func TestKeyfileSecretWritesOwnerOnlyFile(t *testing.T) {
	dir := t.TempDir()

	s, err := secret.NewKeyfileSecret(dir, "root-pass", "ARCHKIT_SECRET_root", "hunter2")
	require.NoError(t, err)

	ev := s.EnvVector()
	require.Len(t, ev, 1)

	path := filepath.Join(dir, "root-pass")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, s.Release())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestKeyfileSecretReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s, err := secret.NewKeyfileSecret(dir, "root-pass", "ARCHKIT_SECRET_root", "hunter2")
	require.NoError(t, err)

	require.NoError(t, s.Release())
	assert.NoError(t, s.Release())
}
