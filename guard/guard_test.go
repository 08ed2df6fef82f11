// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archkit.sh/guard"
)

func TestSpawnRegistersAndReaps(t *testing.T) {
	r := guard.NewRegistry()

	h, err := r.Spawn(context.Background(), guard.SpawnSpec{
		Bin:  "/bin/sh",
		Args: []string{"-c", "exit 0"},
	})
	require.NoError(t, err)
	require.NotNil(t, h)

	err = h.Wait()
	assert.NoError(t, err)
	assert.True(t, h.Exited())
}

func TestTerminateAllIsIdempotentOnEmptyRegistry(t *testing.T) {
	r := guard.NewRegistry()
	assert.NoError(t, r.TerminateAll(time.Second))
	assert.NoError(t, r.TerminateAll(time.Second))
}

func TestTerminateAllConcurrentCallReturnsImmediately(t *testing.T) {
	r := guard.NewRegistry()

	_, err := r.Spawn(context.Background(), guard.SpawnSpec{
		Bin:  "/bin/sleep",
		Args: []string{"30"},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = r.TerminateAll(500 * time.Millisecond)
		close(done)
	}()

	// Give the first call time to start signaling before the second
	// arrives; the second must return without blocking on the first's
	// grace period.
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	assert.NoError(t, r.TerminateAll(500*time.Millisecond))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	<-done
}

func TestChildNeverInheritsAmbientEnvironment(t *testing.T) {
	t.Setenv("ARCHKIT_TEST_AMBIENT_LEAK", "leaked")

	r := guard.NewRegistry()

	h, err := r.Spawn(context.Background(), guard.SpawnSpec{
		Bin:  "/bin/sh",
		Args: []string{"-c", `test -z "$ARCHKIT_TEST_AMBIENT_LEAK"`},
	})
	require.NoError(t, err)
	assert.NoError(t, h.Wait())
}

func TestTerminateAllKillsLongRunningChild(t *testing.T) {
	r := guard.NewRegistry()

	h, err := r.Spawn(context.Background(), guard.SpawnSpec{
		Bin:  "/bin/sleep",
		Args: []string{"30"},
	})
	require.NoError(t, err)

	err = r.TerminateAll(200 * time.Millisecond)
	assert.NoError(t, err)
	assert.True(t, h.Exited())
}
