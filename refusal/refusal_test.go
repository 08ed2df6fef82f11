// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package refusal_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archkit.sh/refusal"
	"archkit.sh/script"
)

func TestDryRunSkipsDestructiveContractWithoutConfirmation(t *testing.T) {
	c, err := script.NewDiskWipeContract(script.DiskWipeOptions{Target: "/dev/sda", Strategy: "simple"})
	require.NoError(t, err)

	g := refusal.NewGate(true)
	assert.True(t, g.Skip(c))
	assert.NoError(t, g.Evaluate(c))
}

func TestEvaluateRefusesWithoutExplicitConfirmation(t *testing.T) {
	c, err := script.NewDiskWipeContract(script.DiskWipeOptions{Target: "/dev/sda", Strategy: "simple"})
	require.NoError(t, err)

	g := refusal.NewGate(false)
	err = g.Evaluate(c)
	require.Error(t, err)

	var refused *refusal.RefusalError
	assert.ErrorAs(t, err, &refused)
}

// fakeDestructive lets this package exercise gate decisions against
// confirmation values a real builder would never be asked to produce.
type fakeDestructive struct {
	confirmVar string
	env        map[string]string
}

func (f fakeDestructive) Env(key string) (string, bool) { v, ok := f.env[key]; return v, ok }
func (f fakeDestructive) IsDestructive() bool           { return true }
func (f fakeDestructive) ConfirmationVar() string       { return f.confirmVar }
func (f fakeDestructive) ScriptName() string            { return "disk-wipe" }

func TestEvaluateRefusesNonYesConfirmationValue(t *testing.T) {
	c := fakeDestructive{
		confirmVar: "ARCHKIT_CONFIRM_WIPE",
		env:        map[string]string{"ARCHKIT_CONFIRM_WIPE": "true"},
	}

	g := refusal.NewGate(false)
	err := g.Evaluate(c)
	require.Error(t, err)

	var refused *refusal.RefusalError
	assert.ErrorAs(t, err, &refused)
}

func TestEvaluatePassesNonDestructiveContract(t *testing.T) {
	c, err := script.NewNetworkConfigureContract(script.NetworkConfigureOptions{Interface: "auto", DHCP: true})
	require.NoError(t, err)

	g := refusal.NewGate(false)
	assert.NoError(t, g.Evaluate(c))
}

func TestCheckForeignESPRefuses(t *testing.T) {
	err := refusal.CheckForeignESP(func() (bool, error) { return true, nil })
	assert.ErrorIs(t, err, refusal.ErrExistingForeignESP)
}

func TestCheckForeignESPPropagatesProbeError(t *testing.T) {
	boom := errors.New("boom")
	err := refusal.CheckForeignESP(func() (bool, error) { return false, boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
