// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package refusal implements the Refusal Gate: the last checkpoint a
// destructive contract passes through before the Process Guard ever
// forks it. It evaluates exactly two ordered paths — dry-run synthesis,
// then environment confirmation — and never falls back to an ambiently
// inherited confirmation value; a confirmation variable has to have
// been placed on the contract's own, explicitly-built environment.
package refusal

import (
	"errors"
	"fmt"
)

// RefusalError is returned when a destructive contract fails the gate.
// It is always a terminal condition for the stage that produced the
// contract; the orchestrator never retries past it.
type RefusalError struct {
	Script string
	Reason string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("refused to run %q: %s", e.Script, e.Reason)
}

// ErrExistingForeignESP is returned by CheckForeignESP when an EFI
// System Partition not created by this run is present on a target
// disk. This is promoted to a first-class refusal rule: archkit never
// silently shares or repurposes another installation's ESP.
var ErrExistingForeignESP = errors.New("refusal: existing foreign EFI system partition detected on target disk")

// contract is the minimal view the gate needs, kept narrow to avoid an
// import cycle with package script.
type contract interface {
	Env(key string) (string, bool)
}

// destructiveContract additionally exposes the fields a gate decision
// depends on.
type destructiveContract interface {
	contract
	IsDestructive() bool
	ConfirmationVar() string
	ScriptName() string
}

// Gate is the Refusal Gate. DryRun short-circuits every destructive
// contract into a synthetic skip before anything is spawned.
type Gate struct {
	DryRun bool
}

// NewGate returns a gate configured for the given run.
func NewGate(dryRun bool) *Gate {
	return &Gate{DryRun: dryRun}
}

// Skip reports whether c should be synthesized as a dry-run skip
// rather than spawned. It is the gate's first path and takes priority
// over confirmation: a dry run never asks for confirmation, since
// nothing destructive is ever going to happen.
func (g *Gate) Skip(c destructiveContract) bool {
	return g.DryRun && c.IsDestructive()
}

// Evaluate runs the gate's second path: for a destructive, non-dry-run
// contract, it requires the confirmation value under the contract's
// own declared ConfirmationVar to be exactly "yes". It never looks at
// the process's inherited environment directly — only at what the
// caller explicitly placed on the contract — so a CONFIRM_* variable
// merely present in the shell can never satisfy it.
func (g *Gate) Evaluate(c destructiveContract) error {
	if !c.IsDestructive() {
		return nil
	}

	if g.Skip(c) {
		return nil
	}

	confirmVar := c.ConfirmationVar()
	if confirmVar == "" {
		return &RefusalError{Script: c.ScriptName(), Reason: "contract is destructive but declares no confirmation variable"}
	}

	val, ok := c.Env(confirmVar)
	if !ok || val != "yes" {
		return &RefusalError{Script: c.ScriptName(), Reason: fmt.Sprintf("confirmation variable %s was not explicitly set to \"yes\"", confirmVar)}
	}

	return nil
}

// ESPProbe reports whether a foreign EFI System Partition exists on
// the disk a Device Plan targets.
type ESPProbe func() (foreign bool, err error)

// CheckForeignESP runs probe and turns a positive result into
// ErrExistingForeignESP. It is called once per destructive
// PartitioningDisk stage, before the disk-wipe contract is ever built.
func CheckForeignESP(probe ESPProbe) error {
	foreign, err := probe()
	if err != nil {
		return fmt.Errorf("refusal: probing for foreign ESP: %w", err)
	}
	if foreign {
		return ErrExistingForeignESP
	}
	return nil
}
