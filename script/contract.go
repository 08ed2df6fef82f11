// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package script defines the Script Contract: an immutable description
// of a single worker invocation — which script, what arguments, what
// environment, and whether it is destructive — built by a typed,
// per-family constructor rather than assembled ad hoc at call sites.
package script

import (
	"fmt"
	"sort"

	"archkit.sh/exec"
)

// Family names the class of worker a contract belongs to; it doubles
// as the subdirectory the worker binary is resolved from.
type Family string

const (
	FamilyDisk         Family = "disk"
	FamilyNetwork      Family = "network"
	FamilyUser         Family = "user"
	FamilySystem       Family = "system"
	FamilyInstallation Family = "installation"
)

// Contract is the immutable, fully-resolved description of one worker
// invocation. Construct one through a family-specific builder, never
// by hand, so every contract is guaranteed to carry the fields its
// manifest expects.
type Contract struct {
	ScriptID    string
	Family      Family
	args        []string
	env         map[string]string
	Destructive bool
	ConfirmVar  string
}

// CLIVector returns the argument vector a worker is invoked with.
func (c *Contract) CLIVector() []string {
	out := make([]string, len(c.args))
	copy(out, c.args)
	return out
}

// EnvVector returns the "KEY=VALUE" environment vector a worker is
// invoked with, in stable, sorted order so output is deterministic for
// the audit log.
func (c *Contract) EnvVector() []string {
	keys := make([]string, 0, len(c.env))
	for k := range c.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, c.env[k]))
	}
	return out
}

// Env returns the value of an environment entry and whether it was
// set, without exposing the underlying map for mutation.
func (c *Contract) Env(key string) (string, bool) {
	v, ok := c.env[key]
	return v, ok
}

// IsDestructive reports whether this contract requires refusal-gate
// confirmation before it may be spawned.
func (c *Contract) IsDestructive() bool {
	return c.Destructive
}

// ConfirmationVar returns the environment variable name the refusal
// gate must find set on this contract before it may be spawned.
func (c *Contract) ConfirmationVar() string {
	return c.ConfirmVar
}

// ScriptName returns the script identifier, for use in error messages.
func (c *Contract) ScriptName() string {
	return c.ScriptID
}

// Confirm returns a copy of c with its confirmation variable set to
// "yes". It is the only legal way to move a destructive contract past
// the Refusal Gate; callers must only reach for it once the external
// UI collaborator has obtained a user-visible confirmation for this
// specific operation. Calling Confirm on a non-destructive contract
// returns an unchanged copy.
func (c *Contract) Confirm() *Contract {
	cp := *c
	cp.env = make(map[string]string, len(c.env)+1)
	for k, v := range c.env {
		cp.env[k] = v
	}
	if c.ConfirmVar != "" {
		cp.env[c.ConfirmVar] = "yes"
	}
	return &cp
}

// builder accumulates a contract under construction. Family-specific
// constructors in this package populate one from a typed options
// struct via exec.ParseInterfaceArgs, then call build.
type builder struct {
	scriptID    string
	family      Family
	env         map[string]string
	destructive bool
	confirmVar  string
}

func newBuilder(family Family, scriptID string) *builder {
	return &builder{
		scriptID: scriptID,
		family:   family,
		env:      make(map[string]string),
	}
}

func (b *builder) withEnv(key, val string) *builder {
	b.env[key] = val
	return b
}

func (b *builder) withConfirmation(envVar string) *builder {
	b.destructive = true
	b.confirmVar = envVar
	return b
}

// argsFromOptions renders a CLI argument vector from a tagged options
// struct, the same reflect-driven convention archkit's own exec layer
// uses to shell out to other tools.
func argsFromOptions(opts interface{}) ([]string, error) {
	args, err := exec.ParseInterfaceArgs(opts)
	if err != nil {
		return nil, fmt.Errorf("script: rendering arguments: %w", err)
	}
	return args, nil
}

func (b *builder) build(opts interface{}) (*Contract, error) {
	args, err := argsFromOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Contract{
		ScriptID:    b.scriptID,
		Family:      b.family,
		args:        args,
		env:         b.env,
		Destructive: b.destructive,
		ConfirmVar:  b.confirmVar,
	}, nil
}
