// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package script

import "github.com/google/shlex"

// NewAdHocContract builds a Contract for the `tools <category> <operation>`
// CLI surface, where the caller supplies a single free-form argument
// string instead of a typed options struct. rawArgs is split into a CLI
// vector with shlex, the same splitting convention archkit's own
// exec-adjacent tooling uses elsewhere, so a tool invocation's quoting
// behaves the way a shell caller expects.
//
// Unlike the family builders in families.go, an ad-hoc contract's
// destructive classification and confirmation variable are not fixed at
// the Go type level — they come from the script's own manifest, which
// the tools command loads before calling this constructor. This is the
// one place in the package where that classification is supplied by the
// caller rather than baked into a builder, and it exists only because
// the tools surface is inherently untyped: there is no family builder
// for an arbitrary, manifest-declared script.
func NewAdHocContract(family Family, scriptID string, rawArgs string, env map[string]string, destructive bool, confirmVar string) (*Contract, error) {
	args, err := shlex.Split(rawArgs)
	if err != nil {
		return nil, err
	}

	envCopy := make(map[string]string, len(env))
	for k, v := range env {
		envCopy[k] = v
	}

	return &Contract{
		ScriptID:    scriptID,
		Family:      family,
		args:        args,
		env:         envCopy,
		Destructive: destructive,
		ConfirmVar:  confirmVar,
	}, nil
}
