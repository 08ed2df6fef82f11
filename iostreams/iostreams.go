// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package iostreams provides the terminal stream abstraction archkit's
// orchestrator writes worker output through.  It is deliberately thin:
// rendering a terminal UI is out of scope, so this package only decides
// where bytes go and whether they may be colorized, never how they are
// laid out.
package iostreams

import (
	"io"
	"os"

	"archkit.sh/utils"
)

type IOStreams struct {
	In     io.ReadCloser
	Out    io.Writer
	ErrOut io.Writer

	colorEnabled bool
	is256enabled bool
	hasTrueColor bool

	stdinTTY  bool
	stdoutTTY bool

	colorScheme *ColorScheme
}

// System returns an IOStreams instance bound to the process's own
// standard streams.
func System() *IOStreams {
	s := &IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}

	s.stdinTTY = utils.IsTerminal(os.Stdin)
	s.stdoutTTY = utils.IsTerminal(os.Stdout)

	s.colorEnabled = !EnvColorDisabled() && (EnvColorForced() || s.stdoutTTY)
	s.is256enabled = Is256ColorSupported()
	s.hasTrueColor = IsTrueColorSupported()

	return s
}

func (s *IOStreams) IsStdinTTY() bool {
	return s.stdinTTY
}

func (s *IOStreams) IsStdoutTTY() bool {
	return s.stdoutTTY
}

func (s *IOStreams) ColorEnabled() bool {
	return s.colorEnabled
}

func (s *IOStreams) ColorScheme() *ColorScheme {
	if s.colorScheme == nil {
		s.colorScheme = NewColorScheme(s.colorEnabled, s.is256enabled, s.hasTrueColor)
	}

	return s.colorScheme
}

// StartPager and StopPager exist so cmdfactory's help renderer can treat
// every IOStreams the same way; archkit never shells out to a pager,
// since rendering is out of scope, so these are no-ops.
func (s *IOStreams) StartPager() error {
	return nil
}

func (s *IOStreams) StopPager() {}
