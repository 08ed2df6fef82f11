// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"archkit.sh/cmdfactory"
	"archkit.sh/config"
	"archkit.sh/internal/installerctx"
	"archkit.sh/iostreams"
	"archkit.sh/log"
	"archkit.sh/signalbroker"
)

// Main wires the shared CliOptions, installs the signal broker over
// the resulting Child Registry, and dispatches to cmdfactory.Main. It
// is the single entrypoint every archkit subcommand tree shares.
func Main(cmd *cobra.Command) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	copts := &CliOptions{}

	for _, o := range []CliOption{
		WithDefaultConfigManager(cmd),
		WithDefaultIOStreams(),
		WithDefaultLogger(),
		WithDefaultGuard(),
		WithDefaultAuditLog(),
	} {
		if err := o(copts); err != nil {
			fmt.Println(err)
			return 1
		}
	}
	if copts.Audit != nil {
		defer copts.Audit.Close()
	}

	if copts.ConfigManager != nil {
		ctx = config.WithConfigManager(ctx, copts.ConfigManager)
	}
	if copts.Logger != nil {
		ctx = log.WithLogger(ctx, copts.Logger)
	}
	if copts.IOStreams != nil {
		ctx = iostreams.WithIOStreams(ctx, copts.IOStreams)
	}

	grace := 5 * time.Second
	if copts.ConfigManager != nil && copts.ConfigManager.Config.TerminateGrace > 0 {
		grace = time.Duration(copts.ConfigManager.Config.TerminateGrace) * time.Second
	}

	broker := signalbroker.Install(copts.Guard, grace, copts.Logger)
	defer broker.Stop()

	ic := installerctx.New(fmt.Sprintf("run-%s", uuid.New()), copts.Guard, copts.Audit)
	ctx = installerctx.WithContext(ctx, ic)

	// cmdfactory.Main calls os.Exit(1) itself on a command error; it
	// only returns once the command tree has run to completion, so a
	// normal return here always means success.
	cmdfactory.Main(ctx, cmd)
	return 0
}
