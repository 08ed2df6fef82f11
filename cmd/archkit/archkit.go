// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Command archkit is the control core of an unattended Arch Linux
// installer and administration toolkit. It supervises the privileged
// worker scripts that partition disks, encrypt volumes, build
// filesystems, install packages, and configure a target system, and
// guarantees that none of them survives the supervisor.
package main

import (
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"archkit.sh/cmdfactory"
	"archkit.sh/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	root, err := cmdfactory.New(nil, cobra.Command{
		Use:   "archkit [FLAGS] SUBCOMMAND",
		Short: "supervise an unattended Arch Linux installation",
		Long: heredoc.Doc(`
			archkit drives a fixed installation stage sequence by spawning
			privileged worker scripts, one typed contract at a time, and
			guarantees that no worker outlives the supervisor.
		`),
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	})
	if err != nil {
		panic(err)
	}

	install, err := cli.NewInstallCommand()
	if err != nil {
		panic(err)
	}
	root.AddCommand(install)

	validate, err := cli.NewValidateCommand()
	if err != nil {
		panic(err)
	}
	root.AddCommand(validate)

	tools, err := cli.NewToolsCommand()
	if err != nil {
		panic(err)
	}
	root.AddCommand(tools)

	audit, err := cli.NewAuditCommand()
	if err != nil {
		panic(err)
	}
	root.AddCommand(audit)

	return cli.Main(root)
}
