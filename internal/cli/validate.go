// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package cli

import (
	"errors"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"archkit.sh/cmdfactory"
	"archkit.sh/instconfig"
	"archkit.sh/log"
	"archkit.sh/utils"
)

// ValidateCommand itemises every problem with a persisted install
// configuration document without ever constructing a Device Plan's
// destructive half or touching the Process Guard. It exists so a
// caller can check a document before it is ever handed to install.
type ValidateCommand struct{}

// NewValidateCommand builds the "validate" subcommand.
func NewValidateCommand() (*cobra.Command, error) {
	return cmdfactory.New(&ValidateCommand{}, cobra.Command{
		Use:   "validate <path>",
		Short: "itemise every problem with a persisted install configuration document",
		Args:  cmdfactory.ExactArgs(1, "validate requires exactly one path argument"),
		Long: heredoc.Doc(`
			validate runs a persisted install configuration document through
			the same schema and Device Plan consistency checks the install
			command applies before it ever reaches a destructive stage.
		`),
	})
}

func (v *ValidateCommand) Run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := log.FromContext(ctx)

	path := args[0]

	doc, err := instconfig.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	var problems instconfig.ValidationErrors

	if err := doc.Validate(); err != nil {
		var docErrs instconfig.ValidationErrors
		if errors.As(err, &docErrs) {
			problems = append(problems, docErrs...)
		} else {
			problems = append(problems, err)
		}
	}

	if _, err := doc.Resolve(); err != nil {
		problems = append(problems, err)
	}

	if len(problems) == 0 {
		if logger != nil {
			logger.Infof("%s: valid", path)
		}
		fmt.Printf("%s: valid\n", path)
		return nil
	}

	fmt.Printf("%s: %s found:\n", path, utils.Pluralize(len(problems), "problem"))
	for _, p := range problems {
		fmt.Printf("  - %s\n", p.Error())
	}

	return fmt.Errorf("validate: %s failed validation", path)
}
