// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package cli

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"archkit.sh/cmdfactory"
	"archkit.sh/internal/installerctx"
	"archkit.sh/utils"
)

// AuditCommand replays the durable audit trail for one run ID. It is
// a read-only post-mortem tool: it never touches the Install State
// Machine or the Process Guard, only the Badger-backed log the
// orchestrator appends to as a side effect of a real run.
type AuditCommand struct{}

// NewAuditCommand builds the "audit" subcommand.
func NewAuditCommand() (*cobra.Command, error) {
	return cmdfactory.New(&AuditCommand{}, cobra.Command{
		Use:   "audit <run-id>",
		Short: "list the durable audit trail recorded for one run",
		Args:  cmdfactory.ExactArgs(1, "audit requires exactly one run ID argument"),
		Long: heredoc.Doc(`
			audit replays every stage transition, script output, and refusal
			recorded for a run ID, in the order the orchestrator appended
			them. It never consults this history to make a decision; it
			only exists for after-the-fact inspection of a run that has
			already finished, one way or another.
		`),
	})
}

func (a *AuditCommand) Run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ic := installerctx.FromContext(ctx)

	if ic.Audit == nil {
		return fmt.Errorf("audit: no audit log configured")
	}

	runID := args[0]

	entries, err := ic.Audit.List(runID)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	if len(entries) == 0 {
		fmt.Printf("%s: no entries recorded\n", runID)
		return nil
	}

	now := entries[len(entries)-1].Timestamp
	fmt.Printf("%s: %s\n", runID, utils.Pluralize(len(entries), "entry"))
	for _, e := range entries {
		age := utils.FuzzyAgoAbbr(now, e.Timestamp)
		switch e.Kind {
		case "stage_transition":
			fmt.Printf("  [%4s ago] stage -> %s\n", age, e.Stage)
		case "script_output":
			fmt.Printf("  [%4s ago] %s/%s exit=%d %s\n", age, e.Stage, e.Script, e.ExitCode, e.Detail)
		case "refusal":
			fmt.Printf("  [%4s ago] refused %s/%s: %s\n", age, e.Stage, e.Script, e.Detail)
		case "failure":
			fmt.Printf("  [%4s ago] stage %s failed: %s\n", age, e.Stage, e.Detail)
		default:
			fmt.Printf("  [%4s ago] %s\n", age, e.Detail)
		}
	}

	return nil
}
