// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"archkit.sh/cmdfactory"
	"archkit.sh/config"
	"archkit.sh/internal/installerctx"
	"archkit.sh/manifest"
	"archkit.sh/orchestrator"
	"archkit.sh/refusal"
	"archkit.sh/script"
	"archkit.sh/utils"
)

// toolCategories lists every worker family the tools command tree
// exposes, one subcommand per family as §6's "tools <category>
// <operation> [flags]" surface names them.
var toolCategories = []script.Family{
	script.FamilyDisk,
	script.FamilyNetwork,
	script.FamilyUser,
	script.FamilySystem,
	script.FamilyInstallation,
}

// ToolCommand runs exactly one ad-hoc Script Contract outside of a
// full install run, through the same Manifest Validator and Refusal
// Gate path an install stage uses. It never advances or even creates
// an Install Stage Machine: a tool invocation is a one-off, not a
// stage.
type ToolCommand struct {
	Category string `noattribute:"true"`

	Args    string   `long:"args" usage:"free-form CLI argument string passed to the worker, split the way a shell would split it"`
	Env     []string `long:"env" split:"false" usage:"KEY=VALUE environment entry to pass to the worker; may be repeated"`
	Confirm bool     `long:"confirm" usage:"set this operation's confirmation variable to \"yes\"; required for a destructive operation to run for real"`
}

// NewToolsCommand builds the "tools" subcommand tree: one child
// command per worker family, each taking the operation's script
// identifier as its sole positional argument.
func NewToolsCommand() (*cobra.Command, error) {
	root := &cobra.Command{
		Use:   "tools",
		Short: "invoke a single worker operation outside of a full install run",
		Long: heredoc.Doc(`
			tools runs one ad-hoc Script Contract by family and script
			identifier, through the same manifest validation and refusal
			gate as an install stage, without driving the install state
			machine.
		`),
	}

	for _, family := range toolCategories {
		family := family
		sub, err := cmdfactory.New(&ToolCommand{Category: string(family)}, cobra.Command{
			Use:   string(family) + " <operation>",
			Short: fmt.Sprintf("run a %s-family worker operation", family),
			Args:  cmdfactory.ExactArgs(1, "expected exactly one operation name"),
		})
		if err != nil {
			return nil, err
		}
		root.AddCommand(sub)
	}

	return root, nil
}

func (t *ToolCommand) Run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.G(ctx)
	ic := installerctx.FromContext(ctx)

	scriptID := args[0]
	family := script.Family(t.Category)

	manifests := manifest.NewStore(cfg.Paths.Manifests)
	m, err := manifests.Load(scriptID)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	env := make(map[string]string, len(t.Env))
	for _, kv := range t.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("tools: --env entry %q is not in KEY=VALUE form", kv)
		}
		env[k] = v
	}

	c, err := script.NewAdHocContract(family, scriptID, t.Args, env, m.Destructive, m.RequiredConfirmation)
	if err != nil {
		return fmt.Errorf("tools: building contract: %w", err)
	}

	if t.Confirm {
		c = c.Confirm()
	}

	dryRun := cfg.DryRun
	gate := refusal.NewGate(dryRun)
	orch := orchestrator.New(cfg.Paths.Workers, ic.Guard, manifests, gate, ic.Audit)

	grace := time.Duration(cfg.TerminateGrace) * time.Second

	out, err := orch.RunScript(ctx, ic, string(family), scriptID, c)
	if err != nil {
		_ = ic.Guard.TerminateAll(grace)
		return err
	}

	fmt.Print(out.Stdout)
	if out.Stderr != "" {
		fmt.Print(out.Stderr)
	}

	if !out.DryRun {
		fmt.Printf("%s/%s finished in %s\n", family, scriptID, utils.HumanizeDuration(out.Duration))
	}

	if out.Classification != script.ClassificationSuccess && out.Classification != script.ClassificationSkipped {
		return fmt.Errorf("tools: %s/%s failed (exit %d)", family, scriptID, out.ExitCode)
	}

	return nil
}
