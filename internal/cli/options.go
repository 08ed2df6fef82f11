// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package cli wires together the pieces every archkit subcommand
// needs before it runs: configuration, logging, IO streams, the
// Process Guard, and the audit trail. Options are applied in the order
// given, each one filling in only what is not already set, the same
// idiom cmdfactory's command tree is built with.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"archkit.sh/auditlog"
	"archkit.sh/cmdfactory"
	"archkit.sh/config"
	"archkit.sh/guard"
	"archkit.sh/iostreams"
	"archkit.sh/log"
)

// CliOptions collects the shared runtime dependencies a command may
// need.
type CliOptions struct {
	IOStreams     *iostreams.IOStreams
	Logger        *logrus.Logger
	ConfigManager *config.ConfigManager
	Guard         *guard.Registry
	Audit         *auditlog.Log
}

// CliOption configures a CliOptions.
type CliOption func(*CliOptions) error

// WithDefaultConfigManager instantiates the configuration manager from
// the on-disk config file and attributes its fields as command-line
// flags.
func WithDefaultConfigManager(cmd *cobra.Command) CliOption {
	return func(copts *CliOptions) error {
		if copts.ConfigManager != nil {
			return nil
		}

		cfg, err := config.NewDefaultConfig()
		if err != nil {
			return err
		}

		cfgm, err := config.NewConfigManager(
			cfg,
			config.WithFile(config.DefaultConfigFile(), true),
		)
		if err != nil {
			return err
		}

		cmdfactory.AttributeFlags(cmd, cfgm.Config, os.Args...)

		if cpath := cfg.Paths.Config; cpath != "" && cpath != config.ConfigDir() {
			cfgm, err = config.NewConfigManager(
				cfg,
				config.WithFile(filepath.Join(cpath, "config.yaml"), true),
			)
			if err != nil {
				return err
			}
		}

		copts.ConfigManager = cfgm

		return nil
	}
}

// WithDefaultLogger sets up a logger whose format and level follow the
// configuration manager, falling back to the package default logger
// when no configuration is available.
func WithDefaultLogger() CliOption {
	return func(copts *CliOptions) error {
		if copts.Logger != nil {
			return nil
		}

		if copts.ConfigManager == nil {
			copts.Logger = log.L
			return nil
		}

		logger := logrus.New()
		cfg := copts.ConfigManager.Config

		switch log.LoggerTypeFromString(cfg.Log.Type) {
		case log.QUIET:
			logger.Formatter = new(logrus.TextFormatter)

		case log.JSON:
			formatter := new(logrus.JSONFormatter)
			formatter.DisableTimestamp = !cfg.Log.Timestamps
			logger.Formatter = formatter

		default: // BASIC, FANCY
			formatter := new(log.TextFormatter)
			formatter.FullTimestamp = true
			formatter.DisableTimestamp = true
			if cfg.Log.Timestamps {
				formatter.DisableTimestamp = false
			} else {
				formatter.TimestampFormat = ">"
			}
			logger.Formatter = formatter
		}

		if level, ok := log.Levels()[cfg.Log.Level]; ok {
			logger.Level = level
		} else {
			logger.Level = logrus.InfoLevel
		}

		if copts.IOStreams != nil {
			logger.SetOutput(copts.IOStreams.Out)
		}

		copts.Logger = logger

		return nil
	}
}

// WithDefaultIOStreams binds the process's own standard streams.
func WithDefaultIOStreams() CliOption {
	return func(copts *CliOptions) error {
		if copts.IOStreams != nil {
			return nil
		}
		copts.IOStreams = iostreams.System()
		return nil
	}
}

// WithDefaultGuard instantiates an empty Child Registry.
func WithDefaultGuard() CliOption {
	return func(copts *CliOptions) error {
		if copts.Guard != nil {
			return nil
		}
		copts.Guard = guard.NewRegistry()
		return nil
	}
}

// WithDefaultAuditLog opens the audit trail at the configured audit
// path.
func WithDefaultAuditLog() CliOption {
	return func(copts *CliOptions) error {
		if copts.Audit != nil {
			return nil
		}

		if copts.ConfigManager == nil {
			return fmt.Errorf("cannot access config manager")
		}

		path := copts.ConfigManager.Config.Paths.Audit
		if path == "" {
			return fmt.Errorf("no audit path configured")
		}

		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}

		l, err := auditlog.Open(path)
		if err != nil {
			return err
		}

		copts.Audit = l

		return nil
	}
}
