// SPDX-License-Identifier: BSD-3-Clause
//
// Authors: Alexander Jung <alex@unikraft.io>
//
// Copyright (c) 2022, Unikraft GmbH.  All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the names of its
//    contributors may be used to endorse or promote products derived from
//    this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package config holds archkit's own tool settings: log verbosity and
// format, where state/secret/audit directories live, and the default
// grace period given to worker scripts during termination.  It is
// distinct from the instconfig package, which persists the Device Plan
// and related install-target settings chosen for a particular run.
package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
)

type Config struct {
	NoPrompt bool `json:"no_prompt" yaml:"no_prompt" env:"ARCHKIT_NO_PROMPT" default:"false"`
	DryRun   bool `json:"dry_run"   yaml:"dry_run"   env:"ARCHKIT_DRY_RUN"   default:"false"`

	TerminateGrace int `json:"terminate_grace" yaml:"terminate_grace" env:"ARCHKIT_TERMINATE_GRACE" default:"5"`

	Paths struct {
		Config   string `json:"config"   yaml:"config,omitempty"   env:"ARCHKIT_PATHS_CONFIG"`
		State    string `json:"state"    yaml:"state,omitempty"    env:"ARCHKIT_PATHS_STATE"`
		Secrets  string `json:"secrets"  yaml:"secrets,omitempty"  env:"ARCHKIT_PATHS_SECRETS"`
		Audit    string `json:"audit"    yaml:"audit,omitempty"    env:"ARCHKIT_PATHS_AUDIT"`
		Manifests string `json:"manifests" yaml:"manifests,omitempty" env:"ARCHKIT_PATHS_MANIFESTS"`
		Workers  string `json:"workers"  yaml:"workers,omitempty"  env:"ARCHKIT_PATHS_WORKERS"`
	} `json:"paths" yaml:"paths,omitempty"`

	Log struct {
		Level      string `json:"level"      yaml:"level"      env:"ARCHKIT_LOG_LEVEL"      default:"info"`
		Timestamps bool   `json:"timestamps" yaml:"timestamps" env:"ARCHKIT_LOG_TIMESTAMPS" default:"false"`
		Type       string `json:"type"       yaml:"type"       env:"ARCHKIT_LOG_TYPE"       default:"fancy"`
	} `json:"log" yaml:"log"`
}

type ConfigDetail struct {
	Key           string
	Description   string
	AllowedValues []string
}

var configDetails = []ConfigDetail{
	{
		Key:         "no_prompt",
		Description: "toggle interactive confirmation prompting in the terminal",
	},
	{
		Key:         "dry_run",
		Description: "default every install run to dry-run unless overridden on the command line",
	},
	{
		Key:         "terminate_grace",
		Description: "seconds given to a worker's process group to exit politely before it is killed",
	},
	{
		Key:         "log.level",
		Description: "set the logging verbosity",
		AllowedValues: []string{
			"fatal",
			"error",
			"warn",
			"info",
			"debug",
			"trace",
		},
	},
	{
		Key:         "log.type",
		Description: "set the log rendering style",
		AllowedValues: []string{
			"quiet",
			"basic",
			"fancy",
			"json",
		},
	},
	{
		Key:         "log.timestamps",
		Description: "show timestamps with log output",
	},
}

func ConfigDetails() []ConfigDetail {
	return configDetails
}

func NewDefaultConfig() (*Config, error) {
	c := &Config{}

	if err := setDefaults(c); err != nil {
		return nil, fmt.Errorf("could not set defaults for config: %s", err)
	}

	if len(c.Paths.Config) == 0 {
		c.Paths.Config = ConfigDir()
	}

	if len(c.Paths.State) == 0 {
		c.Paths.State = StateDir()
	}

	if len(c.Paths.Secrets) == 0 {
		c.Paths.Secrets = filepath.Join(c.Paths.State, "secrets")
	}

	if len(c.Paths.Audit) == 0 {
		c.Paths.Audit = filepath.Join(c.Paths.State, "audit")
	}

	if len(c.Paths.Manifests) == 0 {
		c.Paths.Manifests = filepath.Join(c.Paths.Config, "manifests")
	}

	if len(c.Paths.Workers) == 0 {
		c.Paths.Workers = "/usr/lib/archkit/workers"
	}

	return c, nil
}

func setDefaults(s interface{}) error {
	return setDefaultValue(reflect.ValueOf(s), "")
}

func setDefaultValue(v reflect.Value, def string) error {
	if v.Kind() != reflect.Ptr {
		return fmt.Errorf("not a pointer value")
	}

	v = reflect.Indirect(v)

	switch v.Kind() {
	case reflect.Int:
		if len(def) > 0 {
			i, err := strconv.ParseInt(def, 10, 64)
			if err != nil {
				return fmt.Errorf("could not parse default integer value: %s", err)
			}
			v.SetInt(i)
		}

	case reflect.String:
		if len(def) > 0 {
			v.SetString(def)
		}

	case reflect.Bool:
		if len(def) > 0 {
			b, err := strconv.ParseBool(def)
			if err != nil {
				return fmt.Errorf("could not parse default boolean value: %s", err)
			}
			v.SetBool(b)
		} else {
			v.SetBool(false)
		}

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := setDefaultValue(
				v.Field(i).Addr(),
				v.Type().Field(i).Tag.Get("default"),
			); err != nil {
				return err
			}
		}

	default:
		return nil
	}

	return nil
}
