// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package instconfig loads, validates, and saves the persisted install
// configuration document: the on-disk description of a Device Plan and
// its surrounding system settings that the ValidatingConfig stage
// consumes.
package instconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"archkit.sh/deviceplan"
	"archkit.sh/schema"
)

// Document is the persisted install configuration: a single
// declarative JSON/YAML document covering target disk, partitioning
// strategy, filesystem choices, bootloader, desktop environment,
// locale, timezone, hostname, username, package lists, the encryption
// flag, and matching passwords.
type Document struct {
	Version            string   `json:"version" yaml:"version"`
	Hostname           string   `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Timezone           string   `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Locale             string   `json:"locale,omitempty" yaml:"locale,omitempty"`
	Username           string   `json:"username,omitempty" yaml:"username,omitempty"`
	DesktopEnvironment string   `json:"desktop_environment,omitempty" yaml:"desktop_environment,omitempty"`
	Packages           []string `json:"packages,omitempty" yaml:"packages,omitempty"`

	RootPassword PasswordPair `json:"root_password,omitempty" yaml:"root_password,omitempty"`
	UserPassword PasswordPair `json:"user_password,omitempty" yaml:"user_password,omitempty"`

	// EncryptionPassphrase is only consulted when DevicePlan.EncryptRoot
	// is set. It never reaches a worker's CLI vector or a log record —
	// the install command turns it into a keyfile Secret Carrier and
	// passes only the keyfile's path onward.
	EncryptionPassphrase PasswordPair `json:"encryption_passphrase,omitempty" yaml:"encryption_passphrase,omitempty"`

	DevicePlan DevicePlanDocument `json:"device_plan" yaml:"device_plan"`
}

// PasswordPair holds a password alongside its confirmation entry. The
// two fields never leave the document layer as a single value: a
// mismatch is an itemised validation error, not a silently-accepted
// typo.
type PasswordPair struct {
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Confirm  string `json:"confirm,omitempty" yaml:"confirm,omitempty"`
}

// DevicePlanDocument is the on-disk shape of a deviceplan.Plan; it is
// translated into the validated, immutable in-memory Plan by Resolve.
type DevicePlanDocument struct {
	Strategy     string   `json:"strategy" yaml:"strategy"`
	Disks        []string `json:"disks" yaml:"disks"`
	BootMode     string   `json:"boot_mode" yaml:"boot_mode"`
	Bootloader   string   `json:"bootloader,omitempty" yaml:"bootloader,omitempty"`
	EncryptRoot  bool     `json:"encrypt_root,omitempty" yaml:"encrypt_root,omitempty"`
	SeparateHome bool     `json:"separate_home,omitempty" yaml:"separate_home,omitempty"`
	SwapMiB      int      `json:"swap_mib,omitempty" yaml:"swap_mib,omitempty"`
	ESPMiB       int      `json:"esp_mib,omitempty" yaml:"esp_mib,omitempty"`
	BootMiB      int      `json:"boot_mib,omitempty" yaml:"boot_mib,omitempty"`
	BIOSBootMiB  int      `json:"bios_boot_mib,omitempty" yaml:"bios_boot_mib,omitempty"`
	RootFS       string   `json:"root_fs,omitempty" yaml:"root_fs,omitempty"`
	HomeFS       string   `json:"home_fs,omitempty" yaml:"home_fs,omitempty"`
}

// Load reads and JSON-schema-validates the document at path, in either
// YAML or JSON form.
func Load(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("instconfig: reading %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("instconfig: parsing %s: %w", path, err)
	}

	if err := schema.Validate(ctx, raw); err != nil {
		return nil, fmt.Errorf("instconfig: %s failed schema validation: %w", path, err)
	}

	normalized, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("instconfig: normalizing %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("instconfig: decoding %s: %w", path, err)
	}

	return &doc, nil
}

// Save writes doc to path as indented JSON.
func Save(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("instconfig: encoding document: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("instconfig: writing %s: %w", path, err)
	}

	return nil
}

// Resolve turns the document's device plan section into a validated
// deviceplan.Plan, applying the construction-time consistency checks.
func (d *Document) Resolve() (*deviceplan.Plan, error) {
	p := d.DevicePlan

	return deviceplan.New(deviceplan.Plan{
		Strategy:    deviceplan.Strategy(p.Strategy),
		Disks:       p.Disks,
		BootMode:    deviceplan.BootMode(p.BootMode),
		Bootloader:  deviceplan.Bootloader(p.Bootloader),
		EncryptRoot: p.EncryptRoot,
		// EncryptionSecretBound is never taken from the document's own
		// claim — it is derived from whether a usable passphrase is
		// actually present, so a document cannot assert encryption is
		// ready when nothing has bound a passphrase yet.
		EncryptionSecretBound: p.EncryptRoot && d.EncryptionPassphrase.Password != "",
		SeparateHome:          p.SeparateHome,
		Swap:                  p.SwapMiB > 0,
		ESPMiB:                p.ESPMiB,
		BootMiB:               p.BootMiB,
		BIOSBootMiB:           p.BIOSBootMiB,
		SwapMiB:               p.SwapMiB,
		RootFS:                deviceplan.Filesystem(p.RootFS),
		HomeFS:                deviceplan.Filesystem(p.HomeFS),
	})
}

// ValidationErrors collects every itemised problem found while
// validating a Document beyond what JSON-schema and Device Plan
// construction already check — currently just password confirmation
// mismatches, which are a document-level concern rather than a Device
// Plan one.
type ValidationErrors []error

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate itemises every problem with the document that schema
// validation does not already catch: currently, password/confirmation
// mismatches for the root and primary user accounts.
func (d *Document) Validate() error {
	var errs ValidationErrors

	if d.RootPassword.Password != d.RootPassword.Confirm {
		errs = append(errs, fmt.Errorf("instconfig: root_password and its confirmation do not match"))
	}
	if d.Username != "" && d.UserPassword.Password != d.UserPassword.Confirm {
		errs = append(errs, fmt.Errorf("instconfig: user_password and its confirmation do not match"))
	}
	if d.DevicePlan.EncryptRoot {
		if d.EncryptionPassphrase.Password != d.EncryptionPassphrase.Confirm {
			errs = append(errs, fmt.Errorf("instconfig: encryption_passphrase and its confirmation do not match"))
		}
		if d.EncryptionPassphrase.Password == "" {
			errs = append(errs, fmt.Errorf("instconfig: encrypt_root is set but no encryption_passphrase was provided"))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
