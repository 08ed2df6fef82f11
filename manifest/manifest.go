// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package manifest implements the Script Manifest model and the
// Manifest Validator: every worker script ships a small JSON document
// describing what environment it requires, whether it is destructive,
// and which exit codes are meaningful. Manifests are loaded lazily on
// first use and cached for the remainder of the process's lifetime, so
// a manifest is read from disk at most once per run.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// RequiredEnv describes one environment variable a script requires,
// optionally constrained to match Pattern.
type RequiredEnv struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
}

// OptionalEnv describes one environment variable a script accepts but
// does not require; Default is applied by the orchestrator before
// spawn whenever the contract's own environment omits it.
type OptionalEnv struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default"`
}

// Manifest is the declared contract a worker script publishes about
// itself.
type Manifest struct {
	Script               string        `json:"script"`
	Description          string        `json:"description,omitempty"`
	Destructive          bool          `json:"destructive"`
	RequiredConfirmation string        `json:"required_confirmation,omitempty"`
	Version              string        `json:"version,omitempty"`
	NeedsStdin           bool          `json:"needs_stdin"`
	RequiredEnv          []RequiredEnv `json:"required_env,omitempty"`
	OptionalEnv          []OptionalEnv `json:"optional_env,omitempty"`
	ValidExitCodes       []int         `json:"valid_exit_codes,omitempty"`
}

// AcceptedExitCodes returns the manifest's accepted exit-code set,
// defaulting to {0} when the manifest declares none.
func (m *Manifest) AcceptedExitCodes() []int {
	if len(m.ValidExitCodes) == 0 {
		return []int{0}
	}
	return m.ValidExitCodes
}

// Accepts reports whether code is one of the manifest's accepted exit
// codes.
func (m *Manifest) Accepts(code int) bool {
	for _, c := range m.AcceptedExitCodes() {
		if c == code {
			return true
		}
	}
	return false
}

// Store loads and caches manifests from a directory of "<script>.json"
// files.
type Store struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Manifest
}

// NewStore returns a Store rooted at dir. Nothing is read from disk
// until Load is first called for a given script.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: make(map[string]*Manifest),
	}
}

// Load returns the manifest for scriptID, reading and parsing it from
// disk on first use and returning the cached value on every subsequent
// call for the lifetime of the Store.
func (s *Store) Load(scriptID string) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.cache[scriptID]; ok {
		return m, nil
	}

	path := filepath.Join(s.dir, scriptID+".json")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &UnknownScriptError{Script: scriptID}
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: reading %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parsing %s: %w", path, err)
	}

	if m.NeedsStdin {
		return nil, fmt.Errorf("manifest: script %q declares needs_stdin=true; the supervisor never offers a worker standard input", scriptID)
	}

	if m.Destructive && m.RequiredConfirmation == "" {
		return nil, fmt.Errorf("manifest: script %q is destructive but declares no required_confirmation", scriptID)
	}

	s.cache[scriptID] = &m
	return &m, nil
}

// UnknownScriptError is returned when no manifest exists for a script
// a contract claims to invoke.
type UnknownScriptError struct {
	Script string
}

func (e *UnknownScriptError) Error() string {
	return fmt.Sprintf("manifest: no manifest found for script %q", e.Script)
}

// MissingRequiredError is returned when a contract's environment is
// missing a variable its manifest declares as required.
type MissingRequiredError struct {
	Script string
	Var    string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("manifest: script %q requires environment variable %q", e.Script, e.Var)
}

// PatternMismatchError is returned when a required environment
// variable is present but does not match its declared pattern.
type PatternMismatchError struct {
	Script  string
	Var     string
	Pattern string
	Value   string
}

func (e *PatternMismatchError) Error() string {
	return fmt.Sprintf("manifest: script %q variable %q value %q does not match pattern %q",
		e.Script, e.Var, e.Value, e.Pattern)
}

// contract is the minimal view the validator needs from a script
// contract, kept narrow here to avoid an import cycle with package
// script.
type contract interface {
	Env(key string) (string, bool)
}

// Validate checks a contract's environment against its manifest's
// required-env and pattern declarations, returning the first violation
// found. Confirmation of destructive contracts is deliberately not
// checked here: that is the Refusal Gate's decision, made after the
// dry-run path has had its chance to synthesize a skip, so an
// unconfirmed destructive contract under dry-run still validates.
func Validate(c contract, m *Manifest) error {
	for _, req := range m.RequiredEnv {
		val, ok := c.Env(req.Name)
		if !ok {
			return &MissingRequiredError{Script: m.Script, Var: req.Name}
		}

		if req.Pattern != "" {
			matched, err := regexp.MatchString(req.Pattern, val)
			if err != nil {
				return fmt.Errorf("manifest: compiling pattern %q for %q: %w", req.Pattern, req.Name, err)
			}
			if !matched {
				return &PatternMismatchError{
					Script:  m.Script,
					Var:     req.Name,
					Pattern: req.Pattern,
					Value:   val,
				}
			}
		}
	}

	return nil
}

// ResolveEnv returns the "KEY=VALUE" environment vector a contract
// should actually be spawned with: everything the contract's own
// EnvVector declares, plus any of the manifest's optional-env defaults
// the contract did not already set. It never adds or overrides a
// required or confirmation variable — those must come from the
// contract itself.
func ResolveEnv(c interface {
	contract
	EnvVector() []string
}, m *Manifest) []string {
	env := append([]string{}, c.EnvVector()...)

	for _, opt := range m.OptionalEnv {
		if _, ok := c.Env(opt.Name); ok {
			continue
		}
		env = append(env, fmt.Sprintf("%s=%s", opt.Name, opt.Default))
	}

	return env
}
