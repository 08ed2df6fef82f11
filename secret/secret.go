// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package secret implements the Secret Carrier: the only path by which
// sensitive values (disk-encryption passphrases, account passwords)
// reach a worker script. Stdin delivery is never offered — only an
// environment variable holding the value directly, or an
// owner-only-permission keyfile on disk whose path is handed to the
// worker through an environment variable. Every carrier is released
// exactly once, including along a panicking call stack, and nothing in
// this package ever logs a secret's value — only its delivery mode and
// location.
package secret

import (
	"fmt"
	"os"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Mode names a delivery mode.
type Mode string

const (
	ModeEnv     Mode = "env"
	ModeKeyfile Mode = "keyfile"
)

// Secret is a released-once handle to sensitive material in flight to
// a worker.
type Secret struct {
	mu sync.Mutex

	mode   Mode
	envKey string
	value  string
	path   string

	released bool
}

// NewEnvSecret delivers value directly through an environment
// variable named envKey. Nothing is written to disk.
func NewEnvSecret(envKey, value string) *Secret {
	return &Secret{mode: ModeEnv, envKey: envKey, value: value}
}

// NewKeyfileSecret writes value to an owner-only-permission file under
// dir and returns a Secret whose EnvVector points envKey at that
// file's path rather than at the value itself. dir and name are joined
// with securejoin so a crafted name can never escape dir.
func NewKeyfileSecret(dir, name, envKey, value string) (*Secret, error) {
	path, err := securejoin.SecureJoin(dir, name)
	if err != nil {
		return nil, fmt.Errorf("secret: resolving keyfile path: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("secret: creating keyfile: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("secret: writing keyfile: %w", err)
	}

	return &Secret{mode: ModeKeyfile, envKey: envKey, path: path}, nil
}

// EnvVector returns the single "KEY=VALUE" entry a worker's
// environment should carry for this secret: the value itself for an
// env-mode secret, or the keyfile path for a keyfile-mode secret.
func (s *Secret) EnvVector() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeKeyfile:
		return []string{fmt.Sprintf("%s=%s", s.envKey, s.path)}
	default:
		return []string{fmt.Sprintf("%s=%s", s.envKey, s.value)}
	}
}

// LogFields returns only structural information about this secret —
// its delivery mode, its env key, and (for keyfile mode) its path —
// never the value itself. This is the only view of a Secret that may
// ever reach a logger.
func (s *Secret) LogFields() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := map[string]string{
		"mode":    string(s.mode),
		"env_key": s.envKey,
	}
	if s.mode == ModeKeyfile {
		fields["path"] = s.path
	}
	return fields
}

// Release zeroes and removes any on-disk keyfile. It is idempotent and
// safe to call from a deferred recover() after a panic: a second call,
// or a call on an env-mode secret, is a no-op.
func (s *Secret) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released || s.mode != ModeKeyfile {
		s.released = true
		s.value = ""
		return nil
	}

	s.released = true

	info, statErr := os.Stat(s.path)
	if statErr == nil {
		if f, err := os.OpenFile(s.path, os.O_WRONLY, 0o600); err == nil {
			zeros := make([]byte, info.Size())
			_, _ = f.WriteAt(zeros, 0)
			_ = f.Close()
		}
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("secret: releasing keyfile %s: %w", s.path, err)
	}

	return nil
}
