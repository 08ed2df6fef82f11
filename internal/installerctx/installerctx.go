// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package installerctx binds the single-owner pieces of one install
// run together: its stage machine, its Child Registry, and its durable
// audit trail. It is the one object the orchestrator threads through
// every stage.
package installerctx

import (
	"context"
	"fmt"
	"time"

	"archkit.sh/auditlog"
	"archkit.sh/guard"
	"archkit.sh/stage"
)

// PreconditionFailedError is returned when a destructive stage's
// preconditions are not satisfied at the moment it is about to run.
type PreconditionFailedError struct {
	Stage stage.Stage
	Cause error
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("precondition failed for destructive stage %s: %v", e.Stage, e.Cause)
}

func (e *PreconditionFailedError) Unwrap() error {
	return e.Cause
}

// Context is the installer's single-owner, single-threaded run state.
type Context struct {
	RunID     string
	StartedAt time.Time

	Machine *stage.Machine
	Guard   *guard.Registry
	Audit   *auditlog.Log
}

// New returns a Context positioned at stage.NotStarted.
func New(runID string, g *guard.Registry, audit *auditlog.Log) *Context {
	return &Context{
		RunID:     runID,
		StartedAt: time.Now(),
		Machine:   stage.NewMachine(),
		Guard:     g,
		Audit:     audit,
	}
}

// Advance moves the stage machine forward and durably records the
// transition.
func (c *Context) Advance() error {
	if err := c.Machine.Advance(); err != nil {
		return err
	}
	return c.recordTransition()
}

// Fail moves the stage machine to Failed(current) and durably records
// both the transition and the failure.
func (c *Context) Fail(cause error) error {
	if err := c.Machine.Fail(cause); err != nil {
		return err
	}

	if err := c.recordTransition(); err != nil {
		return err
	}

	if c.Audit == nil {
		return nil
	}
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return c.Audit.RecordFailure(c.RunID, c.Machine.Current().String(), detail)
}

func (c *Context) recordTransition() error {
	if c.Audit == nil {
		return nil
	}
	return c.Audit.RecordStageTransition(c.RunID, c.Machine.Current().String())
}

// CheckDestructivePrecondition runs probe only when the machine's
// current stage is destructive, wrapping any failure as a
// PreconditionFailedError. Non-destructive stages always pass.
func (c *Context) CheckDestructivePrecondition(probe func() error) error {
	if !c.Machine.Current().IsDestructive() {
		return nil
	}

	if err := probe(); err != nil {
		return &PreconditionFailedError{Stage: c.Machine.Current(), Cause: err}
	}

	return nil
}

type contextKey struct{}

// WithContext attaches an installer Context to ctx.
func WithContext(ctx context.Context, ic *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ic)
}

// FromContext retrieves the installer Context attached to ctx, or nil
// if none was attached.
func FromContext(ctx context.Context) *Context {
	v, _ := ctx.Value(contextKey{}).(*Context)
	return v
}
