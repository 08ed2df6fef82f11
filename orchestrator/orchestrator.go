// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package orchestrator implements the Installer Orchestrator: the
// single-threaded driver that, for every script in a stage, selects
// its contract, validates it against its manifest, clears it through
// the Refusal Gate, spawns it through the Process Guard, streams its
// output to subscribers, awaits its exit, and classifies the result.
package orchestrator

import (
	"context"
	"errors"
	osexec "os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"archkit.sh/auditlog"
	"archkit.sh/guard"
	"archkit.sh/internal/installerctx"
	"archkit.sh/manifest"
	"archkit.sh/refusal"
	"archkit.sh/script"
	"archkit.sh/secret"
)

// Contract is the minimal view the orchestrator needs from a script
// contract.
type Contract interface {
	ScriptName() string
	CLIVector() []string
	EnvVector() []string
	IsDestructive() bool
	ConfirmationVar() string
	Env(key string) (string, bool)
}

// StageFailedError wraps the script whose failure ended a stage.
type StageFailedError struct {
	Script   string
	ExitCode int
	Cause    error
}

func (e *StageFailedError) Error() string {
	return "script " + e.Script + " failed"
}

func (e *StageFailedError) Unwrap() error {
	return e.Cause
}

// Orchestrator drives stages forward. It is safe for exactly one
// goroutine to call RunStage at a time, matching the single-threaded
// orchestration model; Subscribe/SubscribeLines and their publish
// counterparts are the only concurrency-safe surface.
type Orchestrator struct {
	bin       string
	guard     *guard.Registry
	manifests *manifest.Store
	gate      *refusal.Gate
	audit     *auditlog.Log

	mu          sync.Mutex
	subscribers []chan *script.Output
	lineSubs    []chan *script.Line
}

// New returns an Orchestrator that resolves worker binaries as
// "<bin>/<family>/<script-id>".
func New(bin string, g *guard.Registry, manifests *manifest.Store, gate *refusal.Gate, audit *auditlog.Log) *Orchestrator {
	return &Orchestrator{
		bin:       bin,
		guard:     g,
		manifests: manifests,
		gate:      gate,
		audit:     audit,
	}
}

// Subscribe returns a channel that receives every Output this
// orchestrator produces from here on. Delivery is non-blocking: a
// subscriber that falls behind has outputs dropped for it rather than
// stalling the orchestrator.
func (o *Orchestrator) Subscribe() <-chan *script.Output {
	ch := make(chan *script.Output, 16)

	o.mu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.mu.Unlock()

	return ch
}

// SubscribeLines returns a channel that receives every output line
// produced by every worker this orchestrator runs from here on, in the
// order the orchestrator read it from the worker's own stdout/stderr.
// As with Subscribe, a slow subscriber has lines dropped for it rather
// than ever stalling the worker it is observing.
func (o *Orchestrator) SubscribeLines() <-chan *script.Line {
	ch := make(chan *script.Line, 256)

	o.mu.Lock()
	o.lineSubs = append(o.lineSubs, ch)
	o.mu.Unlock()

	return ch
}

func (o *Orchestrator) publish(out *script.Output) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, ch := range o.subscribers {
		select {
		case ch <- out:
		default:
		}
	}
}

func (o *Orchestrator) publishLine(l *script.Line) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, ch := range o.lineSubs {
		select {
		case ch <- l:
		default:
		}
	}
}

// RunScript validates, gates, spawns, and awaits a single contract,
// returning its Output. The returned error is only ever non-nil for a
// condition that prevented the script from ever producing a
// meaningful Output at all — manifest violations, refusal, or an
// infrastructure failure spawning the process; a worker that spawns
// successfully and exits with a code its manifest does not accept is
// reported as a Failure Classification, not a Go error.
//
// secrets, if given, are appended to the worker's environment at
// spawn time only — never folded into the contract's own EnvVector,
// so a secret's value never participates in manifest validation or
// audit logging of the contract itself. Callers release every secret
// they pass here once RunScript returns, regardless of outcome.
func (o *Orchestrator) RunScript(ctx context.Context, ic *installerctx.Context, family, scriptID string, c Contract, secrets ...*secret.Secret) (*script.Output, error) {
	m, err := o.manifests.Load(scriptID)
	if err != nil {
		return nil, err
	}

	if err := manifest.Validate(c, m); err != nil {
		return nil, err
	}

	if o.gate.Skip(c) {
		out := &script.Output{
			ScriptID:       scriptID,
			Classification: script.ClassificationSkipped,
			DryRun:         true,
		}
		o.publish(out)
		o.recordOutput(ic, scriptID, out)
		return out, nil
	}

	if err := o.gate.Evaluate(c); err != nil {
		var refused *refusal.RefusalError
		if errors.As(err, &refused) && ic.Audit != nil {
			_ = ic.Audit.RecordRefusal(ic.RunID, ic.Machine.Current().String(), scriptID, refused.Reason)
		}
		return nil, err
	}

	bin := o.bin + "/" + family + "/" + scriptID

	stdout := newLineWriter(func(line string) {
		o.publishLine(&script.Line{ScriptID: scriptID, Stream: "stdout", Text: line})
	})
	stderr := newLineWriter(func(line string) {
		o.publishLine(&script.Line{ScriptID: scriptID, Stream: "stderr", Text: line})
	})

	start := time.Now()

	env := manifest.ResolveEnv(c, m)
	for _, sec := range secrets {
		env = append(env, sec.EnvVector()...)
	}

	handle, err := o.guard.Spawn(ctx, guard.SpawnSpec{
		Bin:    bin,
		Args:   c.CLIVector(),
		Env:    env,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		return nil, err
	}

	waitErr := handle.Wait()
	duration := time.Since(start)

	out := &script.Output{
		ScriptID: scriptID,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	code, signalled, sig := classifyExit(waitErr)
	out.ExitCode = code
	out.Signalled = signalled
	out.Signal = sig
	out.WipeMethod = extractWipeMethod(scriptID, out.Stdout)

	switch {
	case signalled:
		out.Classification = script.ClassificationFailure
	case m.Accepts(code):
		out.Classification = script.ClassificationSuccess
	default:
		out.Classification = script.ClassificationFailure
	}

	o.publish(out)
	o.recordOutput(ic, scriptID, out)

	return out, nil
}

func (o *Orchestrator) recordOutput(ic *installerctx.Context, scriptID string, out *script.Output) {
	if ic.Audit == nil {
		return
	}
	detail := string(out.Classification)
	if out.WipeMethod != "" {
		detail += " wipe_method=" + out.WipeMethod
	}
	_ = ic.Audit.RecordScriptOutput(ic.RunID, ic.Machine.Current().String(), scriptID, detail, out.ExitCode)
}

// RunStage runs every contract in order against the current stage and,
// if all succeed, advances the stage machine. The first failing
// script stops the stage immediately, terminates any other children
// still running within the stage, and fails the machine.
func (o *Orchestrator) RunStage(ctx context.Context, ic *installerctx.Context, grace time.Duration, steps []Step) error {
	for _, step := range steps {
		out, err := o.RunScript(ctx, ic, step.Family, step.ScriptID, step.Contract, step.Secrets...)
		if err != nil {
			_ = o.guard.TerminateAll(grace)
			_ = ic.Fail(err)
			return err
		}

		if out.Classification == script.ClassificationFailure {
			failErr := &StageFailedError{Script: step.ScriptID, ExitCode: out.ExitCode, Cause: stageFailureCause(out)}
			_ = o.guard.TerminateAll(grace)
			_ = ic.Fail(failErr)
			return failErr
		}
	}

	return ic.Advance()
}

func stageFailureCause(out *script.Output) error {
	if out.Signalled {
		return errors.New("worker terminated by signal " + out.Signal + ": " + lastLines(out.Stderr, 20))
	}
	return errors.New(lastLines(out.Stderr, 20))
}

// extractWipeMethod scans a disk-wipe worker's captured stdout for a
// WIPE_METHOD=zero-fill|discard line and returns the value found, for
// audit purposes only; it never influences classification. Any other
// script's output is left unscanned since the line only carries
// meaning for disk-wipe.
func extractWipeMethod(scriptID, stdout string) string {
	if scriptID != "disk-wipe" {
		return ""
	}

	for _, line := range strings.Split(stdout, "\n") {
		v, ok := strings.CutPrefix(strings.TrimSpace(line), "WIPE_METHOD=")
		if !ok {
			continue
		}
		switch v {
		case "zero-fill", "discard":
			return v
		}
	}

	return ""
}

// lastLines returns at most n trailing lines of s, for surfacing a
// bounded amount of captured stderr as a failure cause.
func lastLines(s string, n int) string {
	if s == "" {
		return ""
	}

	start := 0
	lines := 0
	for i := len(s) - 2; i >= 0; i-- {
		if s[i] == '\n' {
			lines++
			if lines == n {
				start = i + 1
				break
			}
		}
	}
	return s[start:]
}

// Step names one contract to run within a stage, alongside the family
// its worker binary is resolved under and any secrets its worker needs
// bound into its environment at spawn time.
type Step struct {
	Family   string
	ScriptID string
	Contract Contract
	Secrets  []*secret.Secret
}

// classifyExit extracts the exit code, signalled status, and (if
// signalled) signal name from the error returned by a worker's Wait.
func classifyExit(err error) (code int, signalled bool, signal string) {
	if err == nil {
		return 0, false, ""
	}

	var exitErr *osexec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, false, ""
	}

	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 0, true, ws.Signal().String()
	}

	return exitErr.ExitCode(), false, ""
}
