// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package guard implements the Process Guard: the single component
// permitted to fork worker scripts, and the only component permitted to
// signal them. Every child is placed in its own process group and armed
// with a parent-death signal at spawn time, before the registry lock is
// released, so a child can never outlive the registry's knowledge of it.
package guard

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	gopsutilprocess "github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"archkit.sh/exec"
)

// SpawnSpec describes a child worker to be forked. It carries no
// knowledge of scripts or manifests; those live one layer up in the
// script and manifest packages.
type SpawnSpec struct {
	Bin    string
	Args   []string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Handle is the registry's record of a running child. Pgid equals Pid
// because every child is placed in its own process group at spawn time.
type Handle struct {
	ID   string
	Pid  int
	Pgid int

	process *exec.Process
	done    chan struct{}
	exitErr error
}

// Wait blocks until the child has exited and returns its terminal
// error, if any. Wait is safe to call multiple times.
func (h *Handle) Wait() error {
	<-h.done
	return h.exitErr
}

// Exited reports whether the child has already exited.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Registry is the Child Registry: every live handle the Guard is
// responsible for, protected by a lock that recovers from poisoning
// rather than wedging the whole supervisor if one registration panics.
type Registry struct {
	mu       sync.Mutex
	poisoned bool
	handles  map[string]*Handle
	seq      int

	terminating  bool
	terminateErr error
	terminated   chan struct{}
}

// NewRegistry returns an empty Child Registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// withLock runs fn under the registry mutex, recovering from any panic
// so that a single bad registration cannot poison every future
// terminate_all call; a panic is returned as an error and marks the
// registry poisoned. TerminateAll does not consult that mark: it always
// sweeps whatever handles are still registered.
func (r *Registry) withLock(fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			r.poisoned = true
			err = fmt.Errorf("guard: registry operation panicked: %v", p)
		}
	}()

	return fn()
}

// Spawn starts a worker process, places it in its own process group,
// arms SIGTERM as its parent-death signal, and registers the resulting
// handle — all before returning, and all under the same critical
// section, so there is no window in which a child exists unsupervised.
// Pdeathsig deliberately carries the polite signal rather than an
// uncatchable kill: a worker that observes the standard-handler
// protocol needs to run its own SIGTERM handler to relay termination
// to any grandchild it has spawned, which a SIGKILL parent-death
// signal would never give it the chance to do.
func (r *Registry) Spawn(ctx context.Context, spec SpawnSpec) (*Handle, error) {
	var handle *Handle

	err := r.withLock(func() error {
		opts := []exec.ExecOption{
			exec.WithContext(ctx),
			exec.WithSysProcAttr(&syscall.SysProcAttr{
				Setpgid:   true,
				Pdeathsig: unix.SIGTERM,
			}),
			// A child never inherits the supervisor's ambient environment:
			// only what its contract explicitly carries, plus PATH so the
			// worker script can still resolve coreutils. This is what
			// keeps an ambient CONFIRM_* variable from ever reaching a
			// worker whose own contract never set it.
			exec.WithCleanEnv(true),
			exec.WithEnvRaw(envWithPath(spec.Env)),
		}

		if spec.Stdout != nil {
			opts = append(opts, exec.WithStdout(spec.Stdout))
		}
		if spec.Stderr != nil {
			opts = append(opts, exec.WithStderr(spec.Stderr))
		}

		proc, err := exec.NewProcess(spec.Bin, spec.Args, opts...)
		if err != nil {
			return fmt.Errorf("guard: preparing process: %w", err)
		}

		if err := proc.Start(); err != nil {
			return fmt.Errorf("guard: starting process: %w", err)
		}

		pid := proc.Pid()

		r.seq++
		handle = &Handle{
			ID:      fmt.Sprintf("child-%d", r.seq),
			Pid:     pid,
			Pgid:    pid,
			process: proc,
			done:    make(chan struct{}),
		}

		r.handles[handle.ID] = handle

		go func() {
			handle.exitErr = proc.Wait()
			close(handle.done)

			r.mu.Lock()
			delete(r.handles, handle.ID)
			r.mu.Unlock()
		}()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return handle, nil
}

// envWithPath appends the supervisor's own PATH to env if env does not
// already declare one. This is the one ambient value a clean-env child
// still needs to resolve coreutils and the rest of its toolchain; it
// carries no secret and no confirmation semantics.
func envWithPath(env []string) []string {
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "PATH=" {
			return env
		}
	}
	out := make([]string, len(env), len(env)+1)
	copy(out, env)
	return append(out, "PATH="+os.Getenv("PATH"))
}

// snapshot returns the live handles at the time of the call. It does
// not hold the lock while the caller acts on the result, matching the
// spec's no-timeout, poll-don't-block supervision model.
func (r *Registry) snapshot() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}

// TerminateAll implements terminate_all(grace): a polite signal to
// every live child's process group, a liveness poll for up to grace,
// and an uncatchable kill of whatever remains. It is idempotent: a
// call made while another is already in flight (e.g. a caught signal
// arriving while an orderly shutdown's grace period is still running)
// returns immediately rather than sending a redundant second round of
// signals. A poisoned registry is not treated specially: the sweep
// covers whatever handles are still registered.
func (r *Registry) TerminateAll(grace time.Duration) error {
	r.mu.Lock()
	if r.terminating {
		r.mu.Unlock()
		return nil
	}
	r.terminating = true
	r.terminated = make(chan struct{})
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.terminating = false
		close(r.terminated)
		r.mu.Unlock()
	}()

	handles := r.snapshot()
	if len(handles) == 0 {
		return nil
	}

	for _, h := range handles {
		_ = unix.Kill(-h.Pgid, unix.SIGTERM)
	}

	deadline := time.Now().Add(grace)
	remaining := handles
	for time.Now().Before(deadline) && len(remaining) > 0 {
		var still []*Handle
		for _, h := range remaining {
			if h.Exited() {
				continue
			}
			alive, err := processAlive(h.Pid)
			if err != nil || alive {
				still = append(still, h)
			}
		}
		remaining = still
		if len(remaining) == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	var firstErr error
	for _, h := range remaining {
		if h.Exited() {
			continue
		}
		if err := unix.Kill(-h.Pgid, unix.SIGKILL); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("guard: killing process group %d: %w", h.Pgid, err)
		}
	}

	for _, h := range handles {
		<-h.done
	}

	return firstErr
}

// processAlive reports whether pid still refers to a running process,
// using gopsutil so the check works uniformly whether or not pid is a
// direct child of this process (it always is here, but TerminateAll
// deliberately does not assume that invariant survives every future
// caller).
func processAlive(pid int) (bool, error) {
	p, err := gopsutilprocess.NewProcess(int32(pid))
	if err != nil {
		return false, nil
	}
	return p.IsRunning()
}
