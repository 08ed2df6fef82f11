// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package signalbroker is the single place the supervisor listens for
// SIGINT, SIGTERM, and SIGHUP. It owns exactly one responsibility: on
// receipt of any of these, terminate every running worker and exit with
// the conventional 128+signal code. Apart from one warning log line it
// does nothing else in the signal path — no state machine work — so
// that handling a signal never depends on the state the signal
// interrupted.
package signalbroker

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"archkit.sh/guard"
)

// Broker installs the process-wide signal handling for a single
// installer run. It is safe to call Stop concurrently with delivery of
// a signal; both paths are idempotent.
type Broker struct {
	ch    chan os.Signal
	once  sync.Once
	done  chan struct{}
	exitf func(code int)
}

// Install starts listening for SIGINT, SIGTERM, and SIGHUP. On receipt
// of any of them it calls reg.TerminateAll(grace) and then exits the
// process with 128+signal, matching the conventional shell exit code
// for a signal-terminated process. Install returns immediately; the
// listener runs in its own goroutine for the lifetime of the process
// unless Stop is called first.
func Install(reg *guard.Registry, grace time.Duration, log *logrus.Logger) *Broker {
	return install(reg, grace, log, os.Exit)
}

func install(reg *guard.Registry, grace time.Duration, log *logrus.Logger, exitf func(int)) *Broker {
	b := &Broker{
		ch:    make(chan os.Signal, 1),
		done:  make(chan struct{}),
		exitf: exitf,
	}

	signal.Notify(b.ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		select {
		case sig := <-b.ch:
			s, _ := sig.(syscall.Signal)
			if log != nil {
				log.Warnf("received signal %s, terminating all workers", sig)
			}

			_ = reg.TerminateAll(grace)

			b.exitf(128 + int(s))
		case <-b.done:
		}
	}()

	return b
}

// Stop cancels signal delivery to this broker without terminating
// anything. It is idempotent.
func (b *Broker) Stop() {
	b.once.Do(func() {
		signal.Stop(b.ch)
		close(b.done)
	})
}
