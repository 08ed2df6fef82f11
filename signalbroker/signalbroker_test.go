// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package signalbroker

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"archkit.sh/guard"
)

func TestBrokerTerminatesAndExitsOnSignal(t *testing.T) {
	reg := guard.NewRegistry()

	exited := make(chan int, 1)
	b := install(reg, 100*time.Millisecond, nil, func(code int) {
		exited <- code
	})
	defer b.Stop()

	b.ch <- syscall.SIGTERM

	select {
	case code := <-exited:
		assert.Equal(t, 128+int(syscall.SIGTERM), code)
	case <-time.After(2 * time.Second):
		t.Fatal("broker never exited after signal")
	}
}

func TestBrokerStopIsIdempotent(t *testing.T) {
	reg := guard.NewRegistry()
	b := install(reg, time.Second, nil, func(int) {})
	b.Stop()
	b.Stop()
}
