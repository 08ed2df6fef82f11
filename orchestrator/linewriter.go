// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package orchestrator

import (
	"bytes"
	"sync"
)

// lineWriter accumulates everything written to it (for the final
// captured Script Output) while also splitting the stream into lines
// and handing each complete one to onLine as it arrives. Go's own
// os/exec package supplies the "dedicated reader thread" side of this:
// when a *exec.Cmd is given a plain io.Writer for Stdout/Stderr, it
// copies from the child's pipe into that writer on its own goroutine,
// one per stream, for the lifetime of the process.
type lineWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	pending []byte
	onLine  func(line string)
}

func newLineWriter(onLine func(line string)) *lineWriter {
	return &lineWriter{onLine: onLine}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	w.pending = append(w.pending, p...)

	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		line := string(w.pending[:idx])
		w.pending = w.pending[idx+1:]
		if w.onLine != nil {
			w.onLine(line)
		}
	}

	return len(p), nil
}

// String returns everything written so far, including any trailing
// partial line not yet terminated by a newline.
func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
