// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package auditlog persists a durable, append-only trail of stage
// transitions and script outputs for a single install run, backed by
// an embedded Badger key-value store. It exists purely for after-the-
// fact inspection: nothing in the orchestrator ever reads its own
// history back out of it to make a decision.
package auditlog

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// Kind classifies an audit entry.
type Kind string

const (
	KindStageTransition Kind = "stage_transition"
	KindScriptOutput    Kind = "script_output"
	KindRefusal         Kind = "refusal"
	KindFailure         Kind = "failure"
)

// Entry is one durable audit record.
type Entry struct {
	RunID     string
	Seq       uint64
	Kind      Kind
	Stage     string
	Script    string
	Detail    string
	ExitCode  int
	Timestamp time.Time
}

// Log is an append-only, Badger-backed audit trail.
type Log struct {
	db  *badger.DB
	seq uint64
}

// Open opens (creating if necessary) the Badger store rooted at path.
func Open(path string) (*Log, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("auditlog: opening store at %s: %w", path, err)
	}

	return &Log{db: db}, nil
}

// Close releases the underlying store.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append writes one entry, stamping it with a monotonically increasing
// sequence number so iteration preserves record order regardless of
// Badger's internal key ordering within a run.
func (l *Log) Append(e Entry) error {
	e.Seq = atomic.AddUint64(&l.seq, 1)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("auditlog: encoding entry: %w", err)
	}

	key := []byte(fmt.Sprintf("%s/%020d", e.RunID, e.Seq))

	return l.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, buf.Bytes()))
	})
}

// RecordStageTransition appends a stage-transition entry.
func (l *Log) RecordStageTransition(runID, stage string) error {
	return l.Append(Entry{
		RunID:     runID,
		Kind:      KindStageTransition,
		Stage:     stage,
		Timestamp: time.Now(),
	})
}

// RecordScriptOutput appends a script-output entry. detail carries
// the classification and, for disk-wipe scripts only, the wipe method
// used — recorded for audit purposes alone, never consulted to drive
// control flow.
func (l *Log) RecordScriptOutput(runID, stage, scriptID, detail string, exitCode int) error {
	return l.Append(Entry{
		RunID:     runID,
		Kind:      KindScriptOutput,
		Stage:     stage,
		Script:    scriptID,
		Detail:    detail,
		ExitCode:  exitCode,
		Timestamp: time.Now(),
	})
}

// RecordFailure appends a failure entry carrying the cause that moved
// the run's stage machine into its terminal failed state.
func (l *Log) RecordFailure(runID, stage, cause string) error {
	return l.Append(Entry{
		RunID:     runID,
		Kind:      KindFailure,
		Stage:     stage,
		Detail:    cause,
		Timestamp: time.Now(),
	})
}

// RecordRefusal appends a refusal entry.
func (l *Log) RecordRefusal(runID, stage, scriptID, reason string) error {
	return l.Append(Entry{
		RunID:     runID,
		Kind:      KindRefusal,
		Stage:     stage,
		Script:    scriptID,
		Detail:    reason,
		Timestamp: time.Now(),
	})
}

// List returns every entry recorded for runID, in append order.
func (l *Log) List(runID string) ([]Entry, error) {
	var entries []Entry

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runID + "/")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			var e Entry
			if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&e); err != nil {
				return err
			}

			entries = append(entries, e)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auditlog: listing run %s: %w", runID, err)
	}

	return entries, nil
}
