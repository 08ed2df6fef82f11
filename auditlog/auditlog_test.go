// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package auditlog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archkit.sh/auditlog"
)

func TestAppendAndListPreservesOrder(t *testing.T) {
	l, err := auditlog.Open(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.RecordStageTransition("run-1", "validating_config"))
	require.NoError(t, l.RecordScriptOutput("run-1", "partitioning_disk", "disk-wipe", "success wipe_method=zero-fill", 0))
	require.NoError(t, l.RecordStageTransition("run-1", "installing_base"))

	entries, err := l.List("run-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, auditlog.KindStageTransition, entries[0].Kind)
	assert.Equal(t, auditlog.KindScriptOutput, entries[1].Kind)
	assert.Equal(t, "disk-wipe", entries[1].Script)
	assert.Equal(t, auditlog.KindStageTransition, entries[2].Kind)
}

func TestListScopesByRunID(t *testing.T) {
	l, err := auditlog.Open(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.RecordStageTransition("run-a", "not_started"))
	require.NoError(t, l.RecordStageTransition("run-b", "not_started"))

	entries, err := l.List("run-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
