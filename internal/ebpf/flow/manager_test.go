// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/packetware/ghostwire/internal/logging"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable(&Config{MaxFlows: 16}, logging.Default())
	require.NoError(t, err)
	return tbl
}

func TestCheckAndRefreshMiss(t *testing.T) {
	tbl := newTestTable(t)
	require.False(t, tbl.CheckAndRefresh(1234))
	require.Equal(t, 0, tbl.Len())
}

func TestUpsertThenCheckAndRefreshHit(t *testing.T) {
	tbl := newTestTable(t)
	tbl.Upsert(42)
	require.Equal(t, 1, tbl.Len())
	require.True(t, tbl.CheckAndRefresh(42))
}

func TestRemoveEvictsKey(t *testing.T) {
	tbl := newTestTable(t)
	tbl.Upsert(7)
	require.True(t, tbl.CheckAndRefresh(7))

	tbl.Remove(7)
	require.False(t, tbl.CheckAndRefresh(7))
	require.Equal(t, 0, tbl.Len())
}

func TestRemoveOnNonMemberIsNoop(t *testing.T) {
	tbl := newTestTable(t)
	tbl.Remove(999)
	require.Equal(t, 0, tbl.Len())
}

func TestPurgeClearsTable(t *testing.T) {
	tbl := newTestTable(t)
	tbl.Upsert(1)
	tbl.Upsert(2)
	require.Equal(t, 2, tbl.Len())

	tbl.Purge()
	require.Equal(t, 0, tbl.Len())
}
