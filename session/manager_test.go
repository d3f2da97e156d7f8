// Copyright (C) 2025 the spdm-go authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

func TestTable_CreateGetRemove(t *testing.T) {
	tbl := NewTable(protocol.HashSHA256, DefaultConfig())
	defer tbl.Close()

	t.Run("Create and retrieve session", func(t *testing.T) {
		sess, err := tbl.Create(1)
		require.NoError(t, err)
		require.NotNil(t, sess)

		got, ok := tbl.Get(1)
		require.True(t, ok)
		require.Equal(t, sess.ID(), got.ID())
	})

	t.Run("Remove session", func(t *testing.T) {
		tbl.Remove(1)
		_, ok := tbl.Get(1)
		require.False(t, ok)
	})
}

func TestTable_DuplicateIDRejected(t *testing.T) {
	tbl := NewTable(protocol.HashSHA256, DefaultConfig())
	defer tbl.Close()

	_, err := tbl.Create(5)
	require.NoError(t, err)
	_, err = tbl.Create(5)
	require.Error(t, err)
}

func TestTable_CapacityIsFixed(t *testing.T) {
	tbl := NewTable(protocol.HashSHA256, DefaultConfig())
	defer tbl.Close()

	for i := uint32(1); i <= protocol.MaxSessions; i++ {
		_, err := tbl.Create(i)
		require.NoError(t, err)
	}

	_, err := tbl.Create(uint32(protocol.MaxSessions) + 1)
	require.Error(t, err)
	require.ErrorIs(t, err, spdmerr.ErrBufferFull)
}

func TestTable_RemoveFreesSlotForReuse(t *testing.T) {
	tbl := NewTable(protocol.HashSHA256, DefaultConfig())
	defer tbl.Close()

	for i := uint32(1); i <= protocol.MaxSessions; i++ {
		_, err := tbl.Create(i)
		require.NoError(t, err)
	}

	tbl.Remove(1)
	sess, err := tbl.Create(99)
	require.NoError(t, err)
	require.Equal(t, uint32(99), sess.ID())
}

func TestTable_ListAndStats(t *testing.T) {
	tbl := NewTable(protocol.HashSHA256, DefaultConfig())
	defer tbl.Close()

	_, _ = tbl.Create(1)
	_, _ = tbl.Create(2)

	list := tbl.List()
	require.Len(t, list, 2)

	stats := tbl.Stats()
	require.Equal(t, protocol.MaxSessions, stats.TotalSlots)
	require.Equal(t, 2, stats.UsedSlots)
	require.Equal(t, 0, stats.EstablishedSlots)
}

func TestTable_ConcurrentCreateIsSafe(t *testing.T) {
	tbl := NewTable(protocol.HashSHA256, DefaultConfig())
	defer tbl.Close()

	var wg sync.WaitGroup
	errs := make([]error, protocol.MaxSessions)
	for i := 0; i < protocol.MaxSessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tbl.Create(uint32(i + 1))
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, protocol.MaxSessions, tbl.Stats().UsedSlots)
}
