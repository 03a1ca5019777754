package repository

import (
	"testing"
	"time"

	"github.com/danmuck/dorepo/internal/protocol"
	"github.com/danmuck/dorepo/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestPendingTableCorrelatesByContextAndType(t *testing.T) {
	testlog.Start(t)
	p := NewPendingTable()
	a := p.Add(PendingRequest{Response: protocol.StateServerObjectGetLocationResp, DoID: 1})
	b := p.Add(PendingRequest{Response: protocol.DBServerCreateObjectResp})
	require.Equal(t, uint32(1), a)
	require.Equal(t, uint32(2), b)
	require.Equal(t, 2, p.Len())

	_, ok := p.Take(a, protocol.DBServerCreateObjectResp)
	require.False(t, ok, "response type must match")
	req, ok := p.Take(a, protocol.StateServerObjectGetLocationResp)
	require.True(t, ok)
	require.Equal(t, uint32(1), req.DoID)
	_, ok = p.Take(a, protocol.StateServerObjectGetLocationResp)
	require.False(t, ok)

	list := p.List()
	require.Len(t, list, 1)
	require.Equal(t, b, list[0].Context)
}

func TestPendingTableSkipsZeroAndLiveContexts(t *testing.T) {
	testlog.Start(t)
	p := NewPendingTable()
	p.next = ^uint32(0) - 1
	first := p.Add(PendingRequest{})
	require.Equal(t, ^uint32(0), first)
	second := p.Add(PendingRequest{})
	require.Equal(t, uint32(1), second)

	p.next = ^uint32(0) - 1
	third := p.Add(PendingRequest{})
	require.Equal(t, uint32(2), third, "contexts still in flight are not reused")
}

func TestPendingTableExpireAndDrain(t *testing.T) {
	testlog.Start(t)
	p := NewPendingTable()
	now := time.Now()
	p.Add(PendingRequest{DeadlineAt: now.Add(-time.Second)})
	p.Add(PendingRequest{})
	p.Add(PendingRequest{DeadlineAt: now.Add(time.Hour)})
	p.Add(PendingRequest{DeadlineAt: now.Add(-time.Minute)})

	expired := p.Expire(now)
	require.Len(t, expired, 2)
	require.Equal(t, uint32(1), expired[0].Context)
	require.Equal(t, uint32(4), expired[1].Context)
	require.Equal(t, 2, p.Len())

	drained := p.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, uint32(2), drained[0].Context)
	require.Zero(t, p.Len())
}
