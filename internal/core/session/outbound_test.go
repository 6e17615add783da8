package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/pkg/types"
)

func TestOutbound_FillsSlot(t *testing.T) {
	peer := newPeer(t, "out-peer")
	co := newCoordinator(t, func(c *config.Config) {
		c.Session.OutboundConnections = 1
	})
	co.store.InsertOrUpdate(types.TierWhite, hoststore.Entry{Addr: peer.addr, LastSeen: time.Now()})

	o := NewOutbound(co)
	require.NoError(t, o.Start())
	t.Cleanup(func() { _ = o.Stop() })

	waitUntil(t, 3*time.Second, func() bool {
		return co.channels.LenKind(types.SessionOutbound) == 1
	})
	slots := o.Slots()
	require.Len(t, slots, 1)
	assert.Equal(t, types.SlotConnected, slots[0].State)
	assert.Equal(t, peer.addr, slots[0].Addr)

	require.NoError(t, o.Stop())
	t.Log("✅ 出站槽位从主机表选址并建立连接")
}

func TestOutbound_ZeroSlots(t *testing.T) {
	co := newCoordinator(t, func(c *config.Config) {
		c.Session.OutboundConnections = 0
	})
	o := NewOutbound(co)
	require.NoError(t, o.Start())
	assert.Empty(t, o.Slots())
	require.NoError(t, o.Stop())
}

func TestOutbound_NoCandidatesStaysIdle(t *testing.T) {
	co := newCoordinator(t, func(c *config.Config) {
		c.Session.OutboundConnections = 2
	})
	o := NewOutbound(co)
	o.EnableDiagnostics()
	require.NoError(t, o.Start())
	t.Cleanup(func() { _ = o.Stop() })

	waitUntil(t, 2*time.Second, func() bool { return co.eventCount("no candidate") >= 2 })
	for _, s := range o.Slots() {
		assert.Equal(t, types.SlotDead, s.State)
	}

	t.Log("✅ 空主机表时槽位保持空闲")
}

func TestOutbound_GreyFailureQuarantined(t *testing.T) {
	dead := addr(t, deadPort(t))
	co := newCoordinator(t, func(c *config.Config) {
		c.Session.OutboundConnections = 1
	})
	co.store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: dead})

	o := NewOutbound(co)
	require.NoError(t, o.Start())
	t.Cleanup(func() { _ = o.Stop() })

	waitUntil(t, 3*time.Second, func() bool { return co.store.Len(types.TierGrey) == 0 })
	assert.Equal(t, 0, co.store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: dead}),
		"隔离区条目不得再入表")
	waitUntil(t, time.Second, func() bool {
		return !co.store.IsMigrating(dead) && !co.store.IsPending(dead)
	})

	t.Log("✅ 拨不通的灰名单候选进隔离区且标记清理干净")
}

func TestOutbound_PromotesGreyOnSuccess(t *testing.T) {
	peer := newPeer(t, "grey-peer")
	co := newCoordinator(t, func(c *config.Config) {
		c.Session.OutboundConnections = 1
	})
	co.store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: peer.addr})

	o := NewOutbound(co)
	require.NoError(t, o.Start())
	t.Cleanup(func() { _ = o.Stop() })

	waitUntil(t, 3*time.Second, func() bool {
		tier, ok := co.store.TierOf(peer.addr)
		return ok && tier == types.TierWhite
	})
	waitUntil(t, 3*time.Second, func() bool {
		return co.channels.LenKind(types.SessionOutbound) == 1
	})

	t.Log("✅ 拨通的灰名单候选晋升白名单")
}

func TestOutbound_WatchdogBarksWhenIdle(t *testing.T) {
	co := newCoordinator(t, func(c *config.Config) {
		c.Session.OutboundConnections = 1
		c.Session.TimeWithNoConnections = config.Duration(120 * time.Millisecond)
	})
	o := NewOutbound(co)
	o.EnableDiagnostics()
	require.NoError(t, o.Start())
	t.Cleanup(func() { _ = o.Stop() })

	waitUntil(t, 3*time.Second, func() bool {
		return co.eventCount("no outbound connections") >= 1
	})

	t.Log("✅ 长时间无出站连接触发看门狗")
}
