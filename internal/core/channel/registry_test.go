package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umbra-net/go-umbra/pkg/types"
)

func TestRegistry_AddGetRemove(t *testing.T) {
	reg := NewRegistry()
	a, b := startedPair(t)

	require.NoError(t, reg.Add(a))
	assert.Equal(t, 1, reg.Len())
	assert.True(t, reg.Connected(a.Addr()))

	got, ok := reg.Get(a.Addr())
	require.True(t, ok)
	assert.Same(t, a, got)

	// 同地址二次注册被拒
	dup := New(nil, Config{Kind: types.SessionManual, Addr: a.Addr()})
	assert.ErrorIs(t, reg.Add(dup), ErrDuplicateChannel)

	require.NoError(t, reg.Add(b))
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 1, reg.LenKind(types.SessionInbound))
	assert.Equal(t, 1, reg.LenKind(types.SessionOutbound))
	assert.Len(t, reg.All(), 2)

	assert.True(t, reg.Remove(a.Addr()))
	assert.False(t, reg.Remove(a.Addr()), "重复移除返回 false")
	assert.False(t, reg.Connected(a.Addr()))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Events(t *testing.T) {
	reg := NewRegistry()
	a, _ := startedPair(t)

	events := reg.Subscribe()
	defer reg.Unsubscribe(events)

	require.NoError(t, reg.Add(a))
	select {
	case ev := <-events:
		assert.Equal(t, EventAdded, ev.Type)
		assert.Equal(t, a.Addr(), ev.Addr)
		assert.Equal(t, types.SessionOutbound, ev.Session)
		assert.Equal(t, "node-b", ev.NodeID)
	case <-time.After(time.Second):
		t.Fatal("未收到注册事件")
	}

	reg.Remove(a.Addr())
	select {
	case ev := <-events:
		assert.Equal(t, EventRemoved, ev.Type)
		assert.Equal(t, a.Addr(), ev.Addr)
	case <-time.After(time.Second):
		t.Fatal("未收到移除事件")
	}
	t.Log("✅ 注册表事件覆盖注册与移除")
}

func TestRegistry_Unsubscribe(t *testing.T) {
	reg := NewRegistry()

	events := reg.Subscribe()
	reg.Unsubscribe(events)
	_, ok := <-events
	assert.False(t, ok, "取消订阅后通道关闭")

	// 重复取消无害
	reg.Unsubscribe(events)
}

func TestRegistry_CloseAll(t *testing.T) {
	reg := NewRegistry()
	a, b := startedPair(t)
	require.NoError(t, reg.Add(a))
	require.NoError(t, reg.Add(b))

	require.NoError(t, reg.CloseAll(context.Background()))
	assert.Equal(t, 0, reg.Len())

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("通道未随 CloseAll 停止")
	}
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("通道未随 CloseAll 停止")
	}
}
