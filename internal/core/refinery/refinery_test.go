package refinery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/pkg/types"
)

func testStore(t *testing.T) *hoststore.Store {
	t.Helper()
	s, err := hoststore.New(hoststore.Config{
		Localnet:       true,
		WhitePercent:   70,
		GoldSlots:      2,
		QuarantineSize: 16,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("条件在超时前未满足")
}

func TestRefinery_PromotesOnSuccess(t *testing.T) {
	store := testStore(t)
	addr := types.MustAddr("tcp://10.0.0.1:9595")
	store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: addr})

	var calls atomic.Int32
	r := New(Config{Timeout: time.Second}, store, func(_ context.Context, a types.Address) error {
		calls.Add(1)
		assert.Equal(t, addr, a)
		return nil
	})
	r.Start()
	defer r.Stop()

	waitUntil(t, func() bool { return store.Len(types.TierWhite) == 1 })
	require.NoError(t, r.Stop())

	tier, ok := store.TierOf(addr)
	require.True(t, ok)
	assert.Equal(t, types.TierWhite, tier)

	// 晋升带上新的联络时间
	e, _, ok := store.FetchRandom(types.TierWhite, nil)
	require.True(t, ok)
	assert.False(t, e.LastSeen.IsZero())

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, store.IsMigrating(addr))
	assert.False(t, store.IsPending(addr))
	t.Log("✅ 探测通过的灰名单地址晋升白名单")
}

func TestRefinery_EvictsOnFailure(t *testing.T) {
	store := testStore(t)
	addr := types.MustAddr("tcp://10.0.0.1:9595")
	store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: addr})

	r := New(Config{Timeout: time.Second}, store, func(context.Context, types.Address) error {
		return errors.New("no route to host")
	})
	r.Start()
	defer r.Stop()

	waitUntil(t, func() bool { return store.Len(types.TierGrey) == 0 })
	require.NoError(t, r.Stop())

	assert.False(t, store.Contains(addr))
	// 隔离缓存拒绝重新入灰
	assert.Equal(t, 0, store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: addr}))
	assert.False(t, store.IsMigrating(addr))
	assert.False(t, store.IsPending(addr))
	t.Log("✅ 探测失败的灰名单地址被永久驱逐")
}

func TestRefinery_ProbeTimeout(t *testing.T) {
	store := testStore(t)
	addr := types.MustAddr("tcp://10.0.0.1:9595")
	store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: addr})

	// 探测只受自身超时约束
	r := New(Config{Timeout: 30 * time.Millisecond}, store, func(ctx context.Context, _ types.Address) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r.Start()
	defer r.Stop()

	waitUntil(t, func() bool { return store.Len(types.TierGrey) == 0 })
	assert.False(t, store.Contains(addr))
}

func TestRefinery_SkipsConnected(t *testing.T) {
	store := testStore(t)
	addr := types.MustAddr("tcp://10.0.0.1:9595")
	store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: addr})

	var calls atomic.Int32
	r := New(Config{
		Interval:  time.Millisecond,
		Timeout:   time.Second,
		Connected: func(types.Address) bool { return true },
	}, store, func(context.Context, types.Address) error {
		calls.Add(1)
		return nil
	})
	r.Start()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, r.Stop())

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 1, store.Len(types.TierGrey))
}

func TestRefinery_SkipsPendingClaim(t *testing.T) {
	store := testStore(t)
	addr := types.MustAddr("tcp://10.0.0.1:9595")
	store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: addr})

	// 别的拨号方已认领该地址
	require.True(t, store.TryPending(addr))

	var calls atomic.Int32
	r := New(Config{Interval: time.Millisecond, Timeout: time.Second}, store,
		func(context.Context, types.Address) error {
			calls.Add(1)
			return nil
		})
	r.Start()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, r.Stop())

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 1, store.Len(types.TierGrey))
	assert.True(t, store.IsPending(addr), "不触碰他人的认领")
}

func TestRefinery_ProbeSurvivesStop(t *testing.T) {
	store := testStore(t)
	addr := types.MustAddr("tcp://10.0.0.1:9595")
	store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: addr})

	started := make(chan struct{})
	release := make(chan struct{})
	r := New(Config{Timeout: 5 * time.Second}, store, func(context.Context, types.Address) error {
		close(started)
		<-release
		return nil
	})
	r.Start()
	<-started

	// 探测还卡着，Stop 不等它
	require.NoError(t, r.Stop())
	assert.True(t, store.IsPending(addr))
	assert.True(t, store.IsMigrating(addr))

	// 放行后探测自行收尾：晋升并清理标记
	close(release)
	waitUntil(t, func() bool { return store.Len(types.TierWhite) == 1 })
	waitUntil(t, func() bool { return !store.IsPending(addr) && !store.IsMigrating(addr) })
	t.Log("✅ 精炼器停止后探测运行到结束")
}

func TestRefinery_StartAfterStop(t *testing.T) {
	store := testStore(t)
	addr := types.MustAddr("tcp://10.0.0.1:9595")
	store.InsertOrUpdate(types.TierGrey, hoststore.Entry{Addr: addr})

	var calls atomic.Int32
	r := New(Config{Timeout: time.Second}, store, func(context.Context, types.Address) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, r.Stop())

	r.Start() // 停止后的 Start 是无操作
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}
