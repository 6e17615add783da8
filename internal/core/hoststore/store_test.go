package hoststore

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umbra-net/go-umbra/internal/core/buckets"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// newStore 创建测试存储；Localnet 默认开启，回环测试地址才能入表。
func newStore(t *testing.T, mutate ...func(*Config)) *Store {
	t.Helper()
	cfg := Config{
		Localnet:       true,
		WhitePercent:   70,
		GoldSlots:      2,
		QuarantineSize: 16,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func addr(t *testing.T, s string) types.Address {
	t.Helper()
	return types.MustAddr(s)
}

func TestInsertOrUpdate_TierExclusive(t *testing.T) {
	s := newStore(t)
	a := addr(t, "tcp://10.0.0.1:9595")

	require.Equal(t, 1, s.InsertOrUpdate(types.TierGrey, Entry{Addr: a}))

	// 已在灰名单的地址不会被并入白名单
	assert.Equal(t, 0, s.InsertOrUpdate(types.TierWhite, Entry{Addr: a}))

	tier, ok := s.TierOf(a)
	require.True(t, ok)
	assert.Equal(t, types.TierGrey, tier)
	assert.Equal(t, 1, s.Len(types.TierGrey))
	assert.Equal(t, 0, s.Len(types.TierWhite))

	t.Log("✅ 分级互斥：地址只存在于首个并入的分级")
}

func TestInsertOrUpdate_RefreshLastSeen(t *testing.T) {
	s := newStore(t)
	a := addr(t, "tcp://10.0.0.1:9595")

	old := time.Unix(1000, 0)
	newer := time.Unix(2000, 0)

	s.InsertOrUpdate(types.TierGrey, Entry{Addr: a, LastSeen: old})
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: a, LastSeen: newer})

	e, _, ok := s.FetchRandom(types.TierGrey, nil)
	require.True(t, ok)
	assert.Equal(t, newer, e.LastSeen)

	// 更旧的时间戳不回退
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: a, LastSeen: old})
	e, _, ok = s.FetchRandom(types.TierGrey, nil)
	require.True(t, ok)
	assert.Equal(t, newer, e.LastSeen)
}

func TestInsertOrUpdate_Filters(t *testing.T) {
	t.Run("本地地址", func(t *testing.T) {
		s := newStore(t, func(c *Config) { c.Localnet = false })
		assert.Equal(t, 0, s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://127.0.0.1:9595")}))
		assert.Equal(t, 0, s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://192.168.1.5:9595")}))
		assert.Equal(t, 1, s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://8.8.8.8:9595")}))
	})

	t.Run("黑名单规则", func(t *testing.T) {
		s := newStore(t, func(c *Config) {
			c.Rules = []Rule{{Host: "10.0.0.1"}}
		})
		assert.Equal(t, 0, s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.1:9595")}))
		assert.Equal(t, 1, s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.2:9595")}))
	})

	t.Run("零值地址", func(t *testing.T) {
		s := newStore(t)
		assert.Equal(t, 0, s.InsertOrUpdate(types.TierGrey, Entry{}))
	})
}

func TestPromote(t *testing.T) {
	s := newStore(t)
	a := addr(t, "tcp://10.0.0.1:9595")
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: a})

	require.NoError(t, s.Promote(a, types.TierGrey, types.TierWhite))

	tier, ok := s.TierOf(a)
	require.True(t, ok)
	assert.Equal(t, types.TierWhite, tier)
	assert.Equal(t, 0, s.Len(types.TierGrey))
	assert.Equal(t, 1, s.Len(types.TierWhite))

	// 来源分级不符
	assert.ErrorIs(t, s.Promote(a, types.TierGrey, types.TierGold), ErrNotFound)
	// 不存在的地址
	assert.ErrorIs(t, s.Promote(addr(t, "tcp://10.0.0.9:1"), types.TierGrey, types.TierWhite), ErrNotFound)
	// 同分级为幂等
	assert.NoError(t, s.Promote(a, types.TierWhite, types.TierWhite))
	// 非法分级
	assert.ErrorIs(t, s.Promote(a, types.Tier(99), types.TierWhite), ErrUnknownTier)

	t.Log("✅ 升级原子完成，互斥不变式保持")
}

func TestPromoteAt_StaleIndex(t *testing.T) {
	s := newStore(t)
	a := addr(t, "tcp://10.0.0.1:9595")
	b := addr(t, "tcp://10.0.0.2:9595")
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: a}, Entry{Addr: b})

	_, index, ok := s.FetchExcluding(types.TierGrey, nil, func(x types.Address) bool { return x != a })
	require.True(t, ok)

	// 先移除另一条目使 index 失效，PromoteAt 应回退为扫描
	require.NoError(t, s.Evict(b, types.TierGrey))

	seen := time.Unix(5000, 0)
	require.NoError(t, s.PromoteAt(a, index, types.TierGrey, types.TierWhite, seen))

	e, _, ok := s.FetchRandom(types.TierWhite, nil)
	require.True(t, ok)
	assert.Equal(t, a, e.Addr)
	assert.Equal(t, seen, e.LastSeen)
	assert.Equal(t, 0, s.Len(types.TierGrey))
}

func TestEvictForever_Quarantine(t *testing.T) {
	s := newStore(t)
	a := addr(t, "tcp://10.0.0.1:9595")
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: a})

	_, index, ok := s.FetchRandom(types.TierGrey, nil)
	require.True(t, ok)
	require.NoError(t, s.EvictForever(a, types.TierGrey, index))

	assert.False(t, s.Contains(a))

	// 隔离期内流言无法把地址带回灰/白名单
	assert.Equal(t, 0, s.InsertOrUpdate(types.TierGrey, Entry{Addr: a}))
	assert.Equal(t, 0, s.InsertOrUpdate(types.TierWhite, Entry{Addr: a}))

	// 锚名单是运营方决定，越过隔离
	assert.Equal(t, 1, s.InsertOrUpdate(types.TierAnchor, Entry{Addr: a}))

	t.Log("✅ 永久驱逐后地址进入隔离，流言不能使其回流")
}

func TestRemoveAt(t *testing.T) {
	s := newStore(t)
	a := addr(t, "tcp://10.0.0.1:9595")
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: a})

	_, index, ok := s.FetchRandom(types.TierGrey, nil)
	require.True(t, ok)

	require.NoError(t, s.RemoveAt(types.TierGrey, a, index))
	assert.False(t, s.Contains(a))

	assert.ErrorIs(t, s.RemoveAt(types.TierGrey, a, index), ErrNotFound)
	assert.ErrorIs(t, s.RemoveAt(types.Tier(99), a, 0), ErrUnknownTier)
}

func TestMarkers(t *testing.T) {
	s := newStore(t)
	a := addr(t, "tcp://10.0.0.1:9595")

	// pending 认领只能成功一次
	assert.True(t, s.TryPending(a))
	assert.False(t, s.TryPending(a))
	assert.True(t, s.IsPending(a))

	s.ClearPending(a)
	assert.False(t, s.IsPending(a))
	assert.True(t, s.TryPending(a))

	assert.False(t, s.IsMigrating(a))
	s.SetMigrating(a)
	assert.True(t, s.IsMigrating(a))
	s.ClearMigrating(a)
	assert.False(t, s.IsMigrating(a))

	t.Log("✅ pending 认领互斥，migrating 标记可逆")
}

func TestFetchRandom(t *testing.T) {
	s := newStore(t)

	_, _, ok := s.FetchRandom(types.TierGrey, nil)
	assert.False(t, ok, "空分级应返回未命中")

	tcpAddr := addr(t, "tcp://10.0.0.1:9595")
	wsAddr := addr(t, "ws://10.0.0.2:9595")
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: tcpAddr}, Entry{Addr: wsAddr})

	e, index, ok := s.FetchRandom(types.TierGrey, []string{"ws"})
	require.True(t, ok)
	assert.Equal(t, wsAddr, e.Addr)
	assert.GreaterOrEqual(t, index, 0)

	_, _, ok = s.FetchRandom(types.TierGrey, []string{"quic"})
	assert.False(t, ok, "无匹配方案时应返回未命中")

	_, _, ok = s.FetchExcluding(types.TierGrey, nil, func(types.Address) bool { return true })
	assert.False(t, ok, "skip 全排除时应返回未命中")
}

func TestNeighbors_SortedByXOR(t *testing.T) {
	s := newStore(t)

	hosts := []string{
		"tcp://10.0.0.1:9595",
		"tcp://10.0.0.2:9595",
		"tcp://10.0.0.3:9595",
		"ws://10.0.0.4:9595",
		"quic://10.0.0.5:9595",
		"tcp://10.0.0.6:9595",
	}
	for i, h := range hosts {
		tier := types.TierGrey
		if i%2 == 0 {
			tier = types.TierWhite
		}
		s.InsertOrUpdate(tier, Entry{Addr: addr(t, h)})
	}
	// 黑名单成员不出现在近邻里
	banned := addr(t, "tcp://10.0.0.7:9595")
	s.InsertOrUpdate(types.TierBlack, Entry{Addr: banned})

	key := buckets.KeyOf("tcp://10.0.0.1:9595")

	result := s.Neighbors(key, 4)
	require.Len(t, result, 4)

	// 距离严格非降
	prev := buckets.Distance(key, buckets.KeyOf(result[0].String()))
	for _, a := range result[1:] {
		cur := buckets.Distance(key, buckets.KeyOf(a.String()))
		assert.LessOrEqual(t, bytes.Compare(prev[:], cur[:]), 0, "近邻应按 XOR 距离升序")
		prev = cur
	}
	for _, a := range result {
		assert.NotEqual(t, banned, a)
	}

	// n 超过候选总数时返回全部
	all := s.Neighbors(key, 100)
	assert.Len(t, all, len(hosts))

	assert.Nil(t, s.Neighbors(key, 0))

	t.Log("✅ 近邻按 XOR 距离升序且排除黑名单")
}

func TestCounts(t *testing.T) {
	s := newStore(t)
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.1:1")}, Entry{Addr: addr(t, "tcp://10.0.0.2:1")})
	s.InsertOrUpdate(types.TierGold, Entry{Addr: addr(t, "tcp://10.0.0.3:1")})

	counts := s.Counts()
	assert.Equal(t, 2, counts[types.TierGrey])
	assert.Equal(t, 1, counts[types.TierGold])
	assert.Equal(t, 0, counts[types.TierWhite])
}

func TestAdvertisable(t *testing.T) {
	s := newStore(t)
	s.InsertOrUpdate(types.TierWhite, Entry{Addr: addr(t, "tcp://10.0.0.1:1")})
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "ws://10.0.0.2:1")})
	s.InsertOrUpdate(types.TierBlack, Entry{Addr: addr(t, "tcp://10.0.0.3:1")})

	got := s.Advertisable(10, nil)
	assert.Len(t, got, 2, "黑名单成员不对外通告")

	got = s.Advertisable(10, []string{"tcp"})
	require.Len(t, got, 1)
	assert.Equal(t, "tcp", got[0].Addr.Scheme())

	got = s.Advertisable(1, nil)
	assert.Len(t, got, 1, "结果应被 max 截断")

	assert.Nil(t, s.Advertisable(0, nil))
}

func TestClose(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrClosed)
}

// 简单并发冒烟：配合 -race 检查锁覆盖
func TestConcurrentAccess(t *testing.T) {
	s := newStore(t)
	addrs := []types.Address{
		addr(t, "tcp://10.0.0.1:9595"),
		addr(t, "tcp://10.0.0.2:9595"),
		addr(t, "tcp://10.0.0.3:9595"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a := addrs[(n+j)%len(addrs)]
				switch j % 4 {
				case 0:
					s.InsertOrUpdate(types.TierGrey, Entry{Addr: a, LastSeen: time.Unix(int64(j), 0)})
				case 1:
					s.FetchRandom(types.TierGrey, nil)
				case 2:
					if s.TryPending(a) {
						s.ClearPending(a)
					}
				case 3:
					s.Counts()
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(types.TierGrey), len(addrs))
}
