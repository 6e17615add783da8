package hoststore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umbra-net/go-umbra/pkg/types"
)

func TestPickDialCandidate_GoldSlot(t *testing.T) {
	s := newStore(t) // GoldSlots = 2
	goldAddr := addr(t, "tcp://10.0.0.1:9595")
	whiteAddr := addr(t, "tcp://10.0.0.2:9595")
	s.InsertOrUpdate(types.TierGold, Entry{Addr: goldAddr})
	s.InsertOrUpdate(types.TierWhite, Entry{Addr: whiteAddr})

	for slot := 0; slot < 2; slot++ {
		cand, ok := s.PickDialCandidate(slot, nil, nil)
		require.True(t, ok)
		assert.Equal(t, types.TierGold, cand.Tier, "金槽位应优先金名单")
		assert.Equal(t, goldAddr, cand.Entry.Addr)
	}

	t.Log("✅ 金槽位优先金名单")
}

func TestPickDialCandidate_AnchorInGoldPool(t *testing.T) {
	s := newStore(t)
	anchorAddr := addr(t, "tcp://10.0.0.1:9595")
	s.InsertOrUpdate(types.TierAnchor, Entry{Addr: anchorAddr})
	s.InsertOrUpdate(types.TierWhite, Entry{Addr: addr(t, "tcp://10.0.0.2:9595")})

	cand, ok := s.PickDialCandidate(0, nil, nil)
	require.True(t, ok)
	assert.Equal(t, types.TierAnchor, cand.Tier, "金名单为空时金槽位取锚名单")
	assert.Equal(t, anchorAddr, cand.Entry.Addr)
}

func TestPickDialCandidate_WhitePercent(t *testing.T) {
	t.Run("百分之百选白", func(t *testing.T) {
		s := newStore(t, func(c *Config) { c.WhitePercent = 100 })
		s.InsertOrUpdate(types.TierWhite, Entry{Addr: addr(t, "tcp://10.0.0.1:9595")})
		s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.2:9595")})

		for i := 0; i < 20; i++ {
			cand, ok := s.PickDialCandidate(5, nil, nil)
			require.True(t, ok)
			assert.Equal(t, types.TierWhite, cand.Tier)
		}
	})

	t.Run("百分之零选灰", func(t *testing.T) {
		s := newStore(t, func(c *Config) { c.WhitePercent = 0 })
		s.InsertOrUpdate(types.TierWhite, Entry{Addr: addr(t, "tcp://10.0.0.1:9595")})
		s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.2:9595")})

		for i := 0; i < 20; i++ {
			cand, ok := s.PickDialCandidate(5, nil, nil)
			require.True(t, ok)
			assert.Equal(t, types.TierGrey, cand.Tier)
		}
	})
}

func TestPickDialCandidate_Fallback(t *testing.T) {
	// 偏好白名单但白名单为空，回退到灰名单
	s := newStore(t, func(c *Config) { c.WhitePercent = 100 })
	greyAddr := addr(t, "tcp://10.0.0.1:9595")
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: greyAddr})

	cand, ok := s.PickDialCandidate(5, nil, nil)
	require.True(t, ok)
	assert.Equal(t, types.TierGrey, cand.Tier)

	// 全空时未命中
	empty := newStore(t)
	_, ok = empty.PickDialCandidate(0, nil, nil)
	assert.False(t, ok)

	t.Log("✅ 偏好分级为空时按阶梯回退")
}

func TestPickDialCandidate_Strict(t *testing.T) {
	t.Run("白槽位不回退", func(t *testing.T) {
		s := newStore(t, func(c *Config) {
			c.Strict = true
			c.WhitePercent = 100
		})
		s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.1:9595")})

		_, ok := s.PickDialCandidate(5, nil, nil)
		assert.False(t, ok, "严格模式下白名单为空的槽位应等待")
	})

	t.Run("金槽位的严格池含锚", func(t *testing.T) {
		s := newStore(t, func(c *Config) { c.Strict = true })
		anchorAddr := addr(t, "tcp://10.0.0.1:9595")
		s.InsertOrUpdate(types.TierAnchor, Entry{Addr: anchorAddr})
		s.InsertOrUpdate(types.TierWhite, Entry{Addr: addr(t, "tcp://10.0.0.2:9595")})

		cand, ok := s.PickDialCandidate(0, nil, nil)
		require.True(t, ok)
		assert.Equal(t, types.TierAnchor, cand.Tier)
	})

	t.Run("金槽位金锚全空不回退", func(t *testing.T) {
		s := newStore(t, func(c *Config) { c.Strict = true })
		s.InsertOrUpdate(types.TierWhite, Entry{Addr: addr(t, "tcp://10.0.0.1:9595")})

		_, ok := s.PickDialCandidate(0, nil, nil)
		assert.False(t, ok)
	})

	t.Log("✅ 严格槽位偏好只看偏好池")
}

func TestPickDialCandidate_Filters(t *testing.T) {
	t.Run("会话侧排除", func(t *testing.T) {
		s := newStore(t)
		busy := addr(t, "tcp://10.0.0.1:9595")
		s.InsertOrUpdate(types.TierGrey, Entry{Addr: busy})

		_, ok := s.PickDialCandidate(5, nil, func(a types.Address) bool { return a == busy })
		assert.False(t, ok)
	})

	t.Run("黑名单无条件排除", func(t *testing.T) {
		s := newStore(t, func(c *Config) {
			c.Rules = []Rule{{Host: "10.0.0.1"}}
		})
		// 直接越过入表过滤构造黑名单命中条目
		s.tiers[types.TierGrey] = append(s.tiers[types.TierGrey], Entry{Addr: addr(t, "tcp://10.0.0.1:9595")})
		s.index[addr(t, "tcp://10.0.0.1:9595")] = types.TierGrey

		_, ok := s.PickDialCandidate(5, nil, nil)
		assert.False(t, ok)
	})

	t.Run("方案过滤", func(t *testing.T) {
		s := newStore(t)
		s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "ws://10.0.0.1:9595")})

		_, ok := s.PickDialCandidate(5, []string{"tcp"}, nil)
		assert.False(t, ok)
	})
}

func TestPickDialCandidate_SkipsMarked(t *testing.T) {
	s := newStore(t)
	marked := addr(t, "tcp://10.0.0.1:9595")
	free := addr(t, "tcp://10.0.0.2:9595")
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: marked}, Entry{Addr: free})

	s.SetMigrating(marked)
	for i := 0; i < 10; i++ {
		cand, ok := s.PickDialCandidate(5, nil, nil)
		require.True(t, ok)
		assert.Equal(t, free, cand.Entry.Addr, "migrating 条目不应被选中")
	}

	s.ClearMigrating(marked)
	require.True(t, s.TryPending(marked))
	for i := 0; i < 10; i++ {
		cand, ok := s.PickDialCandidate(5, nil, nil)
		require.True(t, ok)
		assert.Equal(t, free, cand.Entry.Addr, "pending 条目不应被选中")
	}

	t.Log("✅ 选择无条件跳过 migrating/pending 条目")
}

func TestPickDialCandidate_IndexUsable(t *testing.T) {
	s := newStore(t)
	a := addr(t, "tcp://10.0.0.1:9595")
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: a})

	cand, ok := s.PickDialCandidate(5, nil, nil)
	require.True(t, ok)

	// 返回的位置可直接用于精确移除
	require.NoError(t, s.RemoveAt(cand.Tier, cand.Entry.Addr, cand.Index))
	assert.False(t, s.Contains(a))
}
