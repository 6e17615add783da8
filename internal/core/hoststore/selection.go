package hoststore

import (
	"github.com/umbra-net/go-umbra/pkg/types"
)

// Candidate 一次出站选择的结果
//
// Tier/Index 回指条目取出时的位置，拨号失败时可用
// RemoveAt / EvictForever 精确移除。
type Candidate struct {
	Entry Entry
	Tier  types.Tier
	Index int
}

// PickDialCandidate 为出站槽位做加权选择
//
// 槽位序号小于 GoldSlots 的优先金/锚名单；其余槽位以
// WhitePercent 的概率优先白名单，否则优先灰名单。偏好分级
// 无可用条目时按固定顺序回退到其他分级；严格模式下不回退，
// 直接返回未命中（槽位等待下一轮）。黑名单、本地地址与
// migrating/pending 标记无条件排除；skip 在锁内执行，只做
// 会话侧的追加排除（如已连接），不得回调本表。
func (s *Store) PickDialCandidate(slot int, schemes []string, skip func(types.Address) bool) (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exclude := func(addr types.Address) bool {
		if _, ok := s.migrating[addr]; ok {
			return true
		}
		if _, ok := s.pending[addr]; ok {
			return true
		}
		return skip != nil && skip(addr)
	}

	var ladder []types.Tier
	switch {
	case slot < s.goldSlots:
		ladder = []types.Tier{types.TierGold, types.TierAnchor, types.TierWhite, types.TierGrey}
	case s.rng.Intn(100) < s.whitePercent:
		ladder = []types.Tier{types.TierWhite, types.TierGrey, types.TierGold, types.TierAnchor}
	default:
		ladder = []types.Tier{types.TierGrey, types.TierWhite, types.TierGold, types.TierAnchor}
	}

	for i, tier := range ladder {
		entry, index, ok := s.fetchLocked(tier, schemes, exclude)
		if ok {
			return Candidate{Entry: entry, Tier: tier, Index: index}, true
		}
		// 严格模式只看偏好池：金槽位的偏好池是金+锚两级
		if s.strict {
			if slot < s.goldSlots && i == 0 {
				continue
			}
			break
		}
	}
	return Candidate{}, false
}
