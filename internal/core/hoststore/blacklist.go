package hoststore

import (
	"strings"

	"github.com/umbra-net/go-umbra/pkg/types"
)

// Rule 一条黑名单规则
//
// Schemes 或 Ports 为空表示通配该维度；Host 必填，不区分大小写。
type Rule struct {
	Host    string
	Schemes []string
	Ports   []uint16
}

// Matches 判断地址是否命中规则
func (r Rule) Matches(addr types.Address) bool {
	if !strings.EqualFold(r.Host, addr.Host()) {
		return false
	}
	if len(r.Schemes) > 0 {
		hit := false
		for _, s := range r.Schemes {
			if s == addr.Scheme() {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if len(r.Ports) > 0 {
		hit := false
		for _, p := range r.Ports {
			if p == addr.Port() {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Blocked 判断地址是否被禁：黑分级成员或命中任一规则
//
// 入表、候选选择与入站放行都经过这里，无条件生效。
func (s *Store) Blocked(addr types.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockedLocked(addr)
}

func (s *Store) blockedLocked(addr types.Address) bool {
	if tier, ok := s.index[addr]; ok && tier == types.TierBlack {
		return true
	}
	for _, r := range s.rules {
		if r.Matches(addr) {
			return true
		}
	}
	return false
}
