// Package hoststore 实现分级主机地址存储
//
// 远端地址按可信度分五级：灰（新发现未验证）、白（近期可达）、
// 金（长期稳定）、锚（运营方固定）、黑（禁止）。一个地址任一时刻
// 只属于一个分级，升降级在单锁内原子完成。存储同时维护两个
// 瞬态集合：migrating（正被精炼或拨号探测）与 pending（某会话
// 已承诺拨号），用于跨会话去重；以及一个隔离 LRU，记录被永久
// 驱逐的地址，阻止它们经由流言立即回流。
//
// 锁只保护单次变更，从不跨越 I/O；需要稳定视图的读取（近邻
// 搜索、持久化快照）在锁内拷贝后再处理。
package hoststore

import (
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/umbra-net/go-umbra/internal/core/buckets"
	"github.com/umbra-net/go-umbra/internal/util/logger"
	"github.com/umbra-net/go-umbra/pkg/types"
)

var log = logger.Logger("core/hoststore")

// Entry 一条主机记录
type Entry struct {
	Addr     types.Address
	LastSeen time.Time
}

// Config 主机存储参数
type Config struct {
	// Path 持久化文件路径，为空时禁用持久化
	Path string

	// Localnet 为真时不过滤回环/私网地址
	Localnet bool

	// WhitePercent 非金槽位选择白名单的概率（0-100）
	WhitePercent int

	// GoldSlots 优先金/锚名单的出站槽位数
	GoldSlots int

	// Strict 严格槽位偏好：偏好分级为空时不回退
	Strict bool

	// QuarantineSize 永久驱逐隔离缓存容量
	QuarantineSize int

	// Rules 黑名单规则
	Rules []Rule

	// Clock 时钟，nil 时使用真实时钟
	Clock clock.Clock
}

// Store 分级主机地址存储
type Store struct {
	mu sync.RWMutex

	tiers map[types.Tier][]Entry
	// index 保证分级互斥：每个地址至多出现在一个分级
	index map[types.Address]types.Tier

	migrating map[types.Address]struct{}
	pending   map[types.Address]struct{}

	// quarantine 近期被永久驱逐的地址及驱逐时间
	quarantine *lru.Cache[types.Address, time.Time]

	rules        []Rule
	localnet     bool
	whitePercent int
	goldSlots    int
	strict       bool

	rng   *rand.Rand
	clock clock.Clock

	path   string
	closed bool
}

// New 创建主机存储
func New(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.QuarantineSize <= 0 {
		cfg.QuarantineSize = 1024
	}

	quarantine, err := lru.New[types.Address, time.Time](cfg.QuarantineSize)
	if err != nil {
		return nil, err
	}

	s := &Store{
		tiers:        make(map[types.Tier][]Entry),
		index:        make(map[types.Address]types.Tier),
		migrating:    make(map[types.Address]struct{}),
		pending:      make(map[types.Address]struct{}),
		quarantine:   quarantine,
		rules:        cfg.Rules,
		localnet:     cfg.Localnet,
		whitePercent: cfg.WhitePercent,
		goldSlots:    cfg.GoldSlots,
		strict:       cfg.Strict,
		rng:          rand.New(rand.NewSource(cfg.Clock.Now().UnixNano())),
		clock:        cfg.Clock,
		path:         cfg.Path,
	}
	for _, tier := range types.AllTiers() {
		s.tiers[tier] = nil
	}
	return s, nil
}

// validTier 分级合法性检查
func validTier(tier types.Tier) bool {
	switch tier {
	case types.TierGrey, types.TierWhite, types.TierGold, types.TierAnchor, types.TierBlack:
		return true
	}
	return false
}

// ============================================================================
//                              分级操作
// ============================================================================

// InsertOrUpdate 将条目并入指定分级，返回实际并入的条数
//
// 已在其他分级的地址保持原位（分级迁移走 Promote）；同分级的
// 条目只在更新时间更晚时刷新。命中黑名单、被本地地址过滤或
// 仍在隔离缓存中的地址被丢弃；锚名单不受隔离限制。
func (s *Store) InsertOrUpdate(tier types.Tier, entries ...Entry) int {
	if !validTier(tier) {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, e := range entries {
		if e.Addr.IsZero() || !s.admissibleLocked(e.Addr) {
			continue
		}
		if tier != types.TierAnchor {
			if _, held := s.quarantine.Get(e.Addr); held {
				continue
			}
		}

		current, known := s.index[e.Addr]
		if known && current != tier {
			continue
		}
		if known {
			// 同分级：只前移时间戳
			for i := range s.tiers[tier] {
				if s.tiers[tier][i].Addr == e.Addr {
					if e.LastSeen.After(s.tiers[tier][i].LastSeen) {
						s.tiers[tier][i].LastSeen = e.LastSeen
					}
					break
				}
			}
			inserted++
			continue
		}

		s.tiers[tier] = append(s.tiers[tier], e)
		s.index[e.Addr] = tier
		inserted++
	}
	return inserted
}

// Promote 原子地把地址从 from 分级移到 to 分级
func (s *Store) Promote(addr types.Address, from, to types.Tier) error {
	if !validTier(from) || !validTier(to) {
		return ErrUnknownTier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index[addr] != from {
		return ErrNotFound
	}
	if from == to {
		return nil
	}

	entry, ok := s.removeLocked(addr, from, -1)
	if !ok {
		return ErrNotFound
	}
	s.tiers[to] = append(s.tiers[to], entry)
	s.index[addr] = to
	return nil
}

// PromoteAt 原子地把 FetchRandom 取得的条目移入 to 并刷新 LastSeen
//
// index 是取出时记录的位置；条目已经移位时退化为按地址扫描。
func (s *Store) PromoteAt(addr types.Address, index int, from, to types.Tier, lastSeen time.Time) error {
	if !validTier(from) || !validTier(to) {
		return ErrUnknownTier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.removeLocked(addr, from, index)
	if !ok {
		return ErrNotFound
	}
	entry.LastSeen = lastSeen
	s.tiers[to] = append(s.tiers[to], entry)
	s.index[addr] = to
	return nil
}

// Evict 从分级中移除地址
func (s *Store) Evict(addr types.Address, tier types.Tier) error {
	if !validTier(tier) {
		return ErrUnknownTier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.removeLocked(addr, tier, -1); !ok {
		return ErrNotFound
	}
	return nil
}

// EvictForever 移除地址并记入隔离缓存
//
// 隔离期内该地址无法经 InsertOrUpdate 回流（锚名单除外），
// 用于精炼失败的永久驱逐。index 语义同 PromoteAt。
func (s *Store) EvictForever(addr types.Address, tier types.Tier, index int) error {
	if !validTier(tier) {
		return ErrUnknownTier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.removeLocked(addr, tier, index); !ok {
		return ErrNotFound
	}
	s.quarantine.Add(addr, s.clock.Now())
	return nil
}

// RemoveAt 移除 tier 中 index 位置的条目
//
// index 处已不是该地址时按地址扫描，两处都找不到返回 ErrNotFound。
func (s *Store) RemoveAt(tier types.Tier, addr types.Address, index int) error {
	if !validTier(tier) {
		return ErrUnknownTier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.removeLocked(addr, tier, index); !ok {
		return ErrNotFound
	}
	return nil
}

// removeLocked 从 tier 移除 addr 并同步互斥索引
//
// index >= 0 时先试快路径；不匹配则线性扫描。返回被移除的条目。
func (s *Store) removeLocked(addr types.Address, tier types.Tier, index int) (Entry, bool) {
	entries := s.tiers[tier]

	at := -1
	if index >= 0 && index < len(entries) && entries[index].Addr == addr {
		at = index
	} else {
		for i := range entries {
			if entries[i].Addr == addr {
				at = i
				break
			}
		}
	}
	if at < 0 {
		return Entry{}, false
	}

	entry := entries[at]
	entries[at] = entries[len(entries)-1]
	s.tiers[tier] = entries[:len(entries)-1]
	delete(s.index, addr)
	return entry, true
}

// Contains 判断地址是否在任一分级中
func (s *Store) Contains(addr types.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[addr]
	return ok
}

// TierOf 返回地址所在的分级
func (s *Store) TierOf(addr types.Address) (types.Tier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tier, ok := s.index[addr]
	return tier, ok
}

// Len 返回分级中的条目数
func (s *Store) Len(tier types.Tier) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiers[tier])
}

// Counts 返回各分级条目数的快照
func (s *Store) Counts() map[types.Tier]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[types.Tier]int, len(s.tiers))
	for tier, entries := range s.tiers {
		counts[tier] = len(entries)
	}
	return counts
}

// ============================================================================
//                        migrating / pending 标记
// ============================================================================

// IsMigrating 判断地址是否正被探测
func (s *Store) IsMigrating(addr types.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.migrating[addr]
	return ok
}

// SetMigrating 标记地址进入探测
func (s *Store) SetMigrating(addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrating[addr] = struct{}{}
}

// ClearMigrating 解除探测标记
func (s *Store) ClearMigrating(addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.migrating, addr)
}

// IsPending 判断地址是否已被某会话认领
func (s *Store) IsPending(addr types.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[addr]
	return ok
}

// TryPending 认领地址；已被认领时返回 false
//
// 这是跨会话的拨号去重点：两个会话同时相中一个地址时只有
// 一个能认领成功。
func (s *Store) TryPending(addr types.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[addr]; ok {
		return false
	}
	s.pending[addr] = struct{}{}
	return true
}

// ClearPending 解除认领
func (s *Store) ClearPending(addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, addr)
}

// ============================================================================
//                              取数
// ============================================================================

// FetchRandom 从分级随机取一条方案允许的条目
//
// 返回条目副本与取出时的位置，供 PromoteAt / EvictForever 回指。
func (s *Store) FetchRandom(tier types.Tier, schemes []string) (Entry, int, bool) {
	return s.FetchExcluding(tier, schemes, nil)
}

// FetchExcluding 随机取一条未被 skip 排除的条目
//
// 黑名单与本地地址过滤无条件生效，skip 在其后追加会话侧的
// 排除条件（已连接、migrating、pending 等）。
func (s *Store) FetchExcluding(tier types.Tier, schemes []string, skip func(types.Address) bool) (Entry, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchLocked(tier, schemes, skip)
}

func (s *Store) fetchLocked(tier types.Tier, schemes []string, skip func(types.Address) bool) (Entry, int, bool) {
	entries := s.tiers[tier]
	if len(entries) == 0 {
		return Entry{}, 0, false
	}

	candidates := make([]int, 0, len(entries))
	for i, e := range entries {
		if !schemeAllowed(e.Addr.Scheme(), schemes) {
			continue
		}
		if !s.admissibleLocked(e.Addr) {
			continue
		}
		if skip != nil && skip(e.Addr) {
			continue
		}
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return Entry{}, 0, false
	}

	at := candidates[s.rng.Intn(len(candidates))]
	return entries[at], at, true
}

// schemeAllowed 空列表放行所有方案
func schemeAllowed(scheme string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == scheme {
			return true
		}
	}
	return false
}

// admissibleLocked 入表与选择共用的硬过滤
func (s *Store) admissibleLocked(addr types.Address) bool {
	if s.blockedLocked(addr) {
		return false
	}
	if !s.localnet && (addr.IsLoopback() || addr.IsPrivate()) {
		return false
	}
	return true
}

// ============================================================================
//                              近邻搜索
// ============================================================================

// Neighbors 返回距 key 最近的 n 个地址，按 XOR 距离升序
//
// 候选取自黑名单之外的全部分级；先在锁内拷贝快照，距离计算
// 与排序在锁外完成。
func (s *Store) Neighbors(key buckets.Key, n int) []types.Address {
	if n <= 0 {
		return nil
	}

	s.mu.RLock()
	candidates := make([]types.Address, 0, 64)
	for tier, entries := range s.tiers {
		if tier == types.TierBlack {
			continue
		}
		for _, e := range entries {
			if s.blockedLocked(e.Addr) {
				continue
			}
			candidates = append(candidates, e.Addr)
		}
	}
	s.mu.RUnlock()

	keys := make([]buckets.Key, len(candidates))
	for i, addr := range candidates {
		keys[i] = buckets.KeyOf(addr.String())
	}

	result := make([]types.Address, 0, n)
	for _, i := range buckets.Neighbors(key, keys, n) {
		result = append(result, candidates[i])
	}
	return result
}

// ============================================================================
//                              通告
// ============================================================================

// Advertisable 返回可对外通告的条目，随机乱序，至多 max 条
//
// 黑名单成员、命中规则与本地地址（localnet 关闭时）不出现在
// 通告里。
func (s *Store) Advertisable(max int, schemes []string) []Entry {
	if max <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool := make([]Entry, 0, 64)
	for tier, entries := range s.tiers {
		if tier == types.TierBlack {
			continue
		}
		for _, e := range entries {
			if !schemeAllowed(e.Addr.Scheme(), schemes) {
				continue
			}
			if !s.admissibleLocked(e.Addr) {
				continue
			}
			pool = append(pool, e)
		}
	}

	s.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > max {
		pool = pool[:max]
	}
	return pool
}

// Close 关闭存储
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}
