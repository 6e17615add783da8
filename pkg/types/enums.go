package types

// ============================================================================
//                              Tier - 主机分级
// ============================================================================

// Tier 主机存储分级
//
// 任一地址同一时刻至多属于一个分级。
type Tier int

const (
	// TierGrey 灰名单（未验证的候选地址）
	TierGrey Tier = iota
	// TierWhite 白名单（近期验证可达的地址）
	TierWhite
	// TierGold 金名单（长期稳定的地址）
	TierGold
	// TierAnchor 锚名单（运营方固定的地址）
	TierAnchor
	// TierBlack 黑名单（禁止连接的地址）
	TierBlack
)

// String 返回分级的字符串表示
func (t Tier) String() string {
	switch t {
	case TierGrey:
		return "greylist"
	case TierWhite:
		return "whitelist"
	case TierGold:
		return "goldlist"
	case TierAnchor:
		return "anchorlist"
	case TierBlack:
		return "blacklist"
	default:
		return "unknown"
	}
}

// AllTiers 返回全部分级（按可信度升序）
func AllTiers() []Tier {
	return []Tier{TierGrey, TierWhite, TierGold, TierAnchor, TierBlack}
}

// ============================================================================
//                              Direction - 连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站连接
	DirInbound
	// DirOutbound 出站连接
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              SessionKind - 会话类型
// ============================================================================

// SessionKind 会话类型位标志
//
// 协议注册以 SessionKind 组合为键，指定协议在哪些会话的通道上实例化。
type SessionKind uint32

const (
	// SessionSeed 种子会话（一次性引导）
	SessionSeed SessionKind = 1 << iota
	// SessionManual 手动会话（静态对端）
	SessionManual
	// SessionInbound 入站会话
	SessionInbound
	// SessionOutbound 出站会话
	SessionOutbound
)

// SessionAll 全部会话类型
const SessionAll = SessionSeed | SessionManual | SessionInbound | SessionOutbound

// Has 报告 k 是否包含 other 中的任一类型
func (k SessionKind) Has(other SessionKind) bool {
	return k&other != 0
}

// String 返回会话类型的字符串表示
func (k SessionKind) String() string {
	names := ""
	appendName := func(name string) {
		if names != "" {
			names += "|"
		}
		names += name
	}
	if k.Has(SessionSeed) {
		appendName("seed")
	}
	if k.Has(SessionManual) {
		appendName("manual")
	}
	if k.Has(SessionInbound) {
		appendName("inbound")
	}
	if k.Has(SessionOutbound) {
		appendName("outbound")
	}
	if names == "" {
		return "none"
	}
	return names
}

// ============================================================================
//                              SlotState - 出站槽位状态
// ============================================================================

// SlotState 出站槽位状态
type SlotState int32

const (
	// SlotDead 空闲（无连接）
	SlotDead SlotState = iota
	// SlotConnecting 正在连接
	SlotConnecting
	// SlotConnected 已连接
	SlotConnected
)

// String 返回槽位状态的字符串表示
func (s SlotState) String() string {
	switch s {
	case SlotDead:
		return "dead"
	case SlotConnecting:
		return "connecting"
	case SlotConnected:
		return "connected"
	default:
		return "unknown"
	}
}
