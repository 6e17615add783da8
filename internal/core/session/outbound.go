package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/util/task"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// Outbound 出站会话
//
// 维护固定数量的拨号槽位。每个槽位独立循环：空闲时向主机表要
// 一个候选，认领后拨号；成功则晋升或刷新条目并守到断开，拨号
// 失败的灰名单候选直接打入隔离区。另有一个看门狗盯出站连接数，
// 长时间为零时告警。
type Outbound struct {
	base
	slots []*slot
}

// slot 一个拨号槽位的可观测状态
type slot struct {
	id    int
	state atomic.Int32
	addr  atomic.Value // types.Address
}

func newSlot(id int) *slot {
	s := &slot{id: id}
	s.addr.Store(types.Address{})
	return s
}

func (s *slot) set(state types.SlotState, addr types.Address) {
	s.state.Store(int32(state))
	s.addr.Store(addr)
}

// SlotInfo 槽位状态快照
type SlotInfo struct {
	ID    int
	State types.SlotState
	Addr  types.Address
}

// NewOutbound 构造出站会话，槽位数取自配置
func NewOutbound(co Coordinator) *Outbound {
	n := co.Settings().Session.OutboundConnections
	slots := make([]*slot, 0, n)
	for id := 0; id < n; id++ {
		slots = append(slots, newSlot(id))
	}
	return &Outbound{base: newBase(types.SessionOutbound, co), slots: slots}
}

// Start 启动全部槽位循环与看门狗
func (o *Outbound) Start() error {
	if len(o.slots) == 0 {
		log.Info("出站槽位数为 0，跳过出站会话")
		return nil
	}
	for _, s := range o.slots {
		o.tasks.Go(func(ctx context.Context) {
			o.slotLoop(ctx, s)
		})
	}
	o.tasks.Go(o.watchdog)
	log.Info("出站会话已启动", "slots", len(o.slots))
	return nil
}

// Slots 返回各槽位的状态快照
func (o *Outbound) Slots() []SlotInfo {
	out := make([]SlotInfo, 0, len(o.slots))
	for _, s := range o.slots {
		out = append(out, SlotInfo{
			ID:    s.id,
			State: types.SlotState(s.state.Load()),
			Addr:  s.addr.Load().(types.Address),
		})
	}
	return out
}

// slotLoop 单个槽位的生命循环
//
// 选择、认领、拨号、守护、释放，周而复始。没有候选时按
// PeerDiscoveryCooloff 休眠，拨号失败按 PeerDiscoveryAttempt
// 休眠，认领竞争失败立即重选。
func (o *Outbound) slotLoop(ctx context.Context, s *slot) {
	co := o.co
	clk := co.Clock()
	cfg := co.Settings()
	schemes := cfg.Transport.AllowedSchemes
	cooloff := cfg.Session.PeerDiscoveryCooloff.Duration()
	attempt := cfg.Session.PeerDiscoveryAttempt.Duration()

	for ctx.Err() == nil {
		s.set(types.SlotDead, types.Address{})

		cand, ok := co.Hosts().PickDialCandidate(s.id, schemes, o.dialing)
		if !ok {
			o.emit(fmt.Sprintf("slot %d idle: no candidate", s.id))
			if !task.Sleep(ctx, clk, cooloff) {
				return
			}
			continue
		}
		addr := cand.Entry.Addr

		// 认领是跨会话的拨号去重点，竞争失败就换下一个
		co.Hosts().SetMigrating(addr)
		if !co.Hosts().TryPending(addr) {
			co.Hosts().ClearMigrating(addr)
			continue
		}

		s.set(types.SlotConnecting, addr)
		o.emit(fmt.Sprintf("slot %d connecting %s", s.id, addr))

		ch, err := co.Connector().Connect(ctx, addr, types.SessionOutbound)
		if err != nil {
			o.dialFailed(cand, err)
			s.set(types.SlotDead, types.Address{})
			o.emit(fmt.Sprintf("slot %d dial failed %s", s.id, addr))
			if !task.Sleep(ctx, clk, attempt) {
				return
			}
			continue
		}

		o.dialSucceeded(cand)
		s.set(types.SlotConnected, addr)
		o.emit(fmt.Sprintf("slot %d connected %s", s.id, addr))
		o.greylistAdvertised(ch)

		// 认领保持到通道退册，选择器全程跳过该地址
		err = o.runChannel(ctx, ch)
		co.Hosts().ClearPending(addr)
		co.Hosts().ClearMigrating(addr)
		if err != nil {
			log.Debug("出站通道注册被拒", "addr", addr, "error", err)
		}

		s.set(types.SlotDead, types.Address{})
		if !task.Sleep(ctx, clk, attempt) {
			return
		}
	}
}

// dialing 选择器的会话侧排除：已有通道的地址不再拨
func (o *Outbound) dialing(addr types.Address) bool {
	return o.co.Channels().Connected(addr)
}

// dialFailed 处理拨号失败的候选
//
// 灰名单条目一次失败即打入隔离区；更高分级的条目留在原地，
// 等巡检或下一轮拨号再议。
func (o *Outbound) dialFailed(cand hoststore.Candidate, err error) {
	addr := cand.Entry.Addr
	hosts := o.co.Hosts()
	if cand.Tier == types.TierGrey {
		if e := hosts.EvictForever(addr, cand.Tier, cand.Index); e != nil {
			log.Debug("灰名单候选隔离失败", "addr", addr, "error", e)
		}
	}
	hosts.ClearPending(addr)
	hosts.ClearMigrating(addr)
	log.Debug("出站拨号失败", "addr", addr, "tier", cand.Tier, "error", err)
}

// dialSucceeded 拨通后的主机表回写
//
// 灰名单候选晋升白名单；其余分级原地刷新 LastSeen。
func (o *Outbound) dialSucceeded(cand hoststore.Candidate) {
	addr := cand.Entry.Addr
	hosts := o.co.Hosts()
	now := o.co.Clock().Now()
	if cand.Tier == types.TierGrey {
		if err := hosts.PromoteAt(addr, cand.Index, types.TierGrey, types.TierWhite, now); err != nil {
			// 条目在拨号期间被挪动过，按新条目收进白名单
			hosts.InsertOrUpdate(types.TierWhite, hoststore.Entry{Addr: addr, LastSeen: now})
		}
		return
	}
	hosts.InsertOrUpdate(cand.Tier, hoststore.Entry{Addr: addr, LastSeen: now})
}

// watchdog 盯住出站连接数，持续为零超过阈值时告警
func (o *Outbound) watchdog(ctx context.Context) {
	threshold := o.co.Settings().Session.TimeWithNoConnections.Duration()
	if threshold <= 0 {
		return
	}
	clk := o.co.Clock()
	poll := threshold / 4
	last := clk.Now()

	for {
		if !task.Sleep(ctx, clk, poll) {
			return
		}
		if o.co.Channels().LenKind(types.SessionOutbound) > 0 {
			last = clk.Now()
			continue
		}
		if idle := clk.Now().Sub(last); idle >= threshold {
			log.Warn("长时间没有出站连接", "idle", idle)
			o.emit("no outbound connections for " + idle.String())
			last = clk.Now()
		}
	}
}
