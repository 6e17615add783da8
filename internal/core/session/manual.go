package session

import (
	"context"
	"fmt"

	"github.com/umbra-net/go-umbra/internal/util/task"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// Manual 手动会话：为每个静态对端维持一条盯死的连接
//
// 每个对端一条槽位循环：拨号、握手、附加协议、守到断开、固定
// 间隔后重来。尝试上限耗尽（配置了上限时）后该对端放弃。
type Manual struct {
	base
	peers []types.Address
}

// NewManual 创建手动会话
func NewManual(co Coordinator) *Manual {
	return &Manual{base: newBase(types.SessionManual, co)}
}

// Start 为每个静态对端启动槽位循环
//
// 没有配置静态对端时整个会话跳过。
func (m *Manual) Start() error {
	raw := m.co.Settings().Session.Peers
	if len(raw) == 0 {
		log.Info("未配置静态对端，跳过手动会话")
		return nil
	}

	peers, err := types.ParseAddrs(raw)
	if err != nil {
		return fmt.Errorf("静态对端地址无效: %w", err)
	}
	m.peers = peers

	for _, peer := range peers {
		m.tasks.Go(func(ctx context.Context) {
			m.peerLoop(ctx, peer)
		})
	}
	log.Info("手动会话已启动", "peers", len(peers))
	return nil
}

// Peers 返回静态对端列表
func (m *Manual) Peers() []types.Address { return m.peers }

// peerLoop 盯死单个静态对端
func (m *Manual) peerLoop(ctx context.Context, peer types.Address) {
	cfg := m.co.Settings().Session
	retry := cfg.ManualRetryInterval.Duration()
	limit := cfg.ManualAttemptLimit

	attempts := 0
	for ctx.Err() == nil {
		ch, err := m.co.Connector().Connect(ctx, peer, types.SessionManual)
		if err != nil {
			attempts++
			log.Warn("静态对端连接失败", "peer", peer, "attempt", attempts, "error", err)
			m.emit(fmt.Sprintf("peer %s connect failed (attempt %d)", peer, attempts))
			if limit > 0 && attempts >= limit {
				log.Warn("静态对端尝试次数用尽，放弃", "peer", peer, "attempts", attempts)
				m.emit("peer " + peer.String() + " given up")
				return
			}
			if !task.Sleep(ctx, m.co.Clock(), retry) {
				return
			}
			continue
		}

		// 连上即清零计数：上限约束的是连续失败
		attempts = 0
		m.greylistAdvertised(ch)
		if err := m.runChannel(ctx, ch); err != nil {
			log.Warn("静态对端通道注册被拒", "peer", peer, "error", err)
		}

		if !task.Sleep(ctx, m.co.Clock(), retry) {
			return
		}
	}
}
