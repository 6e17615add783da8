package protocol

import (
	"context"
	"math/rand"
	"time"

	"github.com/umbra-net/go-umbra/internal/core/channel"
	"github.com/umbra-net/go-umbra/internal/core/wire"
)

// Ping 心跳处理器：周期发送 ping 并检测对端停摆
//
// 应答 pong 是通道内建行为（见 channel 包），本处理器只负责出站
// 心跳：每个心跳周期发一枚新 nonce 的 ping，超过两个周期没有收到
// 匹配的 pong 就认定对端停摆并关闭通道。
type Ping struct {
	ch       *channel.Channel
	env      Env
	interval time.Duration
	sub      *channel.Subscription
}

// NewPing 构造心跳处理器，签名满足 Factory
//
// 订阅在构造期建立：附加先于通道启动时，启动后的首批消息
// 不会因为订阅未就位而丢失。
func NewPing(ch *channel.Channel, env Env) Handler {
	return &Ping{
		ch:       ch,
		env:      env,
		interval: env.Config.Session.HeartbeatInterval.Duration(),
		sub:      ch.Subscribe(wire.CmdPong),
	}
}

// Run 实现 Handler
func (p *Ping) Run(ctx context.Context) {
	sub := p.sub
	defer sub.Cancel()

	if p.interval <= 0 {
		return
	}

	clk := p.env.Clock
	ticker := clk.Ticker(p.interval)
	defer ticker.Stop()

	var (
		nonce    uint64
		pending  bool
		lastPong = clk.Now()
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ch.Stopping():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			var pong wire.Pong
			if err := wire.Decode(msg, &pong); err != nil {
				log.Debug("忽略非法 pong", "addr", p.ch.Addr(), "error", err)
				continue
			}
			if !pending || pong.Nonce != nonce {
				// 迟到或来历不明的应答
				continue
			}
			pending = false
			lastPong = clk.Now()
		case <-ticker.C:
			if idle := clk.Now().Sub(lastPong); idle >= 2*p.interval {
				log.Warn("对端心跳停摆，关闭通道", "addr", p.ch.Addr(), "idle", idle)
				p.ch.Stop()
				return
			}
			nonce = rand.Uint64()
			msg, err := wire.Encode(wire.CmdPing, wire.Ping{Nonce: nonce})
			if err != nil {
				continue
			}
			if err := p.ch.Send(ctx, msg); err != nil {
				return
			}
			pending = true
		}
	}
}
