package umbra

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/umbra-net/go-umbra/internal/core/wire"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              协议注册
// ════════════════════════════════════════════════════════════════════════════

// RegisterProtocol 注册应用层协议
//
// kinds 指明协议适用的会话类别；此后这些会话的每条新通道都会
// 实例化一个处理器并在独立任务上运行。通常在 Start 之前注册，
// 运行中注册只影响之后建立的通道。
func (p *P2p) RegisterProtocol(kinds types.SessionKind, factory ProtocolFactory) {
	p.protocols.Register(kinds, factory)
	log.Debug("协议已注册", "kinds", kinds)
}

// ════════════════════════════════════════════════════════════════════════════
//                              广播
// ════════════════════════════════════════════════════════════════════════════

// Broadcast 向所有活跃通道广播一条消息
//
// payload 按命令的线格式编码。发送按通道独立进行，个别通道
// 失败不影响其余通道，失败合并在返回值里。
func (p *P2p) Broadcast(ctx context.Context, command string, payload any) error {
	return p.BroadcastWithExclude(ctx, command, payload, nil)
}

// DecodeMessage 将消息负载解码到 payload
//
// Broadcast 的接收侧配套：协议处理器从通道订阅收到 Message 后，
// 用它把 JSON 负载还原为业务结构。
func DecodeMessage(msg Message, payload any) error {
	return wire.Decode(msg, payload)
}

// BroadcastWithExclude 广播但跳过指定地址
//
// 典型用法是转发：收到消息的通道地址放进 excluded，避免回传。
func (p *P2p) BroadcastWithExclude(ctx context.Context, command string, payload any, excluded []types.Address) error {
	msg, err := wire.Encode(command, payload)
	if err != nil {
		return err
	}

	skip := make(map[types.Address]struct{}, len(excluded))
	for _, a := range excluded {
		skip[a] = struct{}{}
	}

	var errs error
	sent := 0
	for _, ch := range p.channels.All() {
		if _, ok := skip[ch.Addr()]; ok {
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("广播到 %s 失败: %w", ch.Addr(), err))
			continue
		}
		sent++
	}

	log.Debug("广播完成", "command", command, "sent", sent, "excluded", len(excluded))
	return errs
}

// ════════════════════════════════════════════════════════════════════════════
//                              状态快照
// ════════════════════════════════════════════════════════════════════════════

// Info 节点状态快照
type Info struct {
	// State 生命周期状态
	State string `json:"state"`

	// NodeID 本节点标识
	NodeID string `json:"node_id"`

	// AppVersion 应用版本
	AppVersion string `json:"app_version"`

	// ExternalAddrs 对外通告地址
	ExternalAddrs []string `json:"external_addrs,omitempty"`

	// Hosts 各分级的条目数
	Hosts map[string]int `json:"hosts"`

	// Sessions 各会话状态
	Sessions SessionsInfo `json:"sessions"`

	// Channels 活跃通道列表
	Channels []ChannelInfo `json:"channels"`
}

// SessionsInfo 各会话的状态快照
type SessionsInfo struct {
	Manual   ManualInfo   `json:"manual"`
	Inbound  InboundInfo  `json:"inbound"`
	Outbound OutboundInfo `json:"outbound"`
}

// ManualInfo 手动会话状态
type ManualInfo struct {
	// Peers 配置的静态对端
	Peers []string `json:"peers,omitempty"`

	// Connected 已连上的静态对端数
	Connected int `json:"connected"`
}

// InboundInfo 入站会话状态
type InboundInfo struct {
	// ListenAddrs 实际绑定的监听地址
	ListenAddrs []string `json:"listen_addrs,omitempty"`

	// Connected 活跃入站连接数
	Connected int `json:"connected"`
}

// OutboundInfo 出站会话状态
type OutboundInfo struct {
	// Slots 各槽位状态
	Slots []SlotStatus `json:"slots,omitempty"`
}

// SlotStatus 单个出站槽位
type SlotStatus struct {
	ID    int    `json:"id"`
	State string `json:"state"`
	Addr  string `json:"addr,omitempty"`
}

// ChannelInfo 单条活跃通道
type ChannelInfo struct {
	Addr      string `json:"addr"`
	Direction string `json:"direction"`
	RemoteID  string `json:"remote_id,omitempty"`
	Age       string `json:"age"`
}

// GetInfo 取一份节点状态快照
//
// 只读各组件的内存状态，不做任何网络操作，可在任意生命周期
// 阶段调用；供诊断与控制面 RPC 透出。
func (p *P2p) GetInfo() Info {
	info := Info{
		State:         p.State().String(),
		NodeID:        p.ident.NodeID,
		AppVersion:    p.ident.AppVersion,
		ExternalAddrs: addrStrings(p.ident.ExternalAddrs),
		Hosts:         make(map[string]int),
	}

	for tier, n := range p.store.Counts() {
		info.Hosts[tier.String()] = n
	}

	info.Sessions.Manual = ManualInfo{
		Peers:     addrStrings(p.manual.Peers()),
		Connected: p.channels.LenKind(types.SessionManual),
	}
	info.Sessions.Inbound = InboundInfo{
		ListenAddrs: addrStrings(p.inbound.ListenAddrs()),
		Connected:   p.channels.LenKind(types.SessionInbound),
	}
	for _, slot := range p.outbound.Slots() {
		st := SlotStatus{ID: slot.ID, State: slot.State.String()}
		if !slot.Addr.IsZero() {
			st.Addr = slot.Addr.String()
		}
		info.Sessions.Outbound.Slots = append(info.Sessions.Outbound.Slots, st)
	}

	now := p.clk.Now()
	for _, ch := range p.channels.All() {
		info.Channels = append(info.Channels, ChannelInfo{
			Addr:      ch.Addr().String(),
			Direction: ch.Direction().String(),
			RemoteID:  types.ShortID(ch.Remote().NodeID),
			Age:       now.Sub(ch.Opened()).Round(time.Second).String(),
		})
	}

	return info
}

// addrStrings 地址列表转字符串列表
func addrStrings(addrs []types.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
