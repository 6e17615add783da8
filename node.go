package umbra

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/channel"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/core/identity"
	"github.com/umbra-net/go-umbra/internal/core/protocol"
	"github.com/umbra-net/go-umbra/internal/core/refinery"
	"github.com/umbra-net/go-umbra/internal/core/session"
	"github.com/umbra-net/go-umbra/internal/core/transport"
	"github.com/umbra-net/go-umbra/internal/util/logger"
	"github.com/umbra-net/go-umbra/pkg/types"
)

var log = logger.Logger("umbra")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点生命周期状态
//
// 状态只向前推进：Open → Starting → Started → Running → Stopping →
// Stopped。停止后的节点不能复用，需要新建一个。
type NodeState int

const (
	// StateOpen 已创建，未启动
	StateOpen NodeState = iota

	// StateStarting 启动中（内部组件启动、种子自举进行中）
	StateStarting

	// StateStarted 已启动（主机表就绪，运行期会话尚未拉起）
	StateStarted

	// StateRunning 运行中（手动、入站、出站会话与精炼器工作中）
	StateRunning

	// StateStopping 停止中
	StateStopping

	// StateStopped 已停止
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              P2p 协调器
// ════════════════════════════════════════════════════════════════════════════

// P2p 节点总协调器
//
// 把主机存储、传输、连接器、通道注册表、协议注册表、精炼器和
// 四类会话装配成一个节点，并对外暴露生命周期、广播、状态快照
// 与事件订阅。各会话通过窄接口回看协调器，不直接感知彼此。
//
// 使用方式：
//
//	node, err := umbra.New(
//	    umbra.WithListenAddrs("tcp://0.0.0.0:9600"),
//	    umbra.WithSeeds("dnsseed://seed.example.org:9600"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := node.Start(ctx); err != nil {
//	    return err
//	}
//	go handleSignals(node)
//	return node.Run(ctx)
type P2p struct {
	cfg *config.Config
	clk clock.Clock
	app *fx.App

	// 由 Fx 装配注入的组件
	ident      *identity.Identity
	store      *hoststore.Store
	transports *transport.Registry
	connector  *channel.Connector
	channels   *channel.Registry
	protocols  *protocol.Registry
	refine     *refinery.Refinery
	seed       *session.Seed
	manual     *session.Manual
	inbound    *session.Inbound
	outbound   *session.Outbound

	mu    sync.RWMutex
	state NodeState

	// runMu 让运行期会话的拉起与停止互斥，Run 与并发的 Stop
	// 不会交错操作会话
	runMu sync.Mutex

	// stopCh 在停止开始时关闭，唤醒 Run
	stopCh chan struct{}
	// stopped 在停止完成时关闭，支撑 Stop 的幂等等待
	stopped chan struct{}

	// eventSub 通道注册表事件的内部订阅，由事件泵消费
	eventSub chan channel.Event

	chanSubs *subHub[types.ChannelEvent]
	sessSubs *subHub[types.SessionEvent]
	stopSubs *subHub[struct{}]
}

// New 创建节点
//
// 依序应用选项、校验配置、装配内部组件。返回的节点处于 Open
// 状态，尚未打开任何网络资源；配置错误在这里直接暴露。
func New(opts ...Option) (*P2p, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("应用选项失败: %w", err)
		}
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	p := &P2p{
		cfg:      o.cfg,
		clk:      o.clk,
		state:    StateOpen,
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
		chanSubs: newSubHub[types.ChannelEvent](),
		sessSubs: newSubHub[types.SessionEvent](),
		stopSubs: newSubHub[struct{}](),
	}

	app := buildApp(o, p)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("节点装配失败: %w", err)
	}
	p.app = app

	log.Info("节点已创建", "id", p.ident.NodeID, "schemes", o.cfg.Transport.AllowedSchemes)
	return p, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              节点信息
// ════════════════════════════════════════════════════════════════════════════

// ID 返回本节点标识
func (p *P2p) ID() string {
	return p.ident.NodeID
}

// State 返回当前生命周期状态
func (p *P2p) State() NodeState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// ListenAddrs 返回入站会话实际绑定的监听地址
//
// 配置端口为 0 时这里是系统分配后的真实端口。Run 之前为空。
func (p *P2p) ListenAddrs() []types.Address {
	return p.inbound.ListenAddrs()
}

// ExternalAddrs 返回对外通告的本节点地址
func (p *P2p) ExternalAddrs() []types.Address {
	return p.ident.ExternalAddrs
}

// ════════════════════════════════════════════════════════════════════════════
//                              会话切面
// ════════════════════════════════════════════════════════════════════════════

// 会话通过下列访问器回看宿主设施，外部调用方也可用它们
// 直接触达各组件。

// Hosts 返回分级主机存储
func (p *P2p) Hosts() *hoststore.Store { return p.store }

// Channels 返回已连接通道注册表
func (p *P2p) Channels() *channel.Registry { return p.channels }

// Connector 返回出站连接器
func (p *P2p) Connector() *channel.Connector { return p.connector }

// Protocols 返回协议注册表
func (p *P2p) Protocols() *protocol.Registry { return p.protocols }

// Transports 返回传输注册表
func (p *P2p) Transports() *transport.Registry { return p.transports }

// Settings 返回节点配置
func (p *P2p) Settings() *config.Config { return p.cfg }

// Clock 返回节点时钟
func (p *P2p) Clock() clock.Clock { return p.clk }

// Publish 投递一条会话诊断事件
//
// 实现会话侧的协调器接口；事件转发给会话事件订阅者，投递不阻塞。
func (p *P2p) Publish(ev types.SessionEvent) {
	log.Debug("会话诊断", "session", ev.Session, "info", ev.Info)
	p.sessSubs.publish(ev)
}
