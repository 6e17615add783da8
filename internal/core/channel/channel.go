// Package channel 实现单条活跃连接的消息通道
//
// Channel 在一条 net.Conn 上运行读写循环：出站消息经发送队列
// 串行写出，入站消息按线序分发给命令订阅者。ping 在读循环内
// 直接应答 pong，不经订阅；周期性主动探测由协议层驱动。
//
// 通道的装配顺序是 握手 → 注册 → 附加协议 → Start：循环最后
// 启动，保证首条入站消息分发时订阅者已就位。
package channel

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/umbra-net/go-umbra/internal/core/wire"
	"github.com/umbra-net/go-umbra/internal/util/logger"
	"github.com/umbra-net/go-umbra/internal/util/task"
	"github.com/umbra-net/go-umbra/pkg/types"
)

var log = logger.Logger("core/channel")

const (
	// sendQueueSize 发送队列容量
	sendQueueSize = 32
	// subBufferSize 单个订阅的缓冲容量
	subBufferSize = 64
)

// Config 通道参数
type Config struct {
	// Kind 创建该通道的会话类型
	Kind types.SessionKind

	// Addr 对端地址（出站为拨号地址，入站为远端地址）
	Addr types.Address

	// LocalVersion 握手时通告的本节点信息（Timestamp 在握手时填充）
	LocalVersion wire.Version

	// HandshakeTimeout version/verack 交换的整体时限
	HandshakeTimeout time.Duration

	// Clock 可注入时钟，nil 使用真实时钟
	Clock clock.Clock
}

// Channel 一条活跃连接
type Channel struct {
	conn             net.Conn
	addr             types.Address
	kind             types.SessionKind
	localVersion     wire.Version
	handshakeTimeout time.Duration
	clk              clock.Clock
	opened           time.Time

	tasks  *task.Group
	sendCh chan wire.Message

	mu     sync.Mutex
	subs   map[string][]*Subscription
	closed bool

	remoteMu sync.RWMutex
	remote   Info

	startOnce sync.Once
	stopOnce  sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// New 在已建立的连接上创建通道
//
// 返回的通道尚未握手、尚未启动循环。
func New(conn net.Conn, cfg Config) *Channel {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Channel{
		conn:             conn,
		addr:             cfg.Addr,
		kind:             cfg.Kind,
		localVersion:     cfg.LocalVersion,
		handshakeTimeout: cfg.HandshakeTimeout,
		clk:              clk,
		opened:           clk.Now(),
		tasks:            task.NewGroup(),
		sendCh:           make(chan wire.Message, sendQueueSize),
		subs:             make(map[string][]*Subscription),
		closing:          make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// Addr 返回对端地址
func (c *Channel) Addr() types.Address { return c.addr }

// Kind 返回创建该通道的会话类型
func (c *Channel) Kind() types.SessionKind { return c.kind }

// Direction 返回连接方向
func (c *Channel) Direction() types.Direction {
	if c.kind.Has(types.SessionInbound) {
		return types.DirInbound
	}
	return types.DirOutbound
}

// Opened 返回通道的创建时刻
func (c *Channel) Opened() time.Time { return c.opened }

// Remote 返回握手得到的对端信息
func (c *Channel) Remote() Info {
	c.remoteMu.RLock()
	defer c.remoteMu.RUnlock()
	return c.remote
}

// Start 启动读写循环
//
// 只在首次调用生效；通道已停止时不做任何事。
func (c *Channel) Start() {
	c.startOnce.Do(func() {
		select {
		case <-c.closing:
			return
		default:
		}
		c.tasks.Go(c.readLoop)
		c.tasks.Go(c.writeLoop)
	})
}

// Stop 停止通道
//
// 幂等。关闭连接、结束循环并关闭所有订阅；清理在后台完成，
// Done 通道在清理结束后关闭。
func (c *Channel) Stop() {
	c.stopOnce.Do(func() {
		close(c.closing)
		_ = c.conn.Close()
		go func() {
			_ = c.tasks.Close()
			c.closeSubs()
			close(c.done)
		}()
	})
}

// Done 返回通道完全停止后关闭的通道
func (c *Channel) Done() <-chan struct{} { return c.done }

// Stopping 报告通道是否已开始停止
func (c *Channel) Stopping() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// Send 将消息排入发送队列
//
// 队列串行写出，保证消息完整成帧。通道停止或 ctx 取消时返回错误。
func (c *Channel) Send(ctx context.Context, msg wire.Message) error {
	select {
	case c.sendCh <- msg:
		return nil
	case <-c.closing:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
//                              读写循环
// ============================================================================

// readLoop 读循环：按线序分发入站消息
//
// 阻塞读不看 ctx，由 Stop 关闭连接解除阻塞。
func (c *Channel) readLoop(_ context.Context) {
	defer c.Stop()
	for {
		msg, err := wire.ReadMessage(c.conn)
		if err != nil {
			if !c.Stopping() {
				log.Debug("通道读取失败", "addr", c.addr, "error", err)
			}
			return
		}
		if msg.Command == wire.CmdPing {
			if !c.answerPing(msg) {
				return
			}
			continue
		}
		c.dispatch(msg)
	}
}

// writeLoop 写循环：串行写出发送队列
func (c *Channel) writeLoop(_ context.Context) {
	for {
		select {
		case msg := <-c.sendCh:
			if err := wire.WriteMessage(c.conn, msg); err != nil {
				if !c.Stopping() {
					log.Debug("通道写出失败", "addr", c.addr, "error", err)
				}
				c.Stop()
				return
			}
		case <-c.closing:
			return
		}
	}
}

// answerPing 在读循环内直接应答 ping
//
// 返回 false 表示载荷非法，通道按协议错误处理关闭。
func (c *Channel) answerPing(msg wire.Message) bool {
	var ping wire.Ping
	if err := wire.Decode(msg, &ping); err != nil {
		log.Debug("非法 ping 载荷，关闭通道", "addr", c.addr, "error", err)
		c.Stop()
		return false
	}
	pong, err := wire.Encode(wire.CmdPong, wire.Pong{Nonce: ping.Nonce})
	if err != nil {
		return true
	}
	select {
	case c.sendCh <- pong:
	case <-c.closing:
	default:
		// 发送队列满时放弃本次应答，等对端下一轮 ping
		log.Debug("发送队列已满，丢弃 pong", "addr", c.addr)
	}
	return true
}
