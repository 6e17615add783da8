package channel

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/umbra-net/go-umbra/internal/core/identity"
	"github.com/umbra-net/go-umbra/internal/core/transport"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// ConnectorConfig 连接器参数
type ConnectorConfig struct {
	// ConnectTimeout 出站连接建立时限（拨号 + 握手）
	ConnectTimeout time.Duration

	// HandshakeTimeout version/verack 交换时限
	HandshakeTimeout time.Duration

	// Clock 可注入时钟，nil 使用真实时钟
	Clock clock.Clock
}

// Connector 通道的统一构建器
//
// 出站拨号与入站包装共用同一份本节点身份与时限，
// 保证两个方向的握手通告一致。
type Connector struct {
	transports       *transport.Registry
	ident            *identity.Identity
	connectTimeout   time.Duration
	handshakeTimeout time.Duration
	clk              clock.Clock
}

// NewConnector 创建连接器
func NewConnector(transports *transport.Registry, ident *identity.Identity, cfg ConnectorConfig) *Connector {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Connector{
		transports:       transports,
		ident:            ident,
		connectTimeout:   cfg.ConnectTimeout,
		handshakeTimeout: cfg.HandshakeTimeout,
		clk:              clk,
	}
}

// Connect 拨号并完成握手
//
// 整个过程受出站连接时限约束。返回的通道已握手但尚未注册、
// 尚未启动循环；失败时连接已经关闭。
func (c *Connector) Connect(ctx context.Context, addr types.Address, kind types.SessionKind) (*Channel, error) {
	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	conn, err := c.transports.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	ch := c.wrap(conn, addr, kind)
	if err := ch.PerformHandshake(ctx); err != nil {
		ch.Stop()
		return nil, fmt.Errorf("与 %s 握手失败: %w", addr, err)
	}
	return ch, nil
}

// Probe 拨号加握手，成功后立即断开
//
// 用于灰名单精炼探测，不注册任何状态。
func (c *Connector) Probe(ctx context.Context, addr types.Address) error {
	ch, err := c.Connect(ctx, addr, types.SessionOutbound)
	if err != nil {
		return err
	}
	ch.Stop()
	return nil
}

// NewInbound 在已接受的连接上创建入站通道
//
// 返回的通道尚未握手。
func (c *Connector) NewInbound(conn net.Conn, addr types.Address) *Channel {
	return c.wrap(conn, addr, types.SessionInbound)
}

func (c *Connector) wrap(conn net.Conn, addr types.Address, kind types.SessionKind) *Channel {
	return New(conn, Config{
		Kind:             kind,
		Addr:             addr,
		LocalVersion:     c.ident.Version(),
		HandshakeTimeout: c.handshakeTimeout,
		Clock:            c.clk,
	})
}
