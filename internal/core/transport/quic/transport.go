// Package quic 提供基于 QUIC 的传输
//
// 一条 QUIC 连接只承载一条双向流，流被适配成 net.Conn 交给上层：
// 拨号方打开连接后立即开流，监听方接受连接后等待第一条流。
// TLS 1.3 由 QUIC 自带，证书是一次性自签名（对端只验证可解析
// 与有效期，节点身份由版本握手认证）。
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/umbra-net/go-umbra/internal/core/transport/tlsutil"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// alpnProtocol QUIC 握手协商的应用协议名
const alpnProtocol = "umbra/1"

// ErrTransportClosed 传输已关闭
var ErrTransportClosed = errors.New("quic transport closed")

// Config QUIC 传输参数
type Config struct {
	MaxIdleTimeout  time.Duration
	KeepAlivePeriod time.Duration
}

// Transport QUIC 传输
type Transport struct {
	serverConfig *tls.Config
	clientConfig *tls.Config
	quicConfig   *quic.Config

	listeners   map[string]*listener
	listenersMu sync.Mutex

	closed atomic.Bool
}

// New 创建 QUIC 传输
func New(cfg Config) (*Transport, error) {
	serverConfig, err := tlsutil.NewServerConfig(alpnProtocol)
	if err != nil {
		return nil, fmt.Errorf("生成 TLS 配置失败: %w", err)
	}

	return &Transport{
		serverConfig: serverConfig,
		clientConfig: tlsutil.NewClientConfig(alpnProtocol),
		quicConfig: &quic.Config{
			MaxIdleTimeout:  cfg.MaxIdleTimeout,
			KeepAlivePeriod: cfg.KeepAlivePeriod,
		},
		listeners: make(map[string]*listener),
	}, nil
}

// Scheme 返回服务的地址方案
func (t *Transport) Scheme() string { return types.SchemeQUIC }

// Dial 建立出站连接并打开承载流
func (t *Transport) Dial(ctx context.Context, addr types.Address) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	conn, err := quic.DialAddr(ctx, addr.HostPort(), t.clientConfig, t.quicConfig)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("打开流失败: %w", err)
	}

	return &streamConn{Stream: stream, conn: conn}, nil
}

// Listen 监听入站连接
func (t *Transport) Listen(addr types.Address) (net.Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	ql, err := quic.ListenAddr(addr.HostPort(), t.serverConfig, t.quicConfig)
	if err != nil {
		return nil, err
	}

	l := newListener(ql)
	t.listenersMu.Lock()
	t.listeners[ql.Addr().String()] = l
	t.listenersMu.Unlock()
	return l, nil
}

// Close 关闭传输及其持有的监听器
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	var errs error
	for _, l := range t.listeners {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}
	t.listeners = nil
	return errs
}
