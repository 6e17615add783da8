// Package tcp 提供明文与 TLS 加密的 TCP 传输
//
// 同一个实现服务两种方案：tcp 直接透传 net.Conn；tcp+tls 在其上
// 以一次性自签名证书升级为 TLS 1.3（对端证书只验证可解析与有效期，
// 节点身份由版本握手认证）。
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/umbra-net/go-umbra/internal/core/transport/tlsutil"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// alpnProtocol TLS 握手协商的应用协议名
const alpnProtocol = "umbra/1"

// ErrTransportClosed 传输已关闭
var ErrTransportClosed = errors.New("tcp transport closed")

// Transport TCP 传输，可选 TLS 加密
type Transport struct {
	useTLS       bool
	serverConfig *tls.Config
	clientConfig *tls.Config

	listeners   map[string]net.Listener
	listenersMu sync.Mutex

	closed atomic.Bool
}

// New 创建 TCP 传输
func New(useTLS bool) (*Transport, error) {
	t := &Transport{
		useTLS:    useTLS,
		listeners: make(map[string]net.Listener),
	}
	if useTLS {
		serverConfig, err := tlsutil.NewServerConfig(alpnProtocol)
		if err != nil {
			return nil, fmt.Errorf("生成 TLS 配置失败: %w", err)
		}
		t.serverConfig = serverConfig
		t.clientConfig = tlsutil.NewClientConfig(alpnProtocol)
	}
	return t, nil
}

// Scheme 返回服务的地址方案
func (t *Transport) Scheme() string {
	if t.useTLS {
		return types.SchemeTCPTLS
	}
	return types.SchemeTCP
}

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, addr types.Address) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr.HostPort())
	if err != nil {
		return nil, err
	}
	if !t.useTLS {
		return conn, nil
	}

	tlsConn := tls.Client(conn, t.clientConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TLS 握手失败: %w", err)
	}
	return tlsConn, nil
}

// Listen 监听入站连接
func (t *Transport) Listen(addr types.Address) (net.Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	ln, err := net.Listen("tcp", addr.HostPort())
	if err != nil {
		return nil, err
	}
	if t.useTLS {
		ln = tls.NewListener(ln, t.serverConfig)
	}

	t.listenersMu.Lock()
	t.listeners[ln.Addr().String()] = ln
	t.listenersMu.Unlock()
	return ln, nil
}

// Close 关闭传输及其持有的监听器
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	var errs error
	for _, ln := range t.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}
	t.listeners = nil
	return errs
}
