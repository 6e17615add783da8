// Package tor 提供经 SOCKS5 代理的出站传输
//
// 拨号走两段：先 TCP 连到配置的代理，再在其上执行 SOCKS5
// CONNECT 到目标。能到达 .onion 目标，也能在混用开启时承载
// 普通 tcp / tcp+tls 目标。只能拨出，不支持监听。
package tor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/umbra-net/go-umbra/internal/core/transport/socks5"
	"github.com/umbra-net/go-umbra/internal/core/transport/tlsutil"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// alpnProtocol TLS 握手协商的应用协议名
const alpnProtocol = "umbra/1"

// ErrListenUnsupported tor 传输只能拨出
var ErrListenUnsupported = errors.New("tor transport does not support listening")

// Transport 经 SOCKS5 代理拨出的 TCP 传输，可选 TLS
type Transport struct {
	useTLS       bool
	client       *socks5.Client
	clientConfig *tls.Config
}

// New 创建 tor 传输
func New(proxyURL string, useTLS bool) (*Transport, error) {
	client, err := socks5.ParseProxyURL(proxyURL)
	if err != nil {
		return nil, err
	}
	t := &Transport{useTLS: useTLS, client: client}
	if useTLS {
		t.clientConfig = tlsutil.NewClientConfig(alpnProtocol)
	}
	return t, nil
}

// Scheme 返回服务的地址方案
func (t *Transport) Scheme() string {
	if t.useTLS {
		return types.SchemeTorTLS
	}
	return types.SchemeTor
}

// Dial 经代理建立到 addr 的出站连接
//
// SOCKS5 CONNECT 完成后 conn 即是到目标的透明字节流；
// tor+tls 再在其上完成 TLS 握手。
func (t *Transport) Dial(ctx context.Context, addr types.Address) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.client.ProxyAddr())
	if err != nil {
		return nil, fmt.Errorf("连接代理失败: %w", err)
	}

	if err := t.client.Connect(ctx, conn, addr.Host(), addr.Port()); err != nil {
		conn.Close()
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

// Listen tor 传输不支持监听
func (t *Transport) Listen(types.Address) (net.Listener, error) {
	return nil, ErrListenUnsupported
}

// Close 关闭传输
func (t *Transport) Close() error { return nil }
