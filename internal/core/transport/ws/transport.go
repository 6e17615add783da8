// Package ws 提供基于 WebSocket 的传输
//
// 每条连接是一条二进制消息模式的 WebSocket，适配成 net.Conn：
// 一次 Write 发一条 BinaryMessage，Read 跨消息缓冲。监听侧是
// 一个只升级 "/" 的 http.Server。
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/umbra-net/go-umbra/pkg/types"
)

// ErrTransportClosed 传输已关闭
var ErrTransportClosed = errors.New("ws transport closed")

// Config WebSocket 传输参数
type Config struct {
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
}

// Transport WebSocket 传输
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer

	listeners   map[string]*listener
	listenersMu sync.Mutex

	closed atomic.Bool
}

// New 创建 WebSocket 传输
func New(cfg Config) *Transport {
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
		listeners: make(map[string]*listener),
	}
}

// Scheme 返回服务的地址方案
func (t *Transport) Scheme() string { return types.SchemeWS }

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, addr types.Address) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	url := fmt.Sprintf("ws://%s/", addr.HostPort())
	ws, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return newConn(ws), nil
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

	l := newListener(ln, t.cfg)
	t.listenersMu.Lock()
	t.listeners[ln.Addr().String()] = l
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
