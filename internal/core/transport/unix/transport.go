// Package unix 提供 Unix 域套接字传输
//
// 地址形如 unix:///run/umbra.sock，端口无意义。
// 主要服务本地网络（localnet）部署与进程内测试。
package unix

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/umbra-net/go-umbra/pkg/types"
)

// ErrTransportClosed 传输已关闭
var ErrTransportClosed = errors.New("unix transport closed")

// Transport Unix 域套接字传输
type Transport struct {
	listeners   map[string]net.Listener
	listenersMu sync.Mutex
	closed      atomic.Bool
}

// New 创建 unix 传输
func New() *Transport {
	return &Transport{listeners: make(map[string]net.Listener)}
}

// Scheme 返回服务的地址方案
func (t *Transport) Scheme() string { return types.SchemeUnix }

// Dial 连接到套接字路径
func (t *Transport) Dial(ctx context.Context, addr types.Address) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	var d net.Dialer
	return d.DialContext(ctx, "unix", addr.Path())
}

// Listen 监听套接字路径
func (t *Transport) Listen(addr types.Address) (net.Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	ln, err := net.Listen("unix", addr.Path())
	if err != nil {
		return nil, err
	}

	t.listenersMu.Lock()
	t.listeners[addr.Path()] = ln
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
