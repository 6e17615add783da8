package transport

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/umbra-net/go-umbra/pkg/types"
)

// mixableCarriers 列出混用开启时可代为承载某方案的其他方案
//
// 键为目标地址方案，值为按优先级排列的承载方案。
// TLS 变体只由 TLS 变体承载，加密属性从不降级。
var mixableCarriers = map[string][]string{
	types.SchemeTCP:    {types.SchemeTor},
	types.SchemeTCPTLS: {types.SchemeTorTLS},
}

// dialOnlySchemes 只能拨出、不能监听的方案
var dialOnlySchemes = map[string]struct{}{
	types.SchemeTor:    {},
	types.SchemeTorTLS: {},
}

// Registry 按方案注册的传输集合
//
// 拨号路由和监听都从这里走，关闭时统一关闭全部传输。
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
	allowed    map[string]struct{}
	mixing     bool
	closed     bool
}

// NewRegistry 创建空的传输注册表
func NewRegistry(allowedSchemes []string, mixing bool) *Registry {
	allowed := make(map[string]struct{}, len(allowedSchemes))
	for _, s := range allowedSchemes {
		allowed[s] = struct{}{}
	}
	return &Registry{
		transports: make(map[string]Transport),
		allowed:    allowed,
		mixing:     mixing,
	}
}

// Register 注册一种传输
func (r *Registry) Register(t Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scheme := t.Scheme()
	if _, ok := r.transports[scheme]; ok {
		return fmt.Errorf("传输方案已注册: %s", scheme)
	}
	r.transports[scheme] = t
	return nil
}

// Get 返回方案对应的传输
func (r *Registry) Get(scheme string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[scheme]
	return t, ok
}

// Allows 报告方案是否在允许集合内
func (r *Registry) Allows(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.allowed[scheme]
	return ok
}

// Schemes 返回已注册方案（排序副本）
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.transports))
	for s := range r.transports {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// DialerFor 选择能拨号 addr 的传输
//
// 目标方案在允许集合内且已注册时直接使用；否则在混用开启时
// 依次尝试可承载它的方案；都不行返回 ErrSchemeNotAllowed。
func (r *Registry) DialerFor(addr types.Address) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrTransportClosed
	}

	scheme := addr.Scheme()
	if _, ok := r.allowed[scheme]; ok {
		if t, ok := r.transports[scheme]; ok {
			return t, nil
		}
	}

	if r.mixing {
		for _, carrier := range mixableCarriers[scheme] {
			if _, ok := r.allowed[carrier]; !ok {
				continue
			}
			if t, ok := r.transports[carrier]; ok {
				return t, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrSchemeNotAllowed, scheme)
}

// Dial 选择合适的传输并建立到 addr 的连接
//
// 连接失败统一归一化为 *ConnectError；方案级错误
// （ErrSchemeNotAllowed、ErrTransportClosed）原样返回。
func (r *Registry) Dial(ctx context.Context, addr types.Address) (net.Conn, error) {
	t, err := r.DialerFor(addr)
	if err != nil {
		return nil, err
	}
	conn, err := t.Dial(ctx, addr)
	if err != nil {
		return nil, Classify(addr, err)
	}
	return conn, nil
}

// Listen 使用方案对应的传输在 addr 上监听
func (r *Registry) Listen(addr types.Address) (net.Listener, error) {
	if _, dialOnly := dialOnlySchemes[addr.Scheme()]; dialOnly {
		return nil, fmt.Errorf("%w: %s", ErrListenUnsupported, addr.Scheme())
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrTransportClosed
	}
	t, ok := r.transports[addr.Scheme()]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemeNotAllowed, addr.Scheme())
	}
	return t.Listen(addr)
}

// Close 关闭全部传输
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs error
	for _, t := range r.transports {
		errs = multierr.Append(errs, t.Close())
	}
	return errs
}
