package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/umbra-net/go-umbra/pkg/types"
)

// eventBufferSize 事件订阅通道的缓冲容量
const eventBufferSize = 16

// EventType 注册表事件类型
type EventType int

const (
	// EventAdded 通道注册
	EventAdded EventType = iota
	// EventRemoved 通道移除
	EventRemoved
)

// String 返回事件类型的字符串表示
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event 通道注册表事件
type Event struct {
	// Type 事件类型
	Type EventType

	// Addr 通道的对端地址
	Addr types.Address

	// Session 创建通道的会话类型
	Session types.SessionKind

	// NodeID 对端节点标识（握手后已知）
	NodeID string
}

// Registry 已连接通道的注册表
//
// 连接状态的唯一事实来源：同一地址至多一条通道。
// 注册与移除由通道的属主会话驱动。
type Registry struct {
	mu       sync.RWMutex
	byAddr   map[types.Address]*Channel
	watchers map[chan Event]struct{}
}

// NewRegistry 创建通道注册表
func NewRegistry() *Registry {
	return &Registry{
		byAddr:   make(map[types.Address]*Channel),
		watchers: make(map[chan Event]struct{}),
	}
}

// Add 注册通道
//
// 地址已有通道时拒绝。
func (r *Registry) Add(ch *Channel) error {
	addr := ch.Addr()

	r.mu.Lock()
	if _, exists := r.byAddr[addr]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, addr)
	}
	r.byAddr[addr] = ch
	r.mu.Unlock()

	log.Debug("通道已注册", "addr", addr, "session", ch.Kind(), "node", ch.Remote().NodeID)
	r.emit(Event{
		Type:    EventAdded,
		Addr:    addr,
		Session: ch.Kind(),
		NodeID:  ch.Remote().NodeID,
	})
	return nil
}

// Remove 移除地址的通道，返回是否存在
func (r *Registry) Remove(addr types.Address) bool {
	r.mu.Lock()
	ch, exists := r.byAddr[addr]
	if exists {
		delete(r.byAddr, addr)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}
	log.Debug("通道已移除", "addr", addr, "session", ch.Kind())
	r.emit(Event{
		Type:    EventRemoved,
		Addr:    addr,
		Session: ch.Kind(),
		NodeID:  ch.Remote().NodeID,
	})
	return true
}

// Get 按地址取通道
func (r *Registry) Get(addr types.Address) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byAddr[addr]
	return ch, ok
}

// Connected 报告地址是否已有注册的通道
func (r *Registry) Connected(addr types.Address) bool {
	_, ok := r.Get(addr)
	return ok
}

// All 返回全部通道的快照
func (r *Registry) All() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.byAddr))
	for _, ch := range r.byAddr {
		out = append(out, ch)
	}
	return out
}

// Len 返回通道总数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddr)
}

// LenKind 返回指定会话类型的通道数
func (r *Registry) LenKind(kind types.SessionKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ch := range r.byAddr {
		if ch.Kind().Has(kind) {
			n++
		}
	}
	return n
}

// CloseAll 停止并移除全部通道
//
// 等待每条通道完成清理；ctx 到期则提前返回。
func (r *Registry) CloseAll(ctx context.Context) error {
	chans := r.All()
	for _, ch := range chans {
		ch.Stop()
	}
	for _, ch := range chans {
		select {
		case <-ch.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	r.byAddr = make(map[types.Address]*Channel)
	r.mu.Unlock()
	if len(chans) > 0 {
		log.Info("全部通道已停止", "count", len(chans))
	}
	return nil
}

// ============================================================================
//                              事件订阅
// ============================================================================

// Subscribe 订阅注册表事件
func (r *Registry) Subscribe() chan Event {
	ch := make(chan Event, eventBufferSize)
	r.mu.Lock()
	r.watchers[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unsubscribe 取消事件订阅并关闭通道
func (r *Registry) Unsubscribe(ch chan Event) {
	r.mu.Lock()
	_, ok := r.watchers[ch]
	if ok {
		delete(r.watchers, ch)
	}
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

// emit 向订阅者投递事件，投递不阻塞
func (r *Registry) emit(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.watchers {
		select {
		case ch <- ev:
		default:
			log.Debug("事件订阅者缓冲已满，丢弃事件", "type", ev.Type, "addr", ev.Addr)
		}
	}
}
