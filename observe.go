package umbra

import (
	"sync"

	"github.com/umbra-net/go-umbra/pkg/types"
)

// subBufferSize 单个订阅的缓冲容量
const subBufferSize = 16

// ════════════════════════════════════════════════════════════════════════════
//                              订阅集合
// ════════════════════════════════════════════════════════════════════════════

// subHub 一类事件的订阅集合
//
// 订阅以随机标识为键；投递不阻塞，缓冲满的订阅者丢事件。
// closeAll 之后拒绝新订阅，后续 subscribe 返回已关闭的通道。
type subHub[T any] struct {
	mu     sync.Mutex
	subs   map[string]chan T
	closed bool
}

func newSubHub[T any]() *subHub[T] {
	return &subHub[T]{subs: make(map[string]chan T)}
}

func (h *subHub[T]) subscribe() (string, chan T) {
	id := types.GenerateID()
	ch := make(chan T, subBufferSize)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subs[id] = ch
	return id, ch
}

func (h *subHub[T]) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *subHub[T]) publish(ev T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Debug("订阅者缓冲已满，丢弃事件", "sub", id)
		}
	}
}

// closeAll 关闭全部订阅并拒绝后续订阅
func (h *subHub[T]) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *subHub[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件订阅
// ════════════════════════════════════════════════════════════════════════════

// ChannelSub 通道事件订阅
//
// C 上收到通道的建立与断开事件；节点停止时 C 被关闭。
type ChannelSub struct {
	// C 事件通道
	C <-chan types.ChannelEvent

	id   string
	hub  *subHub[types.ChannelEvent]
	once sync.Once
}

// Close 取消订阅并关闭 C，幂等
func (s *ChannelSub) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s.id) })
}

// SubscribeChannel 订阅通道事件
//
// 每次调用返回独立的订阅；不再使用时应 Close，否则事件会
// 持续投递直到节点停止。
func (p *P2p) SubscribeChannel() *ChannelSub {
	id, ch := p.chanSubs.subscribe()
	return &ChannelSub{C: ch, id: id, hub: p.chanSubs}
}

// SessionSub 会话诊断事件订阅
//
// 只有开了诊断的会话才发事件，见 EnableDiagnostics。
type SessionSub struct {
	// C 事件通道
	C <-chan types.SessionEvent

	id   string
	hub  *subHub[types.SessionEvent]
	once sync.Once
}

// Close 取消订阅并关闭 C，幂等
func (s *SessionSub) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s.id) })
}

// SubscribeSession 订阅会话诊断事件
func (p *P2p) SubscribeSession() *SessionSub {
	id, ch := p.sessSubs.subscribe()
	return &SessionSub{C: ch, id: id, hub: p.sessSubs}
}

// StopSub 节点停止通知订阅
//
// 节点开始停止时 C 被关闭；订阅者读 C 解除阻塞后应尽快收尾。
type StopSub struct {
	// C 停止信号通道
	C <-chan struct{}

	id   string
	hub  *subHub[struct{}]
	once sync.Once
}

// Close 取消订阅，幂等
func (s *StopSub) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s.id) })
}

// SubscribeStop 订阅节点停止通知
func (p *P2p) SubscribeStop() *StopSub {
	id, ch := p.stopSubs.subscribe()
	return &StopSub{C: ch, id: id, hub: p.stopSubs}
}

// ════════════════════════════════════════════════════════════════════════════
//                              会话诊断开关
// ════════════════════════════════════════════════════════════════════════════

// diagSwitch 可开关诊断的会话
type diagSwitch interface {
	EnableDiagnostics()
	DisableDiagnostics()
}

// sessionsOf 按标志位挑出对应的会话
func (p *P2p) sessionsOf(kinds types.SessionKind) []diagSwitch {
	var out []diagSwitch
	if kinds.Has(types.SessionSeed) {
		out = append(out, p.seed)
	}
	if kinds.Has(types.SessionManual) {
		out = append(out, p.manual)
	}
	if kinds.Has(types.SessionInbound) {
		out = append(out, p.inbound)
	}
	if kinds.Has(types.SessionOutbound) {
		out = append(out, p.outbound)
	}
	return out
}

// EnableDiagnostics 打开指定会话的诊断事件
//
// kinds 是标志位集合，types.SessionAll 打开全部会话。
// 事件经 SubscribeSession 消费。
func (p *P2p) EnableDiagnostics(kinds types.SessionKind) {
	for _, s := range p.sessionsOf(kinds) {
		s.EnableDiagnostics()
	}
	log.Debug("会话诊断已开启", "kinds", kinds)
}

// DisableDiagnostics 关闭指定会话的诊断事件
func (p *P2p) DisableDiagnostics(kinds types.SessionKind) {
	for _, s := range p.sessionsOf(kinds) {
		s.DisableDiagnostics()
	}
	log.Debug("会话诊断已关闭", "kinds", kinds)
}
