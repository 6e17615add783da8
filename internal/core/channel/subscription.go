package channel

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/umbra-net/go-umbra/internal/core/wire"
)

// Subscription 对单个命令的消息订阅
type Subscription struct {
	id      uuid.UUID
	command string
	ch      chan wire.Message
	owner   *Channel

	dropped   atomic.Int64
	closeOnce sync.Once
}

// ID 返回订阅标识
func (s *Subscription) ID() uuid.UUID { return s.id }

// Command 返回订阅的命令
func (s *Subscription) Command() string { return s.command }

// C 返回消息通道
//
// 通道停止或订阅取消后该通道被关闭。
func (s *Subscription) C() <-chan wire.Message { return s.ch }

// Cancel 取消订阅
//
// 幂等。取消后消息通道关闭，缓冲中未消费的消息被丢弃。
func (s *Subscription) Cancel() {
	s.owner.removeSub(s)
	s.close()
}

// close 关闭消息通道，只经 closeOnce 走一次
func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
}

// ============================================================================
//                              订阅表
// ============================================================================

// Subscribe 订阅命令的入站消息
//
// 同一命令可以有多个订阅者，各自按线序独立收到消息。
// 通道已停止时返回的订阅立即处于关闭状态。
func (c *Channel) Subscribe(command string) *Subscription {
	sub := &Subscription{
		id:      uuid.New(),
		command: command,
		ch:      make(chan wire.Message, subBufferSize),
		owner:   c,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.close()
		return sub
	}
	c.subs[command] = append(c.subs[command], sub)
	c.mu.Unlock()
	return sub
}

// removeSub 将订阅从表中摘除
func (c *Channel) removeSub(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[sub.command]
	for i, s := range list {
		if s == sub {
			c.subs[sub.command] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(c.subs[sub.command]) == 0 {
		delete(c.subs, sub.command)
	}
}

// dispatch 将入站消息分发给命令的所有订阅者
//
// 发送在锁内做非阻塞投递：慢订阅者丢消息并计数告警，
// 不拖住读循环。无人订阅的命令丢弃。
func (c *Channel) dispatch(msg wire.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.subs[msg.Command]
	if len(subs) == 0 {
		log.Debug("无订阅者，丢弃消息", "command", msg.Command, "addr", c.addr)
		return
	}
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			dropped := sub.dropped.Add(1)
			if dropped%100 == 1 {
				log.Warn("订阅缓冲已满，丢弃消息",
					"command", msg.Command,
					"addr", c.addr,
					"dropped", dropped)
			}
		}
	}
}

// closeSubs 关闭全部订阅
//
// 只在读写循环退出后调用：此后不会再有分发，
// 摘表后关闭消息通道是安全的。
func (c *Channel) closeSubs() {
	c.mu.Lock()
	all := make([]*Subscription, 0, len(c.subs))
	for _, list := range c.subs {
		all = append(all, list...)
	}
	c.subs = make(map[string][]*Subscription)
	c.closed = true
	c.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}
