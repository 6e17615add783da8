// Package session 实现四类连接会话。
//
// 种子会话在启动期一次性收割地址；手动会话盯死静态对端；入站会话
// 监听并接受连接；出站会话维护固定数量的拨号槽位。会话通过窄接口
// Coordinator 使用宿主设施，不反向持有协调器本体。
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/channel"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/core/protocol"
	"github.com/umbra-net/go-umbra/internal/core/transport"
	"github.com/umbra-net/go-umbra/internal/util/logger"
	"github.com/umbra-net/go-umbra/internal/util/task"
	"github.com/umbra-net/go-umbra/pkg/types"
)

var log = logger.Logger("core/session")

var (
	// ErrNoSeeds 种子均不可达且没有其他引导来源
	ErrNoSeeds = errors.New("no reachable seeds")
)

// Coordinator 会话可见的宿主切面
//
// 会话只通过这张窄接口使用宿主设施，由协调器在构造会话时注入。
type Coordinator interface {
	Hosts() *hoststore.Store
	Channels() *channel.Registry
	Connector() *channel.Connector
	Protocols() *protocol.Registry
	Transports() *transport.Registry
	Settings() *config.Config
	Clock() clock.Clock

	// Publish 投递一条会话诊断事件，投递不阻塞
	Publish(ev types.SessionEvent)
}

// ============================================================
//                        会话骨架
// ============================================================

// base 各会话共享的骨架：任务树、诊断开关、事件发射
type base struct {
	kind  types.SessionKind
	co    Coordinator
	tasks *task.Group
	diag  atomic.Bool

	stopOnce sync.Once
}

func newBase(kind types.SessionKind, co Coordinator) base {
	return base{
		kind:  kind,
		co:    co,
		tasks: task.NewGroup(),
	}
}

// Kind 返回会话类别
func (b *base) Kind() types.SessionKind { return b.kind }

// EnableDiagnostics 开启会话诊断事件
func (b *base) EnableDiagnostics() { b.diag.Store(true) }

// DisableDiagnostics 关闭会话诊断事件
func (b *base) DisableDiagnostics() { b.diag.Store(false) }

// emit 诊断开启时发出一条会话事件
func (b *base) emit(info string) {
	if !b.diag.Load() {
		return
	}
	b.co.Publish(types.SessionEvent{
		Session: b.kind,
		Info:    info,
		Time:    b.co.Clock().Now(),
	})
}

// Stop 关闭会话的任务树并等待退出，幂等
func (b *base) Stop() error {
	var err error
	b.stopOnce.Do(func() {
		err = b.tasks.Close()
	})
	return err
}

// runChannel 注册通道、附加协议、启动循环并守到断开
//
// 阻塞直到通道停止或 ctx 取消；返回非 nil 仅当注册被拒绝
// （地址已有通道）。清理注册是调用方唯一需要的善后，这里代办。
func (b *base) runChannel(ctx context.Context, ch *channel.Channel) error {
	co := b.co
	if err := co.Channels().Add(ch); err != nil {
		ch.Stop()
		return err
	}

	// 附加先于启动：处理器的订阅在构造期建立，首批消息不丢
	co.Protocols().Attach(ctx, ch, b.kind)
	ch.Start()
	b.emit("channel up: " + ch.Addr().String())

	select {
	case <-ch.Done():
	case <-ctx.Done():
		ch.Stop()
		<-ch.Done()
	}

	co.Channels().Remove(ch.Addr())
	b.emit("channel down: " + ch.Addr().String())
	return nil
}

// greylistAdvertised 把对端握手时通告的地址收进灰名单
func (b *base) greylistAdvertised(ch *channel.Channel) {
	advertised := ch.Remote().ExternalAddrs
	if len(advertised) == 0 {
		return
	}
	now := b.co.Clock().Now()
	entries := make([]hoststore.Entry, 0, len(advertised))
	for _, a := range advertised {
		entries = append(entries, hoststore.Entry{Addr: a, LastSeen: now})
	}
	if n := b.co.Hosts().InsertOrUpdate(types.TierGrey, entries...); n > 0 {
		log.Debug("对端通告地址已入灰名单", "peer", ch.Addr(), "count", n)
	}
}
