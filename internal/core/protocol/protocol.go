// Package protocol 把应用层线协议挂到通道上。
//
// 注册表只持有工厂列表；处理器实例持有全部状态，各自运行在独立
// 任务上，通道停止或上层取消即退出。内建协议（心跳、地址交换）
// 由本包在装配时挂载，外部协议走同一条 Register/Attach 路径。
package protocol

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/channel"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/core/identity"
	"github.com/umbra-net/go-umbra/internal/util/logger"
	"github.com/umbra-net/go-umbra/internal/util/task"
	"github.com/umbra-net/go-umbra/pkg/types"
)

var log = logger.Logger("core/protocol")

// Env 暴露给处理器的宿主切面
//
// 处理器只能看到主机存储、配置、本节点身份和时钟，拿不到会话
// 或传输层的内部状态。
type Env struct {
	Store    *hoststore.Store
	Config   *config.Config
	Identity *identity.Identity
	Clock    clock.Clock
}

// Handler 绑定在单条通道上的协议实例
type Handler interface {
	// Run 阻塞运行，直到 ctx 取消或通道停止
	Run(ctx context.Context)
}

// Factory 为一条通道实例化处理器
type Factory func(ch *channel.Channel, env Env) Handler

type registration struct {
	kinds   types.SessionKind
	factory Factory
}

// ============================================================
//                        协议注册表
// ============================================================

// Registry 协议注册表
type Registry struct {
	env   Env
	tasks *task.Group

	mu     sync.RWMutex
	regs   []registration
	closed bool
}

// NewRegistry 创建协议注册表
func NewRegistry(env Env) *Registry {
	if env.Clock == nil {
		env.Clock = clock.New()
	}
	return &Registry{
		env:   env,
		tasks: task.NewGroup(),
	}
}

// Register 注册协议工厂，kinds 指明适用的会话类别
func (r *Registry) Register(kinds types.SessionKind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append(r.regs, registration{kinds: kinds, factory: factory})
}

// Len 返回已注册的工厂数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}

// Attach 为通道实例化所有匹配的处理器并各自运行在独立任务上，
// 返回启动的处理器数量
//
// 持读锁直到全部任务派发完毕，保证与 Close 互斥：过了关闭检查
// 的派发一定落在任务组关闭之前。
func (r *Registry) Attach(ctx context.Context, ch *channel.Channel, kind types.SessionKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0
	}

	n := 0
	for _, reg := range r.regs {
		if !reg.kinds.Has(kind) {
			continue
		}
		h := reg.factory(ch, r.env)
		n++
		r.tasks.Go(func(gctx context.Context) {
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			// 注册表关停同样取消处理器
			go func() {
				select {
				case <-gctx.Done():
					cancel()
				case <-runCtx.Done():
				}
			}()
			h.Run(runCtx)
		})
	}

	if n > 0 {
		log.Debug("协议处理器已附加", "addr", ch.Addr(), "kind", kind, "count", n)
	}
	return n
}

// Close 取消所有处理器并等待退出，幂等
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return r.tasks.Close()
}
