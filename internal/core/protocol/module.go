package protocol

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/core/identity"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// Params 注册表装配参数
type Params struct {
	fx.In

	Config   *config.Config
	Store    *hoststore.Store
	Identity *identity.Identity
	Clock    clock.Clock `optional:"true"`
}

// NewFromUnified 从统一配置构建协议注册表
func NewFromUnified(p Params) *Registry {
	return NewRegistry(Env{
		Store:    p.Store,
		Config:   p.Config,
		Identity: p.Identity,
		Clock:    p.Clock,
	})
}

// Module 返回协议模块
func Module() fx.Option {
	return fx.Module("protocol",
		fx.Provide(NewFromUnified),
		fx.Invoke(registerBuiltins),
		fx.Invoke(registerLifecycle),
	)
}

// registerBuiltins 挂载内建协议
//
// 心跳跑在所有长连会话上；地址交换只跑在入站与出站会话上，
// 种子会话的一次性地址交换由会话自己驱动，不走注册表。
func registerBuiltins(r *Registry) {
	r.Register(types.SessionManual|types.SessionInbound|types.SessionOutbound, NewPing)
	r.Register(types.SessionInbound|types.SessionOutbound, NewAddrs)
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, r *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return r.Close()
		},
	})
}
