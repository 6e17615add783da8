package umbra

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/umbra-net/go-umbra/internal/core/channel"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/core/identity"
	"github.com/umbra-net/go-umbra/internal/core/protocol"
	"github.com/umbra-net/go-umbra/internal/core/refinery"
	"github.com/umbra-net/go-umbra/internal/core/session"
	"github.com/umbra-net/go-umbra/internal/core/transport"
)

// ════════════════════════════════════════════════════════════════════════════
//                              Fx 装配
// ════════════════════════════════════════════════════════════════════════════

// buildApp 把全部内部组件装配成一个 Fx 应用
//
// 模块只声明构造器与自己的生命周期钩子；跨组件的黏合（会话看到
// 的协调器切面、精炼器的探测与连通查询）在这里用小函数桥接。
// 启动与停止的相位推进由 P2p 的生命周期方法驱动。
func buildApp(o *options, p *P2p) *fx.App {
	modules := []fx.Option{
		fx.Supply(o.cfg),
		fx.Provide(func() clock.Clock { return o.clk }),

		identity.Module(),
		hoststore.Module(),
		transport.Module(),
		channel.Module(),
		protocol.Module(),
		refinery.Module(),
		session.Module(),

		// 跨组件桥接
		fx.Provide(
			func() session.Coordinator { return p },
			func(c *channel.Connector) refinery.ProbeFunc { return c.Probe },
			func(r *channel.Registry) refinery.ConnectedFunc { return r.Connected },
		),
	}

	if o.resolve != nil {
		modules = append(modules, fx.Provide(func() session.ResolveFunc { return o.resolve }))
	}

	modules = append(modules,
		fx.Invoke(injectComponents(p)),

		// Fx 自身的事件日志静音，组件日志走各自的子系统日志器
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...)
}

// injectParams 需要回填到 P2p 的组件集合
type injectParams struct {
	fx.In

	Identity   *identity.Identity
	Store      *hoststore.Store
	Transports *transport.Registry
	Connector  *channel.Connector
	Channels   *channel.Registry
	Protocols  *protocol.Registry
	Refinery   *refinery.Refinery
	Seed       *session.Seed
	Manual     *session.Manual
	Inbound    *session.Inbound
	Outbound   *session.Outbound
}

// injectComponents 把装配出的组件回填到节点
//
// 在 fx.New 期间同步执行：New 返回后节点即可直接触达全部组件。
func injectComponents(p *P2p) func(injectParams) {
	return func(in injectParams) {
		p.ident = in.Identity
		p.store = in.Store
		p.transports = in.Transports
		p.connector = in.Connector
		p.channels = in.Channels
		p.protocols = in.Protocols
		p.refine = in.Refinery
		p.seed = in.Seed
		p.manual = in.Manual
		p.inbound = in.Inbound
		p.outbound = in.Outbound
	}
}
