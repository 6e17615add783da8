package refinery

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
)

// Params 精炼器构建输入
//
// ProbeFunc 与 ConnectedFunc 由装配层从连接器和通道注册表适配。
type Params struct {
	fx.In

	Config    *config.Config
	Store     *hoststore.Store
	Probe     ProbeFunc
	Connected ConnectedFunc `optional:"true"`
	Clock     clock.Clock   `optional:"true"`
}

// NewFromUnified 从统一配置创建精炼器
func NewFromUnified(p Params) *Refinery {
	return New(Config{
		Interval:  p.Config.Hosts.RefineryInterval.Duration(),
		Timeout:   p.Config.Session.OutboundConnectTimeout.Duration(),
		Schemes:   p.Config.Transport.AllowedSchemes,
		Connected: p.Connected,
		Clock:     p.Clock,
	}, p.Store, p.Probe)
}

// Module 返回精炼器的 Fx 模块
//
// 只提供构造器，不挂生命周期钩子：精炼器随运行阶段的会话一起
// 由协调器显式启动，停止时排在所有会话之后收场。
func Module() fx.Option {
	return fx.Module("refinery",
		fx.Provide(NewFromUnified),
	)
}
