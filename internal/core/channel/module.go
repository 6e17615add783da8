package channel

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/identity"
	"github.com/umbra-net/go-umbra/internal/core/transport"
)

// Params 连接器构建输入
type Params struct {
	fx.In

	Config     *config.Config
	Transports *transport.Registry
	Identity   *identity.Identity
	Clock      clock.Clock `optional:"true"`
}

// NewConnectorFromUnified 从统一配置创建连接器
func NewConnectorFromUnified(p Params) *Connector {
	return NewConnector(p.Transports, p.Identity, ConnectorConfig{
		ConnectTimeout:   p.Config.Session.OutboundConnectTimeout.Duration(),
		HandshakeTimeout: p.Config.Session.HandshakeTimeout.Duration(),
		Clock:            p.Clock,
	})
}

// Module 返回通道层的 Fx 模块
//
// 提供通道注册表与连接器；停止时清掉仍在注册表里的通道，
// 作为会话停止之后的最终清扫。
func Module() fx.Option {
	return fx.Module("channel",
		fx.Provide(NewRegistry),
		fx.Provide(NewConnectorFromUnified),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, reg *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return reg.CloseAll(ctx)
		},
	})
}
