package identity

import (
	"go.uber.org/fx"
)

// Module 返回身份的 Fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(FromConfig),
	)
}
