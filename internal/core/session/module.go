package session

import (
	"go.uber.org/fx"
)

// seedParams 种子会话的装配入参，解析函数可注入（测试用）
type seedParams struct {
	fx.In

	Co      Coordinator
	Resolve ResolveFunc `optional:"true"`
}

func newSeedFromParams(p seedParams) *Seed {
	return NewSeed(p.Co, p.Resolve)
}

// Module 装配四类会话
//
// 只提供构造器，不挂生命周期钩子：会话的启动与停止由协调器
// 按阶段显式驱动——种子会话在启动阶段一次性运行，手动、入站、
// 出站会话在运行阶段启动，停止时按与启动相反的顺序收场。
func Module() fx.Option {
	return fx.Module("session",
		fx.Provide(
			newSeedFromParams,
			NewManual,
			NewInbound,
			NewOutbound,
		),
	)
}
