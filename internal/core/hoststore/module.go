package hoststore

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// ConfigFromUnified 从统一配置构建主机存储参数
func ConfigFromUnified(cfg *config.Config) Config {
	rules := make([]Rule, 0, len(cfg.Blacklist.Entries))
	for _, e := range cfg.Blacklist.Entries {
		rules = append(rules, Rule{Host: e.Host, Schemes: e.Schemes, Ports: e.Ports})
	}
	return Config{
		Path:           cfg.Hosts.StorePath,
		Localnet:       cfg.Node.Localnet,
		WhitePercent:   cfg.Hosts.WhiteConnectPercent,
		GoldSlots:      cfg.Hosts.GoldConnectCount,
		Strict:         cfg.Hosts.SlotPreferenceStrict,
		QuarantineSize: cfg.Hosts.QuarantineSize,
		Rules:          rules,
	}
}

// NewFromUnified 从统一配置创建主机存储
func NewFromUnified(cfg *config.Config) (*Store, error) {
	return New(ConfigFromUnified(cfg))
}

// Module 返回主机存储的 Fx 模块
func Module() fx.Option {
	return fx.Module("hoststore",
		fx.Provide(NewFromUnified),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期注册输入
type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Store  *Store
	Config *config.Config
}

// registerLifecycle 注册生命周期钩子
//
// 启动时装载主机表并并入配置的锚名单；损坏的主机表只告警、
// 以空表启动，非法的锚地址属于配置错误、直接拒绝启动。
// 停止时回写主机表再关闭存储。
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := input.Store.Load(); err != nil {
				log.Warn("装载主机表失败，以空表启动", "error", err)
			}
			for _, raw := range input.Config.Hosts.Anchors {
				addr, err := types.ParseAddr(raw)
				if err != nil {
					return fmt.Errorf("非法的锚地址 %q: %w", raw, err)
				}
				if input.Store.InsertOrUpdate(types.TierAnchor, Entry{Addr: addr}) == 0 {
					log.Warn("锚地址被过滤，未入表", "addr", raw)
				}
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			if err := input.Store.Save(); err != nil {
				log.Error("保存主机表失败", "error", err)
			}
			return input.Store.Close()
		},
	})
}
