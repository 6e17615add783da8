package config

import (
	"fmt"
)

// BanPolicy 黑名单执行策略
type BanPolicy string

const (
	// BanPolicyStrict 严格：拒绝并断开命中黑名单的连接
	BanPolicyStrict BanPolicy = "strict"
	// BanPolicyRelaxed 宽松：仅记录告警，不拒绝连接
	BanPolicyRelaxed BanPolicy = "relaxed"
)

// BlacklistEntry 黑名单规则
//
// Schemes 或 Ports 为空表示通配。
type BlacklistEntry struct {
	// Host 主机名或 IP
	Host string `json:"host"`

	// Schemes 命中的方案列表（空 = 所有方案）
	Schemes []string `json:"schemes,omitempty"`

	// Ports 命中的端口列表（空 = 所有端口）
	Ports []uint16 `json:"ports,omitempty"`
}

// BlacklistConfig 黑名单配置
type BlacklistConfig struct {
	// Entries 黑名单规则
	Entries []BlacklistEntry `json:"entries,omitempty"`

	// BanPolicy 执行策略
	BanPolicy BanPolicy `json:"ban_policy"`
}

// DefaultBlacklistConfig 返回默认黑名单配置
func DefaultBlacklistConfig() BlacklistConfig {
	return BlacklistConfig{
		Entries:   nil,
		BanPolicy: BanPolicyStrict,
	}
}

// Validate 验证黑名单配置
func (c BlacklistConfig) Validate() error {
	switch c.BanPolicy {
	case BanPolicyStrict, BanPolicyRelaxed:
	default:
		return fmt.Errorf("unknown ban policy %q", c.BanPolicy)
	}
	for i, e := range c.Entries {
		if e.Host == "" {
			return fmt.Errorf("blacklist entry %d: host must not be empty", i)
		}
		for _, s := range e.Schemes {
			if !knownSchemes[s] {
				return fmt.Errorf("blacklist entry %d: unknown scheme %q", i, s)
			}
		}
	}
	return nil
}

// WithEntries 设置黑名单规则
func (c BlacklistConfig) WithEntries(entries ...BlacklistEntry) BlacklistConfig {
	c.Entries = entries
	return c
}

// WithBanPolicy 设置执行策略
func (c BlacklistConfig) WithBanPolicy(p BanPolicy) BlacklistConfig {
	c.BanPolicy = p
	return c
}
