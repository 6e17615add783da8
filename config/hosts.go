package config

import (
	"errors"
	"time"
)

// HostsConfig 主机存储配置
//
// 控制分级主机表的持久化、候选加权与灰名单精炼。
type HostsConfig struct {
	// StorePath 主机表文件路径（为空时禁用持久化）
	StorePath string `json:"store_path,omitempty"`

	// Anchors 锚名单地址（启动时装入，运营方固定节点）
	Anchors []string `json:"anchors,omitempty"`

	// RefineryInterval 灰名单精炼间隔
	//
	// 0 表示不间歇地精炼（主要用于测试）。
	RefineryInterval Duration `json:"refinery_interval"`

	// WhiteConnectPercent 出站槽位选择白名单的概率（0-100）
	WhiteConnectPercent int `json:"white_connect_percent"`

	// GoldConnectCount 优先使用金/锚名单的出站槽位数
	GoldConnectCount int `json:"gold_connect_count"`

	// SlotPreferenceStrict 严格槽位偏好
	//
	// 开启后，偏好分级为空的槽位等待而不回退到其他分级。
	SlotPreferenceStrict bool `json:"slot_preference_strict"`

	// QuarantineSize 永久驱逐隔离缓存容量
	QuarantineSize int `json:"quarantine_size"`
}

// DefaultHostsConfig 返回默认主机存储配置
func DefaultHostsConfig() HostsConfig {
	return HostsConfig{
		StorePath:            "",
		Anchors:              nil,
		RefineryInterval:     Duration(15 * time.Second),
		WhiteConnectPercent:  70,
		GoldConnectCount:     2,
		SlotPreferenceStrict: false,
		QuarantineSize:       1024,
	}
}

// Validate 验证主机存储配置
func (c HostsConfig) Validate() error {
	if c.RefineryInterval < 0 {
		return errors.New("refinery interval must not be negative")
	}
	if c.WhiteConnectPercent < 0 || c.WhiteConnectPercent > 100 {
		return errors.New("white connect percent must be in [0, 100]")
	}
	if c.GoldConnectCount < 0 {
		return errors.New("gold connect count must not be negative")
	}
	if c.QuarantineSize <= 0 {
		return errors.New("quarantine size must be positive")
	}
	return nil
}

// WithStorePath 设置主机表文件路径
func (c HostsConfig) WithStorePath(path string) HostsConfig {
	c.StorePath = path
	return c
}

// WithRefineryInterval 设置精炼间隔
func (c HostsConfig) WithRefineryInterval(d time.Duration) HostsConfig {
	c.RefineryInterval = Duration(d)
	return c
}
