// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.Default()
//	cfg.Session.Seeds = []string{"tcp://seed.example.org:9595"}
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
//
//	// 从文件加载
//	cfg, err := config.LoadFile("umbra.json")
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config 是 umbra 的完整配置结构
//
// 该结构体嵌入了所有组件的子配置，提供统一的配置接口。
// 配置按照功能模块组织：
//   - Node: 节点身份与版本
//   - Transport: 传输方案与代理
//   - Session: 会话目标与超时
//   - Hosts: 主机存储与精炼
//   - Blacklist: 黑名单规则与封禁策略
type Config struct {
	// Node 节点配置
	Node NodeConfig `json:"node"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// Session 会话配置
	Session SessionConfig `json:"session"`

	// Hosts 主机存储配置
	Hosts HostsConfig `json:"hosts"`

	// Blacklist 黑名单配置
	Blacklist BlacklistConfig `json:"blacklist"`
}

// Default 创建默认配置
//
// 返回的配置使用所有组件的默认值。
// 可以通过修改字段或使用根包的 Option 函数来定制配置。
func Default() *Config {
	return &Config{
		Node:      DefaultNodeConfig(),
		Transport: DefaultTransportConfig(),
		Session:   DefaultSessionConfig(),
		Hosts:     DefaultHostsConfig(),
		Blacklist: DefaultBlacklistConfig(),
	}
}

// Validate 验证配置的有效性
//
// 检查所有子配置是否有效。配置错误在启动前暴露，
// 是唯一允许使进程启动失败的错误类别。
func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node 配置无效: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport 配置无效: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session 配置无效: %w", err)
	}
	if err := c.Hosts.Validate(); err != nil {
		return fmt.Errorf("hosts 配置无效: %w", err)
	}
	if err := c.Blacklist.Validate(); err != nil {
		return fmt.Errorf("blacklist 配置无效: %w", err)
	}
	return nil
}

// FromJSON 从 JSON 数据解析配置
//
// 未出现的字段保留默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// ToJSON 序列化配置为缩进 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// LoadFile 从文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return FromJSON(data)
}

// SaveFile 保存配置到文件
func (c *Config) SaveFile(path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
