package config

import (
	"errors"
	"fmt"
	"net/url"
)

// NodeConfig 节点配置
//
// 节点标识是不透明字符串，在 version 握手中原样交换，
// 不承担密码学职责。
type NodeConfig struct {
	// ID 节点标识（为空时启动时随机生成）
	ID string `json:"id,omitempty"`

	// AppVersion 应用版本字符串（握手中通告）
	AppVersion string `json:"app_version"`

	// ProtocolVersion 协议版本（握手兼容性判定依据）
	ProtocolVersion uint32 `json:"protocol_version"`

	// ExternalAddrs 对外通告的本节点地址
	ExternalAddrs []string `json:"external_addrs,omitempty"`

	// Localnet 本地网络模式
	//
	// 开启后不过滤回环/私网地址，用于本机多节点测试。
	Localnet bool `json:"localnet"`
}

// DefaultNodeConfig 返回默认节点配置
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		ID:              "",
		AppVersion:      "umbra/0.1.0",
		ProtocolVersion: 1,
		ExternalAddrs:   nil,
		Localnet:        false,
	}
}

// Validate 验证节点配置
func (c NodeConfig) Validate() error {
	if c.ProtocolVersion == 0 {
		return errors.New("protocol version must be positive")
	}
	for _, s := range c.ExternalAddrs {
		if _, err := url.Parse(s); err != nil {
			return fmt.Errorf("invalid external addr %q: %w", s, err)
		}
	}
	return nil
}

// WithID 设置节点标识
func (c NodeConfig) WithID(id string) NodeConfig {
	c.ID = id
	return c
}

// WithExternalAddrs 设置对外通告地址
func (c NodeConfig) WithExternalAddrs(addrs ...string) NodeConfig {
	c.ExternalAddrs = addrs
	return c
}

// WithLocalnet 设置本地网络模式
func (c NodeConfig) WithLocalnet(enabled bool) NodeConfig {
	c.Localnet = enabled
	return c
}
