package config

import (
	"errors"
	"time"
)

// SessionConfig 会话配置
//
// 控制四类会话的目标与节奏：
//   - Seed: 一次性种子引导
//   - Manual: 静态对端的持续重连
//   - Inbound: 入站监听与接受
//   - Outbound: 出站槽位维护
type SessionConfig struct {
	// Seeds 种子地址（tcp://host:port 或 dnsseed://host:port）
	Seeds []string `json:"seeds,omitempty"`

	// SeedResolver DNS 种子解析用的服务器（"ip:port"），
	// 为空时使用系统解析配置
	SeedResolver string `json:"seed_resolver,omitempty"`

	// Peers 静态对端地址（手动会话维护）
	Peers []string `json:"peers,omitempty"`

	// ListenAddrs 入站监听地址
	ListenAddrs []string `json:"listen_addrs,omitempty"`

	// OutboundConnections 出站槽位数
	OutboundConnections int `json:"outbound_connections"`

	// InboundConnections 入站连接上限
	InboundConnections int `json:"inbound_connections"`

	// OutboundConnectTimeout 出站连接建立超时（拨号 + 握手）
	OutboundConnectTimeout Duration `json:"outbound_connect_timeout"`

	// HandshakeTimeout version/verack 握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// HeartbeatInterval 心跳（ping）间隔
	HeartbeatInterval Duration `json:"heartbeat_interval"`

	// SeedQueryTimeout 种子地址查询超时
	SeedQueryTimeout Duration `json:"seed_query_timeout"`

	// ManualRetryInterval 手动会话重连间隔
	ManualRetryInterval Duration `json:"manual_retry_interval"`

	// ManualAttemptLimit 手动会话连接尝试上限（0 表示无限）
	ManualAttemptLimit int `json:"manual_attempt_limit"`

	// PeerDiscoveryCooloff 出站槽位无可用候选时的等待时长
	PeerDiscoveryCooloff Duration `json:"peer_discovery_cooloff"`

	// PeerDiscoveryAttempt 出站槽位两次尝试之间的间隔
	PeerDiscoveryAttempt Duration `json:"peer_discovery_attempt"`

	// TimeWithNoConnections 无出站连接告警阈值
	TimeWithNoConnections Duration `json:"time_with_no_connections"`
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Seeds:                  nil,
		SeedResolver:           "",
		Peers:                  nil,
		ListenAddrs:            nil,
		OutboundConnections:    8,
		InboundConnections:     32,
		OutboundConnectTimeout: Duration(15 * time.Second),
		HandshakeTimeout:       Duration(8 * time.Second),
		HeartbeatInterval:      Duration(30 * time.Second),
		SeedQueryTimeout:       Duration(15 * time.Second),
		ManualRetryInterval:    Duration(10 * time.Second),
		ManualAttemptLimit:     0,
		PeerDiscoveryCooloff:   Duration(30 * time.Second),
		PeerDiscoveryAttempt:   Duration(5 * time.Second),
		TimeWithNoConnections:  Duration(5 * time.Minute),
	}
}

// Validate 验证会话配置
func (c SessionConfig) Validate() error {
	if c.OutboundConnections < 0 {
		return errors.New("outbound connections must not be negative")
	}
	if c.InboundConnections < 0 {
		return errors.New("inbound connections must not be negative")
	}
	if c.OutboundConnectTimeout <= 0 {
		return errors.New("outbound connect timeout must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshake timeout must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.SeedQueryTimeout <= 0 {
		return errors.New("seed query timeout must be positive")
	}
	if c.ManualRetryInterval <= 0 {
		return errors.New("manual retry interval must be positive")
	}
	if c.ManualAttemptLimit < 0 {
		return errors.New("manual attempt limit must not be negative")
	}
	if c.PeerDiscoveryCooloff < 0 {
		return errors.New("peer discovery cooloff must not be negative")
	}
	if c.PeerDiscoveryAttempt < 0 {
		return errors.New("peer discovery attempt must not be negative")
	}
	if c.TimeWithNoConnections <= 0 {
		return errors.New("time with no connections must be positive")
	}
	return nil
}

// WithSeeds 设置种子地址
func (c SessionConfig) WithSeeds(seeds ...string) SessionConfig {
	c.Seeds = seeds
	return c
}

// WithPeers 设置静态对端
func (c SessionConfig) WithPeers(peers ...string) SessionConfig {
	c.Peers = peers
	return c
}

// WithListenAddrs 设置监听地址
func (c SessionConfig) WithListenAddrs(addrs ...string) SessionConfig {
	c.ListenAddrs = addrs
	return c
}

// WithOutboundConnections 设置出站槽位数
func (c SessionConfig) WithOutboundConnections(n int) SessionConfig {
	c.OutboundConnections = n
	return c
}

// WithInboundConnections 设置入站连接上限
func (c SessionConfig) WithInboundConnections(n int) SessionConfig {
	c.InboundConnections = n
	return c
}
