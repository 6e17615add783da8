package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// TransportConfig 传输层配置
//
// 配置节点允许使用的地址方案及其参数：
//   - tcp / tcp+tls: 明文或 TLS 加密的 TCP
//   - tor / tor+tls: 经 SOCKS5 代理的 TCP（需配置 TorProxy）
//   - unix: Unix 域套接字
//   - quic: QUIC（自带 TLS 1.3）
//   - ws: WebSocket
type TransportConfig struct {
	// AllowedSchemes 允许使用的地址方案
	AllowedSchemes []string `json:"allowed_schemes"`

	// Mixing 传输混用
	//
	// 开启后，允许的传输可以代替拨号兼容方案的地址，
	// 例如 tor 传输拨号 tcp 地址（经代理直达明文目标）。
	// 关闭时，方案不在允许集合内的地址一律拒绝。
	Mixing bool `json:"mixing"`

	// DialTimeout 拨号超时（底层连接建立，不含握手）
	DialTimeout Duration `json:"dial_timeout"`

	// TorProxy SOCKS5 代理地址
	//
	// 格式: socks5://[user:pass@]host:port
	// 允许 tor/tor+tls 方案时必须配置。
	TorProxy string `json:"tor_proxy,omitempty"`

	// QUIC QUIC 传输配置
	QUIC QUICConfig `json:"quic,omitempty"`

	// WS WebSocket 传输配置
	WS WSConfig `json:"ws,omitempty"`
}

// QUICConfig QUIC 传输配置
type QUICConfig struct {
	// MaxIdleTimeout 最大空闲超时
	MaxIdleTimeout Duration `json:"max_idle_timeout"`

	// KeepAlivePeriod KeepAlive 周期
	KeepAlivePeriod Duration `json:"keep_alive_period"`
}

// WSConfig WebSocket 传输配置
type WSConfig struct {
	// HandshakeTimeout WebSocket 升级握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// ReadBufferSize 读缓冲区大小
	ReadBufferSize int `json:"read_buffer_size,omitempty"`

	// WriteBufferSize 写缓冲区大小
	WriteBufferSize int `json:"write_buffer_size,omitempty"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		AllowedSchemes: []string{"tcp", "tcp+tls"},
		Mixing:         false,
		DialTimeout:    Duration(10 * time.Second),
		TorProxy:       "",
		QUIC: QUICConfig{
			MaxIdleTimeout:  Duration(30 * time.Second),
			KeepAlivePeriod: Duration(15 * time.Second),
		},
		WS: WSConfig{
			HandshakeTimeout: Duration(10 * time.Second),
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// knownSchemes 可配置的传输方案
var knownSchemes = map[string]bool{
	"tcp":     true,
	"tcp+tls": true,
	"tor":     true,
	"tor+tls": true,
	"unix":    true,
	"quic":    true,
	"ws":      true,
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if len(c.AllowedSchemes) == 0 {
		return errors.New("at least one transport scheme must be allowed")
	}

	needsProxy := false
	for _, s := range c.AllowedSchemes {
		if !knownSchemes[s] {
			return fmt.Errorf("unknown transport scheme %q", s)
		}
		if s == "tor" || s == "tor+tls" {
			needsProxy = true
		}
	}

	if needsProxy {
		if c.TorProxy == "" {
			return errors.New("tor scheme allowed but tor_proxy not configured")
		}
		u, err := url.Parse(c.TorProxy)
		if err != nil {
			return fmt.Errorf("invalid tor_proxy: %w", err)
		}
		if u.Scheme != "socks5" {
			return fmt.Errorf("tor_proxy scheme must be socks5, got %q", u.Scheme)
		}
		if u.Port() == "" {
			return errors.New("tor_proxy must include a port")
		}
	}

	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be positive")
	}
	return nil
}

// AllowsScheme 报告方案是否在允许集合内
func (c TransportConfig) AllowsScheme(scheme string) bool {
	for _, s := range c.AllowedSchemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// WithAllowedSchemes 设置允许的方案
func (c TransportConfig) WithAllowedSchemes(schemes ...string) TransportConfig {
	c.AllowedSchemes = schemes
	return c
}

// WithMixing 设置传输混用
func (c TransportConfig) WithMixing(enabled bool) TransportConfig {
	c.Mixing = enabled
	return c
}

// WithTorProxy 设置 SOCKS5 代理
func (c TransportConfig) WithTorProxy(proxyURL string) TransportConfig {
	c.TorProxy = proxyURL
	return c
}

// WithDialTimeout 设置拨号超时
func (c TransportConfig) WithDialTimeout(timeout time.Duration) TransportConfig {
	c.DialTimeout = Duration(timeout)
	return c
}
