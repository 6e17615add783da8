// Package types 定义 umbra 的公共基础类型
package types

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ============================================================================
//                              地址方案
// ============================================================================

// 支持的地址方案
const (
	// SchemeTCP 明文 TCP
	SchemeTCP = "tcp"
	// SchemeTCPTLS TLS 加密的 TCP
	SchemeTCPTLS = "tcp+tls"
	// SchemeTor 经 SOCKS5 代理的 TCP（Tor）
	SchemeTor = "tor"
	// SchemeTorTLS 经 SOCKS5 代理的 TLS TCP
	SchemeTorTLS = "tor+tls"
	// SchemeUnix Unix 域套接字
	SchemeUnix = "unix"
	// SchemeQUIC QUIC（自带 TLS 1.3）
	SchemeQUIC = "quic"
	// SchemeWS WebSocket
	SchemeWS = "ws"
	// SchemeDNSSeed DNS 种子（仅用于种子配置，解析后得到 tcp 地址）
	SchemeDNSSeed = "dnsseed"
)

// KnownSchemes 返回所有可配置的传输方案
func KnownSchemes() []string {
	return []string{SchemeTCP, SchemeTCPTLS, SchemeTor, SchemeTorTLS, SchemeUnix, SchemeQUIC, SchemeWS}
}

// ============================================================================
//                              Address - 节点地址
// ============================================================================

// Address 节点地址
//
// 规范化的 URL 形式地址，如 "tcp://127.0.0.1:9595" 或 "unix:///tmp/node.sock"。
// Address 是值类型，可直接用 == 比较、作 map 键。
type Address struct {
	scheme string
	host   string
	port   uint16
	path   string // 仅 unix 方案使用
}

// ParseAddr 解析地址字符串
//
// 支持的形式:
//   - scheme://host:port （tcp、tcp+tls、tor、tor+tls、quic、ws、dnsseed）
//   - unix:///path/to/socket
func ParseAddr(s string) (Address, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Address{}, fmt.Errorf("解析地址失败: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return Address{}, fmt.Errorf("地址缺少方案: %q", s)
	}

	if scheme == SchemeUnix {
		path := u.Path
		if path == "" {
			// unix://relative 形式会把路径解析到 Host
			path = u.Host
		}
		if path == "" {
			return Address{}, fmt.Errorf("unix 地址缺少路径: %q", s)
		}
		return Address{scheme: SchemeUnix, path: path}, nil
	}

	host := u.Hostname()
	if host == "" {
		return Address{}, fmt.Errorf("地址缺少主机: %q", s)
	}

	portStr := u.Port()
	if portStr == "" {
		return Address{}, fmt.Errorf("地址缺少端口: %q", s)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("无效端口 %q: %w", portStr, err)
	}

	return Address{scheme: scheme, host: strings.ToLower(host), port: uint16(port)}, nil
}

// MustAddr 解析地址字符串，失败时 panic（仅用于测试和常量）
func MustAddr(s string) Address {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseAddrs 批量解析地址字符串，遇到首个错误即返回
func ParseAddrs(ss []string) ([]Address, error) {
	addrs := make([]Address, 0, len(ss))
	for _, s := range ss {
		a, err := ParseAddr(s)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// Scheme 返回地址方案
func (a Address) Scheme() string { return a.scheme }

// Host 返回主机名或 IP
func (a Address) Host() string { return a.host }

// Port 返回端口（unix 方案为 0）
func (a Address) Port() uint16 { return a.port }

// Path 返回套接字路径（仅 unix 方案非空）
func (a Address) Path() string { return a.path }

// HostPort 返回 "host:port" 形式，用于 net 拨号
func (a Address) HostPort() string {
	return net.JoinHostPort(a.host, strconv.Itoa(int(a.port)))
}

// IsZero 报告地址是否为零值
func (a Address) IsZero() bool {
	return a.scheme == ""
}

// WithScheme 返回替换了方案的地址副本
func (a Address) WithScheme(scheme string) Address {
	a.scheme = scheme
	return a
}

// String 返回规范化的地址字符串
//
// 同一地址的 String 结果唯一，可直接用于相等性判断。
func (a Address) String() string {
	if a.scheme == "" {
		return ""
	}
	if a.scheme == SchemeUnix {
		return SchemeUnix + "://" + a.path
	}
	return a.scheme + "://" + a.HostPort()
}

// IsOnion 报告主机是否为 .onion 域名
func (a Address) IsOnion() bool {
	return strings.HasSuffix(a.host, ".onion")
}

// IsLoopback 报告主机是否为回环地址
func (a Address) IsLoopback() bool {
	if a.scheme == SchemeUnix {
		return false
	}
	if a.host == "localhost" {
		return true
	}
	if ip := net.ParseIP(a.host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// IsPrivate 报告主机是否为私网、链路本地或未指定地址
func (a Address) IsPrivate() bool {
	if ip := net.ParseIP(a.host); ip != nil {
		return ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
	}
	return false
}

// MarshalText 实现 encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddr(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
