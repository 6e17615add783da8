// Package socks5 实现 RFC 1928 的 CONNECT 客户端
//
// 只做协议本身：在一条已建立的代理连接上完成方法协商与
// CONNECT 请求。拨号代理、超时与 TLS 升级都属于调用方（tor 传输）。
// 与任何标准 SOCKS5 代理（包括 Tor 的 SOCKS 端口）逐字节兼容。
package socks5

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"
)

// 协议常量（RFC 1928）
const (
	socksVersion = 0x05
	methodNoAuth = 0x00
	cmdConnect   = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04
)

// CONNECT 应答码（RFC 1928 §6）
const (
	ReplySucceeded          = 0x00
	ReplyGeneralFailure     = 0x01
	ReplyNotAllowed         = 0x02
	ReplyNetworkUnreachable = 0x03
	ReplyHostUnreachable    = 0x04
	ReplyConnectionRefused  = 0x05
	ReplyTTLExpired         = 0x06
	ReplyCmdNotSupported    = 0x07
	ReplyAtypNotSupported   = 0x08
)

// ErrMalformedReply 代理返回了无法解析的字节序列
var ErrMalformedReply = errors.New("socks5: malformed reply")

// ReplyError 代理返回的非零 CONNECT 应答码
type ReplyError struct {
	Code byte
}

// Error 实现 error 接口
func (e *ReplyError) Error() string {
	return fmt.Sprintf("socks5: connect failed: reply code %#02x", e.Code)
}

// Client SOCKS5 CONNECT 客户端
//
// 凭据从代理 URL 解析并保留，但从不发送：客户端只提供
// 无认证方法。
// TODO: 支持 RFC 1929 用户名/密码认证
type Client struct {
	proxyAddr string
	username  string
	password  string
}

// ParseProxyURL 从 socks5://[user:pass@]host:port 构造客户端
func ParseProxyURL(raw string) (*Client, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析代理地址失败: %w", err)
	}
	if u.Scheme != "socks5" {
		return nil, fmt.Errorf("代理方案必须是 socks5, got %q", u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("代理地址缺少主机或端口: %q", raw)
	}

	c := &Client{
		proxyAddr: net.JoinHostPort(u.Hostname(), u.Port()),
	}
	if u.User != nil {
		c.username = u.User.Username()
		c.password, _ = u.User.Password()
	}
	return c, nil
}

// ProxyAddr 返回代理的 host:port
func (c *Client) ProxyAddr() string { return c.proxyAddr }

// Connect 在已建立的代理连接上执行 CONNECT 到 host:port
//
// 成功后 conn 即是到目标的透明字节流。任何畸形字节序列都
// 立即失败，由调用方关闭 conn；所有读写受 ctx 截止时间约束。
func (c *Client) Connect(ctx context.Context, conn net.Conn, host string, port uint16) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
		defer conn.SetDeadline(time.Time{})
	}

	if err := c.negotiateMethod(conn); err != nil {
		return err
	}
	return c.connect(conn, host, port)
}

// negotiateMethod 发送方法选择并校验应答
//
// 请求: [VER=0x05, NMETHODS=0x01, METHODS=[0x00]]
// 应答必须是 [0x05, 0x00]。
func (c *Client) negotiateMethod(conn net.Conn) error {
	if _, err := conn.Write([]byte{socksVersion, 0x01, methodNoAuth}); err != nil {
		return fmt.Errorf("发送方法协商失败: %w", err)
	}

	var reply [2]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		return fmt.Errorf("读取方法应答失败: %w", err)
	}
	if reply[0] != socksVersion {
		return fmt.Errorf("%w: bad version %#02x", ErrMalformedReply, reply[0])
	}
	if reply[1] != methodNoAuth {
		return fmt.Errorf("%w: method %#02x not accepted", ErrMalformedReply, reply[1])
	}
	return nil
}

// connect 发送 CONNECT 请求并消费应答
func (c *Client) connect(conn net.Conn, host string, port uint16) error {
	req, err := buildConnectRequest(host, port)
	if err != nil {
		return err
	}
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("发送 CONNECT 请求失败: %w", err)
	}

	// 应答头: VER REP RSV ATYP
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return fmt.Errorf("读取 CONNECT 应答失败: %w", err)
	}
	if header[0] != socksVersion {
		return fmt.Errorf("%w: bad version %#02x", ErrMalformedReply, header[0])
	}
	if header[1] != ReplySucceeded {
		return &ReplyError{Code: header[1]}
	}

	// 消费 BND.ADDR + BND.PORT，之后 conn 才是目标字节流
	var bndLen int
	switch header[3] {
	case atypIPv4:
		bndLen = net.IPv4len
	case atypIPv6:
		bndLen = net.IPv6len
	case atypDomain:
		var n [1]byte
		if _, err := io.ReadFull(conn, n[:]); err != nil {
			return fmt.Errorf("读取绑定域名长度失败: %w", err)
		}
		bndLen = int(n[0])
	default:
		return fmt.Errorf("%w: bad address type %#02x", ErrMalformedReply, header[3])
	}
	trailer := make([]byte, bndLen+2)
	if _, err := io.ReadFull(conn, trailer); err != nil {
		return fmt.Errorf("读取绑定地址失败: %w", err)
	}

	return nil
}

// buildConnectRequest 构造 CONNECT 请求字节
//
// [VER=0x05, CMD=0x01, RSV=0x00, ATYP, DST.ADDR, DST.PORT(大端)]
func buildConnectRequest(host string, port uint16) ([]byte, error) {
	req := []byte{socksVersion, cmdConnect, 0x00}

	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			req = append(req, atypIPv4)
			req = append(req, ip4...)
		} else {
			req = append(req, atypIPv6)
			req = append(req, ip.To16()...)
		}
	} else {
		if len(host) > 255 {
			return nil, fmt.Errorf("域名过长: %d 字节", len(host))
		}
		if len(host) == 0 {
			return nil, fmt.Errorf("目标主机为空")
		}
		req = append(req, atypDomain, byte(len(host)))
		req = append(req, host...)
	}

	return binary.BigEndian.AppendUint16(req, port), nil
}
