package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/umbra-net/go-umbra/internal/core/transport/socks5"
	"github.com/umbra-net/go-umbra/pkg/types"
)

var (
	// ErrSchemeNotAllowed 地址方案不在允许集合内
	ErrSchemeNotAllowed = errors.New("transport scheme not allowed")

	// ErrListenUnsupported 该传输不支持监听
	ErrListenUnsupported = errors.New("transport does not support listening")

	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport closed")
)

// ErrorKind 连接失败的分类
type ErrorKind int

const (
	// KindRefused 对端明确拒绝连接
	KindRefused ErrorKind = iota
	// KindUnreachable 目标不可达
	KindUnreachable
	// KindTimedOut 连接超时
	KindTimedOut
	// KindProxyMalformed 代理返回畸形应答
	KindProxyMalformed
)

// String 返回分类的字符串表示
func (k ErrorKind) String() string {
	switch k {
	case KindRefused:
		return "refused"
	case KindUnreachable:
		return "unreachable"
	case KindTimedOut:
		return "timed out"
	case KindProxyMalformed:
		return "proxy malformed"
	default:
		return "unknown"
	}
}

// ConnectError 归一化的连接失败
//
// 所有传输都把拨号失败包装成 ConnectError，会话层据 Kind
// 决定剔除还是跳过候选地址。
type ConnectError struct {
	Kind ErrorKind
	Addr types.Address
	Err  error
}

// NewConnectError 构造指定分类的连接错误
func NewConnectError(kind ErrorKind, addr types.Address, err error) *ConnectError {
	return &ConnectError{Kind: kind, Addr: addr, Err: err}
}

// Error 实现 error 接口
func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connect %s: %s: %v", e.Addr, e.Kind, e.Err)
	}
	return fmt.Sprintf("connect %s: %s", e.Addr, e.Kind)
}

// Unwrap 返回底层错误
func (e *ConnectError) Unwrap() error { return e.Err }

// Classify 把一次拨号失败归入错误分类
//
// 已经分类过的错误原样返回；SOCKS5 应答码按 kindForReply 映射，
// ECONNREFUSED 归为拒绝，超时（net.Error 或
// context.DeadlineExceeded）归为超时，其余归为不可达。
func Classify(addr types.Address, err error) *ConnectError {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce
	}

	var re *socks5.ReplyError
	if errors.As(err, &re) {
		return NewConnectError(kindForReply(re.Code), addr, err)
	}
	if errors.Is(err, socks5.ErrMalformedReply) {
		return NewConnectError(KindProxyMalformed, addr, err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return NewConnectError(KindRefused, addr, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewConnectError(KindTimedOut, addr, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewConnectError(KindTimedOut, addr, err)
	}

	return NewConnectError(KindUnreachable, addr, err)
}

// kindForReply 把 SOCKS5 CONNECT 应答码归入错误分类
func kindForReply(code byte) ErrorKind {
	switch code {
	case socks5.ReplyNotAllowed, socks5.ReplyConnectionRefused:
		return KindRefused
	case socks5.ReplyNetworkUnreachable, socks5.ReplyHostUnreachable, socks5.ReplyAtypNotSupported:
		return KindUnreachable
	case socks5.ReplyTTLExpired:
		return KindTimedOut
	default:
		// 0x01 一般失败、0x07 不支持的命令及任何未定义码
		return KindProxyMalformed
	}
}
