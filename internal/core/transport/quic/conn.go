package quic

import (
	"net"

	"github.com/quic-go/quic-go"
)

// streamConn 把一条 QUIC 双向流适配为 net.Conn
//
// 一条连接只有一条流，关闭流即关闭整条连接。
type streamConn struct {
	quic.Stream
	conn quic.Connection
}

var _ net.Conn = (*streamConn)(nil)

// LocalAddr 返回本端地址
func (c *streamConn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr 返回对端地址
func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close 关闭流与承载它的连接
func (c *streamConn) Close() error {
	c.Stream.Close()
	return c.conn.CloseWithError(0, "")
}
