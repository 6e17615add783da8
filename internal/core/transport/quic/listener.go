package quic

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// streamAcceptTimeout 等待拨号方第一条流的上限
//
// 拨号方连接后立即开流并发送版本消息；超过这个窗口没有流的
// 连接按垃圾连接丢弃，避免堵住接受管道。
const streamAcceptTimeout = 10 * time.Second

// listener 把 QUIC 监听器适配为 net.Listener
//
// 接受连接与等待首条流在后台并行进行，单个迟迟不开流的
// 对端不会阻塞其他连接。
type listener struct {
	ql    *quic.Listener
	conns chan net.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

var _ net.Listener = (*listener)(nil)

func newListener(ql *quic.Listener) *listener {
	l := &listener{
		ql:     ql,
		conns:  make(chan net.Conn, 8),
		closed: make(chan struct{}),
	}
	go l.acceptLoop()
	return l
}

func (l *listener) acceptLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-l.closed
		cancel()
	}()

	for {
		conn, err := l.ql.Accept(ctx)
		if err != nil {
			return
		}

		go func(conn quic.Connection) {
			streamCtx, cancel := context.WithTimeout(ctx, streamAcceptTimeout)
			defer cancel()

			stream, err := conn.AcceptStream(streamCtx)
			if err != nil {
				conn.CloseWithError(0, "no stream")
				return
			}

			select {
			case l.conns <- &streamConn{Stream: stream, conn: conn}:
			case <-l.closed:
				conn.CloseWithError(0, "listener closed")
			}
		}(conn)
	}
}

// Accept 返回下一条已就绪的连接
func (l *listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

// Close 关闭监听器
func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.ql.Close()
	})
	return err
}

// Addr 返回监听地址
func (l *listener) Addr() net.Addr { return l.ql.Addr() }
