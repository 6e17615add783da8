package ws

import (
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// listener 把升级后的 WebSocket 连接暴露为 net.Listener
type listener struct {
	ln    net.Listener
	srv   *http.Server
	conns chan net.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

var _ net.Listener = (*listener)(nil)

func newListener(ln net.Listener, cfg Config) *listener {
	l := &listener{
		ln:     ln,
		conns:  make(chan net.Conn, 8),
		closed: make(chan struct{}),
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadBufferSize:   cfg.ReadBufferSize,
		WriteBufferSize:  cfg.WriteBufferSize,
		// 节点间连接不做浏览器同源检查
		CheckOrigin: func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case l.conns <- newConn(ws):
		case <-l.closed:
			ws.Close()
		}
	})

	l.srv = &http.Server{Handler: mux}
	go l.srv.Serve(ln)
	return l
}

// Accept 返回下一条升级完成的连接
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
		err = l.srv.Close()
	})
	return err
}

// Addr 返回监听地址
func (l *listener) Addr() net.Addr { return l.ln.Addr() }
