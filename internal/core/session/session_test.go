package session

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/channel"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/core/identity"
	"github.com/umbra-net/go-umbra/internal/core/protocol"
	"github.com/umbra-net/go-umbra/internal/core/transport"
	"github.com/umbra-net/go-umbra/internal/core/transport/tcp"
	"github.com/umbra-net/go-umbra/pkg/types"
)

func addr(t *testing.T, s string) types.Address {
	t.Helper()
	a, err := types.ParseAddr(s)
	require.NoError(t, err)
	return a
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("条件在超时前未满足")
}

// ============================================================
//                      协调器替身
// ============================================================

// testCoordinator 用真实部件拼出的协调器切面
//
// 节点标识随机生成，避免测试里的自连误判；协议注册表留空，
// 会话逻辑不依赖任何内建处理器。
type testCoordinator struct {
	cfg        *config.Config
	store      *hoststore.Store
	channels   *channel.Registry
	connector  *channel.Connector
	protocols  *protocol.Registry
	transports *transport.Registry
	clk        clock.Clock

	mu     sync.Mutex
	events []types.SessionEvent
}

func newCoordinator(t *testing.T, mutate ...func(*config.Config)) *testCoordinator {
	t.Helper()

	cfg := config.Default()
	cfg.Node.Localnet = true
	cfg.Transport.AllowedSchemes = []string{types.SchemeTCP}
	cfg.Session.OutboundConnectTimeout = config.Duration(2 * time.Second)
	cfg.Session.HandshakeTimeout = config.Duration(2 * time.Second)
	cfg.Session.SeedQueryTimeout = config.Duration(2 * time.Second)
	cfg.Session.ManualRetryInterval = config.Duration(50 * time.Millisecond)
	cfg.Session.PeerDiscoveryCooloff = config.Duration(50 * time.Millisecond)
	cfg.Session.PeerDiscoveryAttempt = config.Duration(30 * time.Millisecond)
	for _, m := range mutate {
		m(cfg)
	}

	store, err := hoststore.New(hoststore.ConfigFromUnified(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	transports := transport.NewRegistry(cfg.Transport.AllowedSchemes, cfg.Transport.Mixing)
	tr, err := tcp.New(false)
	require.NoError(t, err)
	require.NoError(t, transports.Register(tr))
	t.Cleanup(func() { _ = transports.Close() })

	ident, err := identity.FromConfig(cfg)
	require.NoError(t, err)

	connector := channel.NewConnector(transports, ident, channel.ConnectorConfig{
		ConnectTimeout:   cfg.Session.OutboundConnectTimeout.Duration(),
		HandshakeTimeout: cfg.Session.HandshakeTimeout.Duration(),
	})

	clk := clock.New()
	protocols := protocol.NewRegistry(protocol.Env{
		Store: store, Config: cfg, Identity: ident, Clock: clk,
	})
	t.Cleanup(func() { _ = protocols.Close() })

	channels := channel.NewRegistry()
	t.Cleanup(func() { _ = channels.CloseAll(context.Background()) })

	return &testCoordinator{
		cfg:        cfg,
		store:      store,
		channels:   channels,
		connector:  connector,
		protocols:  protocols,
		transports: transports,
		clk:        clk,
	}
}

func (c *testCoordinator) Hosts() *hoststore.Store         { return c.store }
func (c *testCoordinator) Channels() *channel.Registry     { return c.channels }
func (c *testCoordinator) Connector() *channel.Connector   { return c.connector }
func (c *testCoordinator) Protocols() *protocol.Registry   { return c.protocols }
func (c *testCoordinator) Transports() *transport.Registry { return c.transports }
func (c *testCoordinator) Settings() *config.Config        { return c.cfg }
func (c *testCoordinator) Clock() clock.Clock              { return c.clk }

func (c *testCoordinator) Publish(ev types.SessionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// eventCount 统计包含子串的诊断事件数
func (c *testCoordinator) eventCount(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if strings.Contains(ev.Info, substr) {
			n++
		}
	}
	return n
}

// ============================================================
//                      对端替身
// ============================================================

// testPeer 真实 TCP 上的小对端：接受、握手、回答 getaddrs
type testPeer struct {
	t     *testing.T
	ln    net.Listener
	addr  types.Address
	ident *identity.Identity
	store *hoststore.Store
	cfg   *config.Config
	clk   clock.Clock

	accepted atomic.Int32

	mu       sync.Mutex
	channels []*channel.Channel
	closed   bool
}

func newPeer(t *testing.T, node string) *testPeer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	store, err := hoststore.New(hoststore.Config{
		Localnet:       true,
		WhitePercent:   70,
		GoldSlots:      2,
		QuarantineSize: 16,
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Node.Localnet = true

	p := &testPeer{
		t:     t,
		ln:    ln,
		addr:  types.MustAddr("tcp://" + ln.Addr().String()),
		ident: &identity.Identity{NodeID: node, AppVersion: "umbra/0.1.0", ProtocolVersion: 1},
		store: store,
		cfg:   cfg,
		clk:   clock.New(),
	}
	go p.acceptLoop()
	t.Cleanup(p.close)
	return p
}

func (p *testPeer) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.accepted.Add(1)
		go p.serve(conn)
	}
}

// serve 握手并挂上地址应答处理器
func (p *testPeer) serve(conn net.Conn) {
	remote, err := types.ParseAddr("tcp://" + conn.RemoteAddr().String())
	if err != nil {
		_ = conn.Close()
		return
	}
	ch := channel.New(conn, channel.Config{
		Kind:             types.SessionInbound,
		Addr:             remote,
		LocalVersion:     p.ident.Version(),
		HandshakeTimeout: 2 * time.Second,
	})
	if err := ch.PerformHandshake(context.Background()); err != nil {
		ch.Stop()
		return
	}

	env := protocol.Env{Store: p.store, Config: p.cfg, Identity: p.ident, Clock: p.clk}
	h := protocol.NewAddrs(ch, env)
	ch.Start()
	go h.Run(context.Background())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		ch.Stop()
		return
	}
	p.channels = append(p.channels, ch)
	p.mu.Unlock()
}

// kill 掐断当前所有连接，监听保持
func (p *testPeer) kill() {
	p.mu.Lock()
	chans := p.channels
	p.channels = nil
	p.mu.Unlock()
	for _, ch := range chans {
		ch.Stop()
		<-ch.Done()
	}
}

func (p *testPeer) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	_ = p.ln.Close()
	p.kill()
	_ = p.store.Close()
}
