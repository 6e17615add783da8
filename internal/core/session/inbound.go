package session

import (
	"context"
	"fmt"
	"net"
	"sync"

	tec "github.com/jbenet/go-temp-err-catcher"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// Inbound 入站会话
//
// 为每个监听地址跑一个接受循环。新连接依次过容量闸门与黑名单
// 闸门，再以入站方向握手、注册、附加协议。监听失败是致命错误，
// 接受循环里的临时错误则退避后重试。
type Inbound struct {
	base

	mu        sync.Mutex
	listeners []net.Listener
	bound     []types.Address

	// conns 追踪握手中的连接，Stop 等它们收尾
	conns sync.WaitGroup
}

// NewInbound 构造入站会话，Start 之前不持有任何资源
func NewInbound(co Coordinator) *Inbound {
	return &Inbound{base: newBase(types.SessionInbound, co)}
}

// Start 逐个打开监听地址并启动接受循环
//
// 任何一个地址监听失败都会关掉已打开的监听并整体失败；
// 未配置监听地址时入站会话不工作。
func (i *Inbound) Start() error {
	raw := i.co.Settings().Session.ListenAddrs
	if len(raw) == 0 {
		log.Info("未配置监听地址，跳过入站会话")
		return nil
	}
	addrs, err := types.ParseAddrs(raw)
	if err != nil {
		return fmt.Errorf("监听地址无效: %w", err)
	}

	for _, a := range addrs {
		ln, err := i.co.Transports().Listen(a)
		if err != nil {
			i.closeListeners()
			return fmt.Errorf("监听 %s 失败: %w", a, err)
		}
		actual := boundAddr(a, ln)

		i.mu.Lock()
		i.listeners = append(i.listeners, ln)
		i.bound = append(i.bound, actual)
		i.mu.Unlock()

		i.tasks.Go(func(ctx context.Context) {
			i.acceptLoop(ctx, ln, a.Scheme())
		})
		log.Info("入站监听已就绪", "addr", actual)
	}
	return nil
}

// Stop 关闭监听、停掉接受循环并等待在途连接处理完，幂等
func (i *Inbound) Stop() error {
	var err error
	i.stopOnce.Do(func() {
		// 先关监听解除 Accept 阻塞，任务树才能收敛
		i.closeListeners()
		err = i.tasks.Close()
		i.conns.Wait()
	})
	return err
}

// ListenAddrs 返回实际绑定的监听地址（配置端口 0 时为真实端口）
func (i *Inbound) ListenAddrs() []types.Address {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]types.Address, len(i.bound))
	copy(out, i.bound)
	return out
}

func (i *Inbound) closeListeners() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, ln := range i.listeners {
		_ = ln.Close()
	}
	i.listeners = nil
}

// acceptLoop 接受循环，监听器关闭时退出
//
// 来源地址的方案沿用监听地址的方案：从 ws 监听进来的就是 ws 对端。
func (i *Inbound) acceptLoop(ctx context.Context, ln net.Listener, scheme string) {
	var catcher tec.TempErrCatcher
	for {
		conn, err := ln.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				continue
			}
			if ctx.Err() == nil {
				log.Debug("监听循环退出", "error", err)
			}
			return
		}
		i.conns.Add(1)
		go func() {
			defer i.conns.Done()
			i.handle(ctx, scheme, conn)
		}()
	}
}

// handle 处理一条新接受的连接：闸门、握手、入册、守护
func (i *Inbound) handle(ctx context.Context, scheme string, conn net.Conn) {
	remote, err := types.ParseAddr(scheme + "://" + conn.RemoteAddr().String())
	if err != nil {
		log.Warn("无法识别入站来源地址", "raw", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}

	cfg := i.co.Settings()

	// 容量闸门在握手之前，满员直接断开不浪费握手
	if limit := cfg.Session.InboundConnections; limit > 0 &&
		i.co.Channels().LenKind(types.SessionInbound) >= limit {
		log.Warn("入站容量已满，拒绝连接", "remote", remote, "limit", limit)
		i.emit("inbound rejected (capacity): " + remote.String())
		_ = conn.Close()
		return
	}

	// 黑名单闸门按策略执行：严格断开，宽松放行但告警
	if i.co.Hosts().Blocked(remote) {
		if cfg.Blacklist.BanPolicy != config.BanPolicyRelaxed {
			log.Debug("黑名单地址接入，已断开", "remote", remote)
			i.emit("inbound rejected (blacklist): " + remote.String())
			_ = conn.Close()
			return
		}
		log.Warn("黑名单地址接入，宽松策略放行", "remote", remote)
	}

	ch := i.co.Connector().NewInbound(conn, remote)
	if err := ch.PerformHandshake(ctx); err != nil {
		log.Debug("入站握手失败", "remote", remote, "error", err)
		ch.Stop()
		return
	}

	i.greylistAdvertised(ch)
	if err := i.runChannel(ctx, ch); err != nil {
		log.Debug("入站通道注册被拒", "remote", remote, "error", err)
	}
}

// boundAddr 以监听器的真实地址还原对外可见的监听地址
//
// 配置端口为 0 时监听器会拿到系统分配的端口，这里把它带回来。
// 还原失败（如 unix 套接字的匿名对端）退回配置地址。
func boundAddr(configured types.Address, ln net.Listener) types.Address {
	actual, err := types.ParseAddr(configured.Scheme() + "://" + ln.Addr().String())
	if err != nil {
		return configured
	}
	return actual
}

