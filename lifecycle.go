package umbra

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/umbra-net/go-umbra/internal/core/channel"
	"github.com/umbra-net/go-umbra/pkg/types"
)

const (
	// startTimeout 内部组件启动时限
	startTimeout = 30 * time.Second

	// stopTimeout 内部组件停止时限
	stopTimeout = 30 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点：装载主机表并完成种子自举
//
// 内部组件按模块依赖顺序启动（此时不绑定任何监听），随后种子
// 会话一次性跑到完成。成功后节点进入 Started，等待 Run 拉起
// 运行期会话。
//
// 种子自举失败只在主机表为空且未配置静态对端时发生；此时节点
// 无路可走，整体回收并进入 Stopped。
func (p *P2p) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateOpen:
	case StateStarting, StateStarted, StateRunning:
		p.mu.Unlock()
		return ErrAlreadyStarted
	default:
		p.mu.Unlock()
		return ErrNodeClosed
	}
	p.state = StateStarting
	p.mu.Unlock()

	log.Info("节点启动中", "id", p.ident.NodeID)

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := p.app.Start(startCtx); err != nil {
		p.finalize()
		return fmt.Errorf("启动内部组件失败: %w", err)
	}

	// 种子自举跑到完成再进入 Started
	if err := p.seed.Run(ctx); err != nil {
		err = fmt.Errorf("种子自举失败: %w", err)
		stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
		defer cancelStop()
		if stopErr := p.app.Stop(stopCtx); stopErr != nil {
			err = multierr.Append(err, stopErr)
		}
		p.finalize()
		return err
	}

	// 通道事件泵：把注册表事件翻译成对外的通道事件
	p.eventSub = p.channels.Subscribe()
	go p.pumpChannelEvents(p.eventSub)

	p.mu.Lock()
	p.state = StateStarted
	p.mu.Unlock()

	log.Info("节点已启动", "hosts", p.store.Counts())
	return nil
}

// Run 拉起运行期会话并阻塞到节点停止
//
// 手动、入站、出站会话与精炼器依次启动；任一启动失败属于配置
// 错误，整体回收后返回。正常路径下 Run 阻塞到 Stop 被调用或
// ctx 取消，返回时节点已完成停止。
//
// Run 不可重入：节点停止后需要新建。
func (p *P2p) Run(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateStarted:
	case StateOpen, StateStarting:
		p.mu.Unlock()
		return ErrNotStarted
	case StateRunning:
		p.mu.Unlock()
		return ErrAlreadyRunning
	default:
		p.mu.Unlock()
		return ErrNodeClosed
	}
	p.state = StateRunning
	p.mu.Unlock()

	p.runMu.Lock()
	// Stop 可能并发抢先；已开始停止就不再拉起任何会话
	select {
	case <-p.stopCh:
		p.runMu.Unlock()
		<-p.stopped
		return nil
	default:
	}

	if err := p.startSessions(); err != nil {
		p.runMu.Unlock()
		return p.failRun(err)
	}
	p.runMu.Unlock()

	log.Info("节点运行中",
		"listen", p.inbound.ListenAddrs(),
		"peers", len(p.manual.Peers()),
		"slots", p.cfg.Session.OutboundConnections)

	select {
	case <-ctx.Done():
		return p.Stop()
	case <-p.stopCh:
		// Stop 已接管收尾，等它完成
		<-p.stopped
		return nil
	}
}

// startSessions 依次拉起运行期会话与精炼器
//
// 调用方持有 runMu。
func (p *P2p) startSessions() error {
	if err := p.manual.Start(); err != nil {
		return fmt.Errorf("启动手动会话失败: %w", err)
	}
	if err := p.inbound.Start(); err != nil {
		return fmt.Errorf("启动入站会话失败: %w", err)
	}
	if err := p.outbound.Start(); err != nil {
		return fmt.Errorf("启动出站会话失败: %w", err)
	}
	p.refine.Start()
	return nil
}

// failRun 回收一次失败的 Run 并返回原始错误
//
// 会话的 Stop 都幂等，未启动的会话停掉也无害，直接走完整的
// 停止路径。
func (p *P2p) failRun(err error) error {
	if stopErr := p.Stop(); stopErr != nil {
		err = multierr.Append(err, stopErr)
	}
	return err
}

// Stop 停止节点
//
// 依次：通知停止订阅者、唤醒 Run、按与启动相反的顺序停掉运行
// 期会话（出站、入站、手动），精炼器在会话之后收场，最后停止
// 内部组件（清扫通道、回写主机表、关闭传输）。幂等：并发或
// 重复调用等待首次停止完成。
func (p *P2p) Stop() error {
	p.mu.Lock()
	switch p.state {
	case StateOpen, StateStarting:
		p.mu.Unlock()
		return ErrNotStarted
	case StateStopping, StateStopped:
		p.mu.Unlock()
		<-p.stopped
		return nil
	}
	wasRunning := p.state == StateRunning
	p.state = StateStopping
	p.mu.Unlock()

	log.Info("节点停止中")
	p.stopSubs.closeAll()
	close(p.stopCh)

	var errs error
	if wasRunning {
		p.runMu.Lock()
		errs = multierr.Append(errs, p.outbound.Stop())
		errs = multierr.Append(errs, p.inbound.Stop())
		errs = multierr.Append(errs, p.manual.Stop())
		errs = multierr.Append(errs, p.refine.Stop())
		p.runMu.Unlock()
	}

	if p.eventSub != nil {
		p.channels.Unsubscribe(p.eventSub)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	errs = multierr.Append(errs, p.app.Stop(stopCtx))

	p.chanSubs.closeAll()
	p.sessSubs.closeAll()

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()
	close(p.stopped)

	log.Info("节点已停止")
	return errs
}

// WaitStop 阻塞到节点完全停止
//
// 未启动过的节点会一直阻塞，调用方通常在 Start 成功后使用。
func (p *P2p) WaitStop() {
	<-p.stopped
}

// finalize 把启动失败的节点推进到 Stopped
//
// 只在 Start 的失败路径调用：此时 Run 和 Stop 都还不可能在
// 走（Starting 状态下两者都直接返回），关闭动作没有竞争。
func (p *P2p) finalize() {
	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()

	p.stopSubs.closeAll()
	p.chanSubs.closeAll()
	p.sessSubs.closeAll()
	close(p.stopCh)
	close(p.stopped)
}

// pumpChannelEvents 消费注册表事件并翻译给外部订阅者
//
// 注册表退订会关闭事件通道，泵随之退出。
func (p *P2p) pumpChannelEvents(sub chan channel.Event) {
	for ev := range sub {
		dir := types.DirOutbound
		if ev.Session.Has(types.SessionInbound) {
			dir = types.DirInbound
		}
		p.chanSubs.publish(types.ChannelEvent{
			Addr:      ev.Addr,
			Direction: dir,
			Connected: ev.Type == channel.EventAdded,
			Time:      p.clk.Now(),
		})
	}
}
