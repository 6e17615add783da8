// Package refinery 实现灰名单精炼
//
// 后台循环按间隔随机抽取一条灰名单地址，做一次完整的拨号加握手
// 探测后立即断开：探测通过的地址带着新的联络时间晋升白名单，
// 失败的地址被永久驱逐并进入隔离缓存。
//
// 探测是独立任务：精炼器停止不会中断已发起的探测，探测在自身
// 超时内运行到结束，并由自己的 defer 清理 migrating/pending 标记。
package refinery

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/util/logger"
	"github.com/umbra-net/go-umbra/internal/util/task"
	"github.com/umbra-net/go-umbra/pkg/types"
)

var log = logger.Logger("core/refinery")

// ProbeFunc 对地址做一次拨号加握手并立即断开的探测
//
// 返回 nil 表示对端可达且协议兼容。实现不得把连接注册到任何
// 会话或通道表。
type ProbeFunc func(ctx context.Context, addr types.Address) error

// ConnectedFunc 报告地址当前是否已有活跃连接
type ConnectedFunc func(addr types.Address) bool

// Config 精炼器参数
type Config struct {
	// Interval 两次抽取之间的间隔，0 表示不间歇（主要用于测试）
	Interval time.Duration

	// Timeout 单次探测的最长时长
	Timeout time.Duration

	// Schemes 可探测的地址方案
	Schemes []string

	// Connected 活跃连接判断，nil 表示不检查
	Connected ConnectedFunc

	// Clock 可注入时钟，nil 使用真实时钟
	Clock clock.Clock
}

// Refinery 灰名单精炼器
type Refinery struct {
	store     *hoststore.Store
	probe     ProbeFunc
	interval  time.Duration
	timeout   time.Duration
	schemes   []string
	connected ConnectedFunc
	clk       clock.Clock
	tasks     *task.Group

	mu      sync.Mutex
	started bool
	stopped bool
}

// New 创建精炼器
func New(cfg Config, store *hoststore.Store, probe ProbeFunc) *Refinery {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Refinery{
		store:     store,
		probe:     probe,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		schemes:   cfg.Schemes,
		connected: cfg.Connected,
		clk:       clk,
		tasks:     task.NewGroup(),
	}
}

// Start 启动精炼循环
//
// 重复调用或在 Stop 之后调用都是无操作。
func (r *Refinery) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.tasks.Go(r.loop)
	log.Info("灰名单精炼器已启动", "interval", r.interval)
}

// Stop 停止精炼循环并等待其退出
//
// 进行中的探测不受影响，继续运行到自身超时。
func (r *Refinery) Stop() error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	return r.tasks.Close()
}

// loop 抽取循环
func (r *Refinery) loop(ctx context.Context) {
	for {
		if !task.Sleep(ctx, r.clk, r.interval) {
			return
		}
		r.refineOnce(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// refineOnce 抽取一条灰名单地址并探测
//
// 同一时刻只有一个探测在飞：循环等待探测结束再进入下一轮，
// 但精炼器停止时把收尾留给探测自己。
func (r *Refinery) refineOnce(ctx context.Context) {
	entry, index, ok := r.store.FetchRandom(types.TierGrey, r.schemes)
	if !ok {
		return
	}
	addr := entry.Addr

	if r.store.IsMigrating(addr) || r.store.IsPending(addr) || r.isConnected(addr) {
		return
	}
	r.store.SetMigrating(addr)
	if !r.store.TryPending(addr) {
		// 竞争失败：别处正要拨这个地址
		r.store.ClearMigrating(addr)
		return
	}

	probe := task.Detach(r.timeout, func(pctx context.Context) {
		r.refine(pctx, addr, index)
	})

	select {
	case <-probe.Closed():
	case <-ctx.Done():
	}
}

// refine 执行单次探测并处置结果
func (r *Refinery) refine(ctx context.Context, addr types.Address, index int) {
	defer r.store.ClearMigrating(addr)
	defer r.store.ClearPending(addr)

	if err := r.probe(ctx, addr); err != nil {
		log.Debug("灰名单探测失败，永久驱逐", "addr", addr, "error", err)
		if err := r.store.EvictForever(addr, types.TierGrey, index); err != nil {
			log.Debug("驱逐灰名单地址失败", "addr", addr, "error", err)
		}
		return
	}

	if err := r.store.PromoteAt(addr, index, types.TierGrey, types.TierWhite, r.clk.Now()); err != nil {
		log.Debug("晋升灰名单地址失败", "addr", addr, "error", err)
		return
	}
	log.Info("灰名单地址通过探测，晋升白名单", "addr", addr)
}

func (r *Refinery) isConnected(addr types.Address) bool {
	return r.connected != nil && r.connected(addr)
}
