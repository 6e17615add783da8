package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/core/wire"
	"github.com/umbra-net/go-umbra/pkg/types"
)

const (
	// seedQueryMax 单个种子索取的地址上限
	seedQueryMax = 1000

	// seedDialParallelism 同时拨号的种子数
	seedDialParallelism = 8
)

// Seed 种子会话：启动期一次性地址收割
//
// 对每个种子：拨号、握手、索取地址、灰名单入库、关断。通道不进
// 注册表也不挂协议，整个会话在 Run 返回时结束。
type Seed struct {
	base
	resolve ResolveFunc
}

// NewSeed 创建种子会话，resolve 为 nil 时使用 DNS 解析器
func NewSeed(co Coordinator, resolve ResolveFunc) *Seed {
	if resolve == nil {
		sc := co.Settings().Session
		resolve = newResolver(sc.SeedResolver, sc.SeedQueryTimeout.Duration())
	}
	return &Seed{
		base:    newBase(types.SessionSeed, co),
		resolve: resolve,
	}
}

// Run 执行一次完整的种子收割，阻塞到全部种子处理完毕
//
// 个别种子失败只告警；种子全部不可达仅在主机表为空且没有静态
// 对端时才算启动失败。
func (s *Seed) Run(ctx context.Context) error {
	raw := s.co.Settings().Session.Seeds
	if len(raw) == 0 {
		log.Info("未配置种子，跳过种子会话")
		return nil
	}

	seeds, err := types.ParseAddrs(raw)
	if err != nil {
		return fmt.Errorf("种子地址无效: %w", err)
	}

	targets := expandSeeds(ctx, seeds, s.resolve)
	log.Info("种子会话开始", "seeds", len(raw), "targets", len(targets))

	var reached, harvested atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(seedDialParallelism)
	for _, addr := range targets {
		g.Go(func() error {
			connected, n, err := s.harvest(ctx, addr)
			if connected {
				reached.Add(1)
			}
			if n > 0 {
				harvested.Add(int32(n))
			}
			if err != nil {
				log.Warn("种子收割失败", "seed", addr, "error", err)
				s.emit("seed failed: " + addr.String())
				return nil
			}
			s.emit(fmt.Sprintf("seed %s yielded %d addrs", addr, n))
			return nil
		})
	}
	_ = g.Wait()

	return s.finish(int(reached.Load()), int(harvested.Load()))
}

// harvest 连接单个种子并索取一轮地址
func (s *Seed) harvest(ctx context.Context, addr types.Address) (connected bool, n int, err error) {
	ch, err := s.co.Connector().Connect(ctx, addr, types.SessionSeed)
	if err != nil {
		return false, 0, err
	}
	defer func() {
		ch.Stop()
		<-ch.Done()
	}()

	// 启动前订阅，应答不会漏
	sub := ch.Subscribe(wire.CmdAddrs)
	defer sub.Cancel()
	ch.Start()

	req, err := wire.Encode(wire.CmdGetAddrs, wire.GetAddrs{
		Max:     seedQueryMax,
		Schemes: s.co.Settings().Transport.AllowedSchemes,
	})
	if err != nil {
		return true, 0, err
	}
	if err := ch.Send(ctx, req); err != nil {
		return true, 0, fmt.Errorf("发送 getaddrs 失败: %w", err)
	}

	timer := s.co.Clock().Timer(s.co.Settings().Session.SeedQueryTimeout.Duration())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true, 0, ctx.Err()
	case <-timer.C:
		return true, 0, errors.New("种子应答超时")
	case msg, ok := <-sub.C():
		if !ok {
			return true, 0, errors.New("通道在应答前关闭")
		}
		var got wire.Addrs
		if err := wire.Decode(msg, &got); err != nil {
			return true, 0, err
		}
		return true, s.absorb(got), nil
	}
}

// absorb 把种子给的地址收进灰名单
func (s *Seed) absorb(got wire.Addrs) int {
	list := got.Addrs
	if len(list) > seedQueryMax {
		list = list[:seedQueryMax]
	}
	entries := make([]hoststore.Entry, 0, len(list))
	for _, ae := range list {
		parsed, err := types.ParseAddr(ae.Addr)
		if err != nil {
			log.Debug("忽略种子给出的非法地址", "addr", ae.Addr, "error", err)
			continue
		}
		var seen time.Time
		if ae.LastSeen > 0 {
			seen = time.Unix(ae.LastSeen, 0)
		}
		entries = append(entries, hoststore.Entry{Addr: parsed, LastSeen: seen})
	}
	return s.co.Hosts().InsertOrUpdate(types.TierGrey, entries...)
}

// finish 结算一轮收割
func (s *Seed) finish(reached, harvested int) error {
	if reached > 0 {
		log.Info("种子会话完成", "reached", reached, "harvested", harvested)
		return nil
	}
	if s.bootstrapEmpty() && len(s.co.Settings().Session.Peers) == 0 {
		return fmt.Errorf("%w: 主机表为空且未配置静态对端", ErrNoSeeds)
	}
	log.Warn("种子均不可达，依赖既有主机表或静态对端继续")
	return nil
}

// bootstrapEmpty 判断主机表是否没有任何可拨号条目
func (s *Seed) bootstrapEmpty() bool {
	for _, tier := range []types.Tier{types.TierGrey, types.TierWhite, types.TierGold, types.TierAnchor} {
		if s.co.Hosts().Len(tier) > 0 {
			return false
		}
	}
	return true
}
