package protocol

import (
	"context"
	"time"

	"github.com/umbra-net/go-umbra/internal/core/channel"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/core/wire"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// maxAddrBatch 单条 addrs 消息的条目上限，请求与通告双向适用
const maxAddrBatch = 1000

// Addrs 地址交换处理器：应答 getaddrs 并吸收对端通告的地址
//
// 应答取自主机存储的可通告集合，按请求方过滤方案，内网地址由
// 存储按配置过滤；收到的地址一律进灰名单，等精炼器探测后晋升。
type Addrs struct {
	ch     *channel.Channel
	env    Env
	reqSub *channel.Subscription
	gotSub *channel.Subscription
}

// NewAddrs 构造地址交换处理器，签名满足 Factory
//
// 订阅在构造期建立，理由同 NewPing。
func NewAddrs(ch *channel.Channel, env Env) Handler {
	return &Addrs{
		ch:     ch,
		env:    env,
		reqSub: ch.Subscribe(wire.CmdGetAddrs),
		gotSub: ch.Subscribe(wire.CmdAddrs),
	}
}

// Run 实现 Handler
func (a *Addrs) Run(ctx context.Context) {
	reqSub := a.reqSub
	defer reqSub.Cancel()
	gotSub := a.gotSub
	defer gotSub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.ch.Stopping():
			return
		case msg, ok := <-reqSub.C():
			if !ok {
				return
			}
			a.answer(ctx, msg)
		case msg, ok := <-gotSub.C():
			if !ok {
				return
			}
			a.absorb(msg)
		}
	}
}

// answer 应答一条 getaddrs 请求
func (a *Addrs) answer(ctx context.Context, msg wire.Message) {
	var req wire.GetAddrs
	if err := wire.Decode(msg, &req); err != nil {
		log.Debug("忽略非法 getaddrs", "addr", a.ch.Addr(), "error", err)
		return
	}

	// 0 表示交给本端决定，超限一律压到上限
	max := int(req.Max)
	if max <= 0 || max > maxAddrBatch {
		max = maxAddrBatch
	}

	entries := a.env.Store.Advertisable(max, req.Schemes)
	reply := wire.Addrs{Addrs: make([]wire.AddrEntry, 0, len(entries))}
	for _, e := range entries {
		var seen int64
		if !e.LastSeen.IsZero() {
			seen = e.LastSeen.Unix()
		}
		reply.Addrs = append(reply.Addrs, wire.AddrEntry{Addr: e.Addr.String(), LastSeen: seen})
	}

	out, err := wire.Encode(wire.CmdAddrs, reply)
	if err != nil {
		return
	}
	if err := a.ch.Send(ctx, out); err != nil {
		return
	}
	log.Debug("已应答 getaddrs", "addr", a.ch.Addr(), "count", len(reply.Addrs))
}

// absorb 把对端通告的地址收进灰名单
func (a *Addrs) absorb(msg wire.Message) {
	var got wire.Addrs
	if err := wire.Decode(msg, &got); err != nil {
		log.Debug("忽略非法 addrs", "addr", a.ch.Addr(), "error", err)
		return
	}

	list := got.Addrs
	if len(list) > maxAddrBatch {
		log.Debug("addrs 超出单条上限，截断", "addr", a.ch.Addr(), "got", len(list))
		list = list[:maxAddrBatch]
	}

	entries := make([]hoststore.Entry, 0, len(list))
	for _, ae := range list {
		parsed, err := types.ParseAddr(ae.Addr)
		if err != nil {
			log.Debug("忽略对端通告的非法地址", "peer", a.ch.Addr(), "addr", ae.Addr, "error", err)
			continue
		}
		var seen time.Time
		if ae.LastSeen > 0 {
			seen = time.Unix(ae.LastSeen, 0)
		}
		entries = append(entries, hoststore.Entry{Addr: parsed, LastSeen: seen})
	}

	if n := a.env.Store.InsertOrUpdate(types.TierGrey, entries...); n > 0 {
		log.Debug("对端通告地址已入灰名单", "peer", a.ch.Addr(), "accepted", n, "offered", len(list))
	}
}
