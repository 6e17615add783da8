package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"

	"github.com/umbra-net/go-umbra/pkg/types"
)

// ResolveFunc 把 DNS 种子主机名解析成 IP 列表
//
// 默认实现查询 A/AAAA 记录；测试通过注入替身绕开真实 DNS。
type ResolveFunc func(ctx context.Context, host string) ([]net.IP, error)

// newResolver 构造基于 miekg/dns 的解析器
//
// server 形如 "ip:port"，为空时读系统解析配置。
func newResolver(server string, timeout time.Duration) ResolveFunc {
	return func(ctx context.Context, host string) ([]net.IP, error) {
		srv := server
		if srv == "" {
			conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
			if err != nil {
				return nil, fmt.Errorf("读取系统 DNS 配置失败: %w", err)
			}
			if len(conf.Servers) == 0 {
				return nil, errors.New("系统 DNS 配置没有可用服务器")
			}
			srv = net.JoinHostPort(conf.Servers[0], conf.Port)
		}

		client := &dns.Client{Timeout: timeout}
		var (
			ips     []net.IP
			lastErr error
		)
		for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
			msg := new(dns.Msg)
			msg.SetQuestion(dns.Fqdn(host), qtype)
			in, _, err := client.ExchangeContext(ctx, msg, srv)
			if err != nil {
				lastErr = err
				continue
			}
			for _, rr := range in.Answer {
				switch rec := rr.(type) {
				case *dns.A:
					ips = append(ips, rec.A)
				case *dns.AAAA:
					ips = append(ips, rec.AAAA)
				}
			}
		}
		if len(ips) == 0 {
			if lastErr != nil {
				return nil, fmt.Errorf("解析 %s 失败: %w", host, lastErr)
			}
			return nil, fmt.Errorf("域名 %s 没有 A/AAAA 记录", host)
		}
		return ips, nil
	}
}

// expandSeeds 把配置的种子地址展开成可拨号地址
//
// dnsseed:// 条目解析成一组 tcp 地址（沿用种子端口），其余方案
// 原样保留；解析失败只告警。
func expandSeeds(ctx context.Context, seeds []types.Address, resolve ResolveFunc) []types.Address {
	out := make([]types.Address, 0, len(seeds))
	for _, seed := range seeds {
		if seed.Scheme() != types.SchemeDNSSeed {
			out = append(out, seed)
			continue
		}

		ips, err := resolve(ctx, seed.Host())
		if err != nil {
			log.Warn("DNS 种子解析失败", "seed", seed, "error", err)
			continue
		}
		port := strconv.Itoa(int(seed.Port()))
		for _, ip := range ips {
			addr, err := types.ParseAddr("tcp://" + net.JoinHostPort(ip.String(), port))
			if err != nil {
				log.Debug("丢弃无法成地址的解析结果", "seed", seed, "ip", ip, "error", err)
				continue
			}
			out = append(out, addr)
		}
		log.Debug("DNS 种子已展开", "seed", seed, "addrs", len(ips))
	}
	return out
}
