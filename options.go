package umbra

import (
	"errors"

	"github.com/benbjohnson/clock"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/session"
)

// Option 节点构建选项
type Option func(*options) error

// options 内部选项结构
//
// 绝大多数选项直接改写统一配置；时钟与解析器是纯注入点，
// 不进配置文件。
type options struct {
	cfg     *config.Config
	clk     clock.Clock
	resolve session.ResolveFunc
}

func newOptions() *options {
	return &options{
		cfg: config.Default(),
		clk: clock.New(),
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置
//
// 替换默认配置整体；与其他配置选项叠加时以调用顺序为准，
// 通常放在最前面。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("配置不能为空")
		}
		o.cfg = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 配置文件装载
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.cfg = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              节点与传输
// ════════════════════════════════════════════════════════════════════════════

// WithNodeID 指定节点标识
//
// 不指定时启动随机生成。
func WithNodeID(id string) Option {
	return func(o *options) error {
		o.cfg.Node.ID = id
		return nil
	}
}

// WithExternalAddrs 指定对外通告的本节点地址
func WithExternalAddrs(addrs ...string) Option {
	return func(o *options) error {
		o.cfg.Node.ExternalAddrs = addrs
		return nil
	}
}

// WithLocalnet 启用本地网模式
//
// 允许回环与私网地址进入主机表，用于本机或内网组网。
func WithLocalnet() Option {
	return func(o *options) error {
		o.cfg.Node.Localnet = true
		return nil
	}
}

// WithAllowedSchemes 限定允许使用的传输方案
func WithAllowedSchemes(schemes ...string) Option {
	return func(o *options) error {
		o.cfg.Transport.AllowedSchemes = schemes
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              会话与主机表
// ════════════════════════════════════════════════════════════════════════════

// WithListenAddrs 指定入站监听地址
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		o.cfg.Session.ListenAddrs = addrs
		return nil
	}
}

// WithSeeds 指定种子地址
func WithSeeds(seeds ...string) Option {
	return func(o *options) error {
		o.cfg.Session.Seeds = seeds
		return nil
	}
}

// WithPeers 指定静态对端地址，由手动会话长期维持
func WithPeers(peers ...string) Option {
	return func(o *options) error {
		o.cfg.Session.Peers = peers
		return nil
	}
}

// WithOutboundConnections 指定出站槽位数量
func WithOutboundConnections(n int) Option {
	return func(o *options) error {
		o.cfg.Session.OutboundConnections = n
		return nil
	}
}

// WithInboundConnections 指定入站连接上限
func WithInboundConnections(n int) Option {
	return func(o *options) error {
		o.cfg.Session.InboundConnections = n
		return nil
	}
}

// WithStorePath 指定主机表落盘路径
//
// 为空时主机表只存在于内存，停止时不落盘。
func WithStorePath(path string) Option {
	return func(o *options) error {
		o.cfg.Hosts.StorePath = path
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              注入点
// ════════════════════════════════════════════════════════════════════════════

// WithClock 注入时钟，主要用于测试
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("时钟不能为空")
		}
		o.clk = clk
		return nil
	}
}

// WithResolver 注入种子域名解析器
//
// 不指定时按配置的 seed_resolver 走 DNS 查询。
func WithResolver(fn ResolveFunc) Option {
	return func(o *options) error {
		o.resolve = fn
		return nil
	}
}
