package transport

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/transport/quic"
	"github.com/umbra-net/go-umbra/internal/core/transport/tcp"
	"github.com/umbra-net/go-umbra/internal/core/transport/tor"
	unixsock "github.com/umbra-net/go-umbra/internal/core/transport/unix"
	"github.com/umbra-net/go-umbra/internal/core/transport/ws"
	"github.com/umbra-net/go-umbra/internal/util/logger"
	"github.com/umbra-net/go-umbra/pkg/types"
)

var log = logger.Logger("core/transport")

// New 依据配置构建传输注册表
//
// 只构建允许集合内的方案；tor/tor+tls 共用配置里的代理地址。
func New(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry(cfg.Transport.AllowedSchemes, cfg.Transport.Mixing)

	for _, scheme := range cfg.Transport.AllowedSchemes {
		var (
			t   Transport
			err error
		)
		switch scheme {
		case types.SchemeTCP:
			t, err = tcp.New(false)
		case types.SchemeTCPTLS:
			t, err = tcp.New(true)
		case types.SchemeTor:
			t, err = tor.New(cfg.Transport.TorProxy, false)
		case types.SchemeTorTLS:
			t, err = tor.New(cfg.Transport.TorProxy, true)
		case types.SchemeUnix:
			t = unixsock.New()
		case types.SchemeQUIC:
			t, err = quic.New(quic.Config{
				MaxIdleTimeout:  cfg.Transport.QUIC.MaxIdleTimeout.Duration(),
				KeepAlivePeriod: cfg.Transport.QUIC.KeepAlivePeriod.Duration(),
			})
		case types.SchemeWS:
			t = ws.New(ws.Config{
				HandshakeTimeout: cfg.Transport.WS.HandshakeTimeout.Duration(),
				ReadBufferSize:   cfg.Transport.WS.ReadBufferSize,
				WriteBufferSize:  cfg.Transport.WS.WriteBufferSize,
			})
		default:
			return nil, fmt.Errorf("未知的传输方案: %s", scheme)
		}
		if err != nil {
			return nil, fmt.Errorf("构建 %s 传输失败: %w", scheme, err)
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
		log.Debug("传输已注册", "scheme", scheme)
	}

	log.Info("传输注册表就绪",
		"schemes", reg.Schemes(),
		"mixing", cfg.Transport.Mixing)
	return reg, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(New),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, reg *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return reg.Close()
		},
	})
}
