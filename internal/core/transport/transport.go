package transport

import (
	"context"
	"net"

	"github.com/umbra-net/go-umbra/pkg/types"
)

// Transport 一种地址方案的传输实现
type Transport interface {
	// Scheme 返回该传输服务的地址方案
	Scheme() string

	// Dial 建立到 addr 的出站连接
	//
	// 实现返回原始错误即可，Registry.Dial 统一把失败
	// 归一化为 *ConnectError。
	Dial(ctx context.Context, addr types.Address) (net.Conn, error)

	// Listen 在 addr 上监听入站连接
	//
	// 仅拨出的传输（如 tor）返回 ErrListenUnsupported。
	Listen(addr types.Address) (net.Listener, error)

	// Close 关闭传输及其持有的监听器
	Close() error
}
