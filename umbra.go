package umbra

import (
	"github.com/umbra-net/go-umbra/internal/core/channel"
	"github.com/umbra-net/go-umbra/internal/core/hoststore"
	"github.com/umbra-net/go-umbra/internal/core/protocol"
	"github.com/umbra-net/go-umbra/internal/core/session"
	"github.com/umbra-net/go-umbra/internal/core/wire"
)

// ════════════════════════════════════════════════════════════════════════════
//                              版本信息
// ════════════════════════════════════════════════════════════════════════════

// Version 当前版本
const Version = "v0.1.0"

// BuildInfo 构建信息（通过 ldflags 注入）
var (
	// GitCommit Git 提交哈希
	GitCommit string

	// BuildDate 构建日期
	BuildDate string
)

// VersionInfo 返回完整版本信息字符串
func VersionInfo() string {
	info := "umbra " + Version
	if GitCommit != "" {
		info += " (" + GitCommit[:min(8, len(GitCommit))] + ")"
	}
	if BuildDate != "" {
		info += " built " + BuildDate
	}
	return info
}

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// 协议扩展与组件访问会碰到内部包的类型，这里给出根包别名，
// 外部调用方不必也不能直接导入 internal。

type (
	// Channel 一条活跃连接，协议处理器的读写对象
	Channel = channel.Channel

	// ChannelRegistry 已连接通道注册表
	ChannelRegistry = channel.Registry

	// Message 通道上传输的一条消息
	Message = wire.Message

	// Subscription 通道上某个命令的消息订阅
	Subscription = channel.Subscription

	// HostStore 分级主机存储
	HostStore = hoststore.Store

	// ProtocolHandler 绑定在单条通道上的协议实例
	ProtocolHandler = protocol.Handler

	// ProtocolEnv 暴露给协议处理器的宿主切面
	ProtocolEnv = protocol.Env

	// ProtocolFactory 为一条通道实例化处理器
	ProtocolFactory = protocol.Factory

	// ResolveFunc 种子域名解析器
	ResolveFunc = session.ResolveFunc
)
