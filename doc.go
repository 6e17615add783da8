// Package umbra 提供基于分级主机表的 P2P 网络引擎
//
// umbra 负责一个节点的全部网络机制：发现对端、维持连接、交换
// 消息。应用层协议（区块同步、交易广播等）作为外部协作者注册
// 到会话上，不属于本引擎。
//
// # 核心概念
//
// umbra 围绕四个核心概念构建：
//
//   - P2p: 节点总协调器，用户交互的主入口
//   - Host Store: 分级主机表（灰/白/金/锚），驱动出站选址
//   - Session: 连接获取策略（种子、手动、入站、出站）
//   - Channel: 一条活跃连接上的消息通道
//
// # 快速开始
//
//	import "github.com/umbra-net/go-umbra"
//
//	// 1. 创建节点
//	node, err := umbra.New(
//	    umbra.WithListenAddrs("tcp://0.0.0.0:9600"),
//	    umbra.WithSeeds("dnsseed://seed.example.org:9600"),
//	    umbra.WithStorePath("hosts.json"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// 2. 启动：装载主机表、完成种子自举
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// 3. 注册应用协议（可选）
//	node.RegisterProtocol(types.SessionInbound|types.SessionOutbound, newGossip)
//
//	// 4. 运行：拉起手动/入站/出站会话与精炼器，阻塞到停止
//	go func() {
//	    <-sigCh
//	    node.Stop()
//	}()
//	return node.Run(ctx)
//
// # 生命周期
//
// 节点状态只向前推进，Run 不可重入：
//
//	Open ──Start──▶ Started ──Run──▶ Running ──Stop──▶ Stopped
//
// Start 阶段内部组件启动并完成种子自举，此时不绑定监听；Run
// 阶段运行期会话全部拉起。Stop 幂等，按启动的逆序收场并把主机
// 表原子落盘。
//
// # 文件组织
//
// 本包按功能领域组织代码：
//
//	umbra/
//	├── umbra.go        # 版本信息、公共类型别名
//	├── node.go         # P2p 结构、New()、状态与组件访问器
//	├── lifecycle.go    # Start、Run、Stop
//	├── api.go          # 广播、协议注册、状态快照
//	├── observe.go      # 事件订阅、会话诊断开关
//	├── options.go      # WithXxx 配置选项
//	├── fx.go           # 内部组件装配
//	└── errors.go       # 错误定义
//
// 内部实现位于 internal/core（传输、通道、会话、主机存储、
// 精炼器、协议），公共基础类型位于 pkg/types，统一配置位于
// config。
//
// # 版本
//
// 当前版本: v0.1.0
//
// 更多信息请访问: https://github.com/umbra-net/go-umbra
package umbra
