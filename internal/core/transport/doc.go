// Package transport 实现传输层抽象
//
// Transport 抽象不同的地址方案（tcp、tcp+tls、tor、unix、quic、ws），
// 每种方案实现同样的两个操作：拨出一条连接，或监听入站连接。
// 所有方案都收敛到 net.Conn / net.Listener，上层对方案无感。
//
// # 核心职责
//
//   - 按配置构建允许的传输并注册到 Registry
//   - 拨号路由：目标方案直达，或在混用开启时经兼容方案承载
//   - 连接失败归一化为 ConnectError（拒绝/不可达/超时/代理畸形）
//
// # 混用（Mixing）
//
// tor 代理可以承载普通 tcp 目标，tor+tls 承载 tcp+tls：
// 加密属性从不降级。混用关闭时，方案不在允许集合内的地址
// 一律返回 ErrSchemeNotAllowed。
//
// # 重试
//
// 传输自身从不重试，重试策略属于调用它的会话。
package transport
