// Package types 定义 umbra 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 umbra 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - address.go - Address 地址类型与方案常量
//   - enums.go   - Tier, Direction, SessionKind, SlotState
//   - events.go  - ChannelEvent, SessionEvent
//   - ids.go     - 节点标识生成与简短展示
package types
