// Package types 定义 umbra 的公共基础类型
//
// 本文件定义事件相关类型。
package types

import (
	"time"
)

// ============================================================================
//                              通道事件
// ============================================================================

// ChannelEvent 通道连接/断开事件
//
// 由通道注册表在通道注册和移除时发出。
type ChannelEvent struct {
	// Addr 对端地址
	Addr Address

	// Direction 连接方向
	Direction Direction

	// Connected true 表示连接建立，false 表示断开
	Connected bool

	// Err 断开原因（正常关闭时为 nil）
	Err error

	// Time 事件时间
	Time time.Time
}

// ============================================================================
//                              会话诊断事件
// ============================================================================

// SessionEvent 会话诊断事件
//
// 仅在对应会话开启诊断时发出，用于观测会话内部状态变化。
type SessionEvent struct {
	// Session 发出事件的会话类型
	Session SessionKind

	// Info 事件描述
	Info string

	// Time 事件时间
	Time time.Time
}
