// Package types 定义 umbra 的公共基础类型
//
// 这是整个系统的最底层包，不依赖任何其他 umbra 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
package types

import (
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"
)

// ============================================================================
//                              节点标识
// ============================================================================

// GenerateID 生成随机节点标识
//
// 节点标识是不透明字符串，在 version 握手中交换。
// 配置未指定标识时由此生成。
func GenerateID() string {
	return uuid.NewString()
}

// ShortID 返回节点标识的简短表示
//
// 对任意标识字符串做 BLAKE3 哈希后取前 8 字节 Base58 编码，
// 用于日志和状态快照中的简短展示。
func ShortID(id string) string {
	if id == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(id))
	return base58.Encode(sum[:8])
}
