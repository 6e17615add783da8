// Package identity 管理本节点在握手中通告的身份
//
// 节点标识是不透明字符串，不承担密码学职责：它在 version 握手中
// 原样交换，用于日志关联与自连检测。配置未提供标识时在启动时
// 随机生成一个。
package identity

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/internal/core/wire"
	"github.com/umbra-net/go-umbra/internal/util/logger"
	"github.com/umbra-net/go-umbra/pkg/types"
)

var log = logger.Logger("core/identity")

// nodeIDBytes 随机节点标识的熵长度
const nodeIDBytes = 16

// Identity 本节点身份
type Identity struct {
	// NodeID 节点标识
	NodeID string

	// AppVersion 应用版本字符串
	AppVersion string

	// ProtocolVersion 协议版本
	ProtocolVersion uint32

	// ExternalAddrs 对外通告的本节点地址
	ExternalAddrs []types.Address
}

// FromConfig 从统一配置构建身份
//
// 配置的 ID 为空时随机生成；非法的通告地址属于配置错误。
func FromConfig(cfg *config.Config) (*Identity, error) {
	id := cfg.Node.ID
	if id == "" {
		generated, err := GenerateNodeID()
		if err != nil {
			return nil, err
		}
		id = generated
		log.Info("节点标识已生成", "id", id)
	}

	addrs, err := types.ParseAddrs(cfg.Node.ExternalAddrs)
	if err != nil {
		return nil, fmt.Errorf("非法的通告地址: %w", err)
	}

	return &Identity{
		NodeID:          id,
		AppVersion:      cfg.Node.AppVersion,
		ProtocolVersion: cfg.Node.ProtocolVersion,
		ExternalAddrs:   addrs,
	}, nil
}

// GenerateNodeID 生成随机节点标识
func GenerateNodeID() (string, error) {
	buf := make([]byte, nodeIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成节点标识失败: %w", err)
	}
	return base58.Encode(buf), nil
}

// Version 构建握手通告的 version 载荷模板
//
// Timestamp 留空，由通道在每次握手时填充。
func (id *Identity) Version() wire.Version {
	addrs := make([]string, 0, len(id.ExternalAddrs))
	for _, a := range id.ExternalAddrs {
		addrs = append(addrs, a.String())
	}
	return wire.Version{
		ProtocolVersion: id.ProtocolVersion,
		AppVersion:      id.AppVersion,
		NodeID:          id.NodeID,
		ExternalAddrs:   addrs,
	}
}
