package wire

import (
	"encoding/json"
	"fmt"
)

// 内建命令
const (
	CmdVersion  = "version"
	CmdVerack   = "verack"
	CmdPing     = "ping"
	CmdPong     = "pong"
	CmdGetAddrs = "getaddrs"
	CmdAddrs    = "addrs"
)

// Version 握手第一步：自报协议版本、身份与对外地址
//
// 字段名即线上 JSON 键，两端必须按同一模式编解码。
type Version struct {
	ProtocolVersion uint32   `json:"protocol_version"`
	AppVersion      string   `json:"app_version"`
	NodeID          string   `json:"node_id"`
	Timestamp       int64    `json:"timestamp"`
	ExternalAddrs   []string `json:"external_addrs,omitempty"`
}

// Verack 握手第二步：应答方的身份信息，字段与 Version 相同
type Verack Version

// Ping 心跳探测
type Ping struct {
	Nonce uint64 `json:"nonce"`
}

// Pong 心跳应答，nonce 原样回显
type Pong struct {
	Nonce uint64 `json:"nonce"`
}

// GetAddrs 请求对端已知的主机地址
type GetAddrs struct {
	Max     uint32   `json:"max"`
	Schemes []string `json:"schemes,omitempty"`
}

// AddrEntry 一条带最后在线时间的主机地址
type AddrEntry struct {
	Addr     string `json:"addr"`
	LastSeen int64  `json:"last_seen"`
}

// Addrs 对 GetAddrs 的应答
type Addrs struct {
	Addrs []AddrEntry `json:"addrs"`
}

// Encode 将负载编码为指定命令的消息
func Encode(command string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("编码 %s 负载失败: %w", command, err)
	}
	return Message{Command: command, Body: body}, nil
}

// Decode 将消息负载解码到 payload
//
// 内建命令负载解码失败视为协议错误，归入 ErrMalformedFrame。
func Decode(msg Message, payload any) error {
	if err := json.Unmarshal(msg.Body, payload); err != nil {
		return fmt.Errorf("%w: 解码 %s 负载失败: %v", ErrMalformedFrame, msg.Command, err)
	}
	return nil
}
