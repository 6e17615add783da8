package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/umbra-net/go-umbra/internal/core/wire"
	"github.com/umbra-net/go-umbra/pkg/types"
)

// Info 握手得到的对端信息
type Info struct {
	// NodeID 对端节点标识
	NodeID string

	// AppVersion 对端应用版本字符串
	AppVersion string

	// ProtocolVersion 对端协议版本
	ProtocolVersion uint32

	// ExternalAddrs 对端通告的自身地址
	ExternalAddrs []types.Address
}

// PerformHandshake 执行 version/verack 握手
//
// 拨号方先发 version 等 verack，监听方等 version 再回 verack；
// 双方由此获知对端身份与通告地址。整个交换受握手时限约束，
// 失败时由调用方停掉通道，不注册。
//
// 连接期限用真实时钟（I/O 期限），报文时间戳用可注入时钟。
func (c *Channel) PerformHandshake(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Time{}
	if c.handshakeTimeout > 0 {
		deadline = time.Now().Add(c.handshakeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if !deadline.IsZero() {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("设置握手期限失败: %w", err)
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	local := c.localVersion
	local.Timestamp = c.clk.Now().Unix()

	if c.Direction() == types.DirOutbound {
		return c.handshakeOutbound(local)
	}
	return c.handshakeInbound(local)
}

// handshakeOutbound 拨号方：发 version，等 verack
func (c *Channel) handshakeOutbound(local wire.Version) error {
	msg, err := wire.Encode(wire.CmdVersion, local)
	if err != nil {
		return err
	}
	if err := wire.WriteMessage(c.conn, msg); err != nil {
		return fmt.Errorf("发送 version 失败: %w", err)
	}

	reply, err := wire.ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("等待 verack 失败: %w", err)
	}
	if reply.Command != wire.CmdVerack {
		return fmt.Errorf("%w: 期待 verack，收到 %q", ErrUnexpectedMessage, reply.Command)
	}
	var ack wire.Verack
	if err := wire.Decode(reply, &ack); err != nil {
		return err
	}
	return c.acceptRemote(local, wire.Version(ack))
}

// handshakeInbound 监听方：等 version，回 verack
func (c *Channel) handshakeInbound(local wire.Version) error {
	first, err := wire.ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("等待 version 失败: %w", err)
	}
	if first.Command != wire.CmdVersion {
		return fmt.Errorf("%w: 期待 version，收到 %q", ErrUnexpectedMessage, first.Command)
	}
	var ver wire.Version
	if err := wire.Decode(first, &ver); err != nil {
		return err
	}
	if err := c.acceptRemote(local, ver); err != nil {
		return err
	}

	msg, err := wire.Encode(wire.CmdVerack, wire.Verack(local))
	if err != nil {
		return err
	}
	if err := wire.WriteMessage(c.conn, msg); err != nil {
		return fmt.Errorf("发送 verack 失败: %w", err)
	}
	return nil
}

// acceptRemote 校验对端信息并记录
func (c *Channel) acceptRemote(local, remote wire.Version) error {
	if remote.ProtocolVersion != local.ProtocolVersion {
		return fmt.Errorf("%w: 本端 %d，对端 %d",
			ErrProtocolMismatch, local.ProtocolVersion, remote.ProtocolVersion)
	}
	if remote.NodeID != "" && remote.NodeID == local.NodeID {
		return ErrSelfConnection
	}

	info := Info{
		NodeID:          remote.NodeID,
		AppVersion:      remote.AppVersion,
		ProtocolVersion: remote.ProtocolVersion,
	}
	for _, raw := range remote.ExternalAddrs {
		addr, err := types.ParseAddr(raw)
		if err != nil {
			log.Debug("忽略对端通告的非法地址", "addr", raw, "error", err)
			continue
		}
		info.ExternalAddrs = append(info.ExternalAddrs, addr)
	}

	c.remoteMu.Lock()
	c.remote = info
	c.remoteMu.Unlock()

	log.Debug("握手完成",
		"addr", c.addr,
		"node", info.NodeID,
		"app", info.AppVersion,
		"direction", c.Direction())
	return nil
}
