package channel

import "errors"

var (
	// ErrChannelClosed 通道已停止
	ErrChannelClosed = errors.New("channel closed")

	// ErrProtocolMismatch 协议版本不兼容
	ErrProtocolMismatch = errors.New("incompatible protocol version")

	// ErrSelfConnection 连到了自己
	ErrSelfConnection = errors.New("connection to self")

	// ErrUnexpectedMessage 握手期间收到非预期命令
	ErrUnexpectedMessage = errors.New("unexpected handshake message")

	// ErrDuplicateChannel 地址已有注册的通道
	ErrDuplicateChannel = errors.New("channel already registered for address")
)
