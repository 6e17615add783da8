// Package wire 定义节点间的封包格式与消息负载
//
// 一条消息 = 长度前缀的命令字符串 + 长度前缀的 JSON 负载，
// 长度均为 uint32 大端。负载受 MaxPayloadLength 上限保护，
// 超限直接拒收，防止对端诱导内存耗尽。内建命令的负载结构见
// messages.go；未知命令不在此层解释，原样交给订阅者。
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxPayloadLength 单条消息负载上限 (4 MB)
	MaxPayloadLength uint32 = 4 * 1024 * 1024

	// MaxCommandLength 命令字符串长度上限
	MaxCommandLength uint32 = 64
)

var (
	// ErrPayloadTooLarge 负载超过上限
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrMalformedFrame 封包格式非法
	ErrMalformedFrame = errors.New("malformed frame")
)

// Message 一条线上消息：命令 + JSON 负载
type Message struct {
	Command string
	Body    []byte
}

// WriteMessage 将一条消息写入 w
func WriteMessage(w io.Writer, msg Message) error {
	if msg.Command == "" || uint32(len(msg.Command)) > MaxCommandLength {
		return fmt.Errorf("%w: 非法命令 %q", ErrMalformedFrame, msg.Command)
	}
	if len(msg.Body) > int(MaxPayloadLength) {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(msg.Body), MaxPayloadLength)
	}

	if err := writeString(w, msg.Command); err != nil {
		return err
	}
	return writeBytes(w, msg.Body)
}

// ReadMessage 从 r 读取一条消息
//
// 对端在消息边界正常关闭时返回 io.EOF。长度越界或命令非法
// 返回 ErrMalformedFrame / ErrPayloadTooLarge，调用方应据此
// 终止通道。
func ReadMessage(r io.Reader) (Message, error) {
	command, err := readCommand(r)
	if err != nil {
		return Message{}, err
	}

	body, err := readBytes(r)
	if err != nil {
		return Message{}, err
	}

	return Message{Command: command, Body: body}, nil
}

// readCommand 读取命令字符串，命令长度为 1..MaxCommandLength
func readCommand(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}

	if length == 0 || length > MaxCommandLength {
		return "", fmt.Errorf("%w: 命令长度 %d", ErrMalformedFrame, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

// writeBytes 写入长度前缀的字节串
func writeBytes(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// readBytes 读取长度前缀的字节串，带上限保护
func readBytes(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length == 0 {
		return nil, nil
	}

	// 先查长度再分配，防止内存耗尽攻击
	if length > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, length, MaxPayloadLength)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// writeString 写入长度前缀的字符串
func writeString(w io.Writer, str string) error {
	return writeBytes(w, []byte(str))
}
