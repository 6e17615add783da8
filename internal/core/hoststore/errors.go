package hoststore

import "errors"

var (
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("host store closed")

	// ErrNotFound 地址不在指定分级中
	ErrNotFound = errors.New("address not found in tier")

	// ErrUnknownTier 引用了不存在的分级
	ErrUnknownTier = errors.New("unknown tier")
)
