package umbra

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrAlreadyRunning 节点已在运行，Run 不可重入
	ErrAlreadyRunning = errors.New("node already running")

	// ErrNodeClosed 节点已停止
	//
	// 生命周期只向前走：停止后的节点不能再启动或运行，
	// 需要新建一个协调器。
	ErrNodeClosed = errors.New("node closed")
)
