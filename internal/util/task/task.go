// Package task 提供基于 goprocess 的后台任务生命周期管理
//
// Group 将一组 goroutine 纳入同一个可关闭的进程树：
// Close 会触发所有任务的 ctx 取消并等待它们退出。
// Detach 则创建完全独立的任务，只受自身超时约束，
// 用于必须运行到结束的探测类工作。
package task

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jbenet/goprocess"
)

// Group 一组可统一关闭的后台任务
type Group struct {
	proc goprocess.Process
}

// NewGroup 创建新的任务组
func NewGroup() *Group {
	return &Group{proc: goprocess.WithParent(goprocess.Background())}
}

// Child 创建子任务组
//
// 父组关闭时子组随之关闭；父组的 Close 会等待子组退出。
func (g *Group) Child() *Group {
	return &Group{proc: goprocess.WithParent(g.proc)}
}

// Go 启动一个受组管理的任务
//
// 组关闭时 fn 收到的 ctx 被取消；Close 等待 fn 返回。
func (g *Group) Go(fn func(ctx context.Context)) {
	g.proc.Go(func(p goprocess.Process) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-p.Closing():
				cancel()
			case <-done:
			}
		}()

		fn(ctx)
	})
}

// Closing 返回组开始关闭时关闭的通道
func (g *Group) Closing() <-chan struct{} {
	return g.proc.Closing()
}

// Close 关闭任务组并等待所有任务退出
//
// 可重复调用，后续调用返回首次关闭的结果。
func (g *Group) Close() error {
	return g.proc.Close()
}

// Detach 启动一个独立任务
//
// 任务不属于任何组，仅受 timeout 约束运行到结束。
// 返回的 Process 可用于等待任务完成（<-p.Closed()）。
func Detach(timeout time.Duration, fn func(ctx context.Context)) goprocess.Process {
	return goprocess.Go(func(goprocess.Process) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	})
}

// Sleep 按给定时钟休眠 d，ctx 取消时提前返回
//
// 返回 true 表示休眠完成，false 表示被取消。
// d <= 0 时立即返回 ctx 的存活状态。
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
