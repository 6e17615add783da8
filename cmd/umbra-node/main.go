// Package main 运行一个独立的 umbra 网络节点
//
// 节点从 JSON 配置文件装载参数，命令行标志可逐项覆盖。运行中
// SIGUSR1 触发一次状态快照输出，SIGINT/SIGTERM 触发优雅停止。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	umbra "github.com/umbra-net/go-umbra"
	"github.com/umbra-net/go-umbra/internal/util/logger"
)

// ════════════════════════════════════════════════════════════════════════════
//                              命令行参数
// ════════════════════════════════════════════════════════════════════════════

var (
	// 配置来源
	configPath = flag.String("config", "", "JSON 配置文件路径")

	// 网络参数（覆盖配置文件）
	listenFlag = flag.String("listen", "", "监听地址，逗号分隔")
	seedsFlag  = flag.String("seeds", "", "种子地址，逗号分隔")
	peersFlag  = flag.String("peers", "", "静态对端地址，逗号分隔")
	storePath  = flag.String("store", "", "主机表落盘路径")
	localnet   = flag.Bool("localnet", false, "本地网模式，允许回环与私网地址")

	// 日志与杂项
	logLevel    = flag.String("log-level", "info", "日志级别 (debug|info|warn|error)")
	showVersion = flag.Bool("version", false, "打印版本并退出")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(umbra.VersionInfo())
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

func run() error {
	applyLogLevel(*logLevel)

	node, err := umbra.New(buildOptions()...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := node.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("节点已启动  id=%s\n", node.ID())

	// SIGUSR1 输出状态快照，SIGINT/SIGTERM 优雅停止
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGUSR1 {
				dumpInfo(node)
				continue
			}
			fmt.Fprintln(os.Stderr, "收到退出信号，正在停止节点...")
			if err := node.Stop(); err != nil {
				fmt.Fprintln(os.Stderr, "停止节点出错:", err)
			}
			return
		}
	}()

	return node.Run(ctx)
}

// buildOptions 把配置文件与命令行标志折叠成选项序列
//
// 配置文件最先应用，标志在其后逐项覆盖。
func buildOptions() []umbra.Option {
	var opts []umbra.Option
	if *configPath != "" {
		opts = append(opts, umbra.WithConfigFile(*configPath))
	}
	if *listenFlag != "" {
		opts = append(opts, umbra.WithListenAddrs(splitList(*listenFlag)...))
	}
	if *seedsFlag != "" {
		opts = append(opts, umbra.WithSeeds(splitList(*seedsFlag)...))
	}
	if *peersFlag != "" {
		opts = append(opts, umbra.WithPeers(splitList(*peersFlag)...))
	}
	if *storePath != "" {
		opts = append(opts, umbra.WithStorePath(*storePath))
	}
	if *localnet {
		opts = append(opts, umbra.WithLocalnet())
	}
	return opts
}

// splitList 解析逗号分隔的地址列表
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyLogLevel 设置全局日志级别
func applyLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		logger.SetGlobalLevel(slog.LevelDebug)
	case "info":
		logger.SetGlobalLevel(slog.LevelInfo)
	case "warn":
		logger.SetGlobalLevel(slog.LevelWarn)
	case "error":
		logger.SetGlobalLevel(slog.LevelError)
	default:
		fmt.Fprintf(os.Stderr, "未知日志级别 %q，沿用 info\n", level)
	}
}

// dumpInfo 输出一份 JSON 状态快照
func dumpInfo(node *umbra.P2p) {
	data, err := json.MarshalIndent(node.GetInfo(), "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "序列化状态快照失败:", err)
		return
	}
	fmt.Println(string(data))
}
