// Package logger 提供统一的日志接口
//
// 支持通过环境变量配置日志级别：
//   - UMBRA_LOG_LEVEL: 设置日志级别，支持按子系统配置
//     格式: 子系统=级别,子系统=级别,默认级别
//     示例: refinery=debug,transport=warn,info
//   - UMBRA_LOG_FORMAT: 日志格式 (text 或 json)
package logger

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelForSubsystem 获取指定子系统的日志级别
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

// 配置解析一次后缓存，进程内所有子系统共享
var (
	configCache *Config
	configOnce  sync.Once
)

// ConfigFromEnv 从环境变量解析配置
//
// 环境变量:
//   - UMBRA_LOG_LEVEL: 日志级别配置
//     格式: 子系统=级别,子系统=级别,默认级别
//     示例: refinery=debug,transport=warn,info
//   - UMBRA_LOG_FORMAT: text 或 json
//   - UMBRA_LOG_ADD_SOURCE: true 或 false
func ConfigFromEnv() *Config {
	configOnce.Do(func() {
		cfg := &Config{
			DefaultLevel:    slog.LevelInfo,
			SubsystemLevels: make(map[string]slog.Level),
		}

		if spec := os.Getenv("UMBRA_LOG_LEVEL"); spec != "" {
			parseLevelSpec(cfg, spec)
		}
		if strings.EqualFold(os.Getenv("UMBRA_LOG_FORMAT"), "json") {
			cfg.Format = FormatJSON
		}
		if v := os.Getenv("UMBRA_LOG_ADD_SOURCE"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				cfg.AddSource = b
			}
		}

		configCache = cfg
	})
	return configCache
}

// parseLevelSpec 解析级别配置串
//
// 逗号分隔的条目：带等号的是 "子系统=级别"，不带的是默认级别。
// 识别不了的级别名原样跳过，不影响其余条目。
func parseLevelSpec(cfg *Config, spec string) {
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		subsystem, levelName, scoped := strings.Cut(entry, "=")
		if !scoped {
			if level, ok := parseLevel(entry); ok {
				cfg.DefaultLevel = level
			}
			continue
		}
		if level, ok := parseLevel(strings.TrimSpace(levelName)); ok {
			cfg.SubsystemLevels[strings.TrimSpace(subsystem)] = level
		}
	}
}

// parseLevel 解析日志级别名称
func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ResetConfig 重置配置缓存（仅用于测试）
func ResetConfig() {
	configOnce = sync.Once{}
	configCache = nil
}
