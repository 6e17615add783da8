package hoststore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/umbra-net/go-umbra/pkg/types"
)

// snapshotVersion 主机表文件格式版本
const snapshotVersion = 1

// snapshot 持久化的主机表
type snapshot struct {
	Version int                        `json:"version"`
	Tiers   map[string][]snapshotEntry `json:"tiers"`
}

// snapshotEntry 持久化的单条主机记录
type snapshotEntry struct {
	Addr     string `json:"addr"`
	LastSeen int64  `json:"last_seen"`
}

// tierByName Tier.String() 的反查表
var tierByName = func() map[string]types.Tier {
	m := make(map[string]types.Tier)
	for _, tier := range types.AllTiers() {
		m[tier.String()] = tier
	}
	return m
}()

// Save 将分级表写入配置的文件
//
// 先在锁内取快照，再在锁外序列化并经临时文件 + 原子改名落盘，
// 崩溃时旧文件保持完整。未配置路径时直接返回。
func (s *Store) Save() error {
	s.mu.RLock()
	if s.path == "" {
		s.mu.RUnlock()
		return nil
	}
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}

	snap := snapshot{
		Version: snapshotVersion,
		Tiers:   make(map[string][]snapshotEntry, len(s.tiers)),
	}
	total := 0
	for tier, entries := range s.tiers {
		if len(entries) == 0 {
			continue
		}
		list := make([]snapshotEntry, 0, len(entries))
		for _, e := range entries {
			se := snapshotEntry{Addr: e.Addr.String()}
			// 0 表示从未联络成功
			if !e.LastSeen.IsZero() {
				se.LastSeen = e.LastSeen.Unix()
			}
			list = append(list, se)
		}
		snap.Tiers[tier.String()] = list
		total += len(list)
	}
	path := s.path
	s.mu.RUnlock()

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化主机表失败: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".hosts-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("写入主机表失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("替换主机表失败: %w", err)
	}

	log.Info("主机表已保存", "path", path, "entries", total)
	return nil
}

// Load 从配置的文件装载分级表
//
// 文件缺失视为空表；单条非法地址跳过并告警，不拖垮整表。
// 装载仍走常规并入路径，黑名单与本地地址过滤照常生效。
func (s *Store) Load() error {
	s.mu.RLock()
	path := s.path
	closed := s.closed
	s.mu.RUnlock()

	if path == "" {
		return nil
	}
	if closed {
		return ErrClosed
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("读取主机表失败: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("解析主机表失败: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("不支持的主机表版本: %d", snap.Version)
	}

	total := 0
	for name, list := range snap.Tiers {
		tier, ok := tierByName[name]
		if !ok {
			log.Warn("忽略未知分级", "tier", name)
			continue
		}
		entries := make([]Entry, 0, len(list))
		for _, se := range list {
			addr, err := types.ParseAddr(se.Addr)
			if err != nil {
				log.Warn("忽略非法地址", "addr", se.Addr, "error", err)
				continue
			}
			entry := Entry{Addr: addr}
			if se.LastSeen > 0 {
				entry.LastSeen = time.Unix(se.LastSeen, 0)
			}
			entries = append(entries, entry)
		}
		total += s.InsertOrUpdate(tier, entries...)
	}

	log.Info("主机表已装载", "path", path, "entries", total)
	return nil
}
