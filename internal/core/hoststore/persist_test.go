package hoststore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umbra-net/go-umbra/pkg/types"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")

	src := newStore(t, func(c *Config) { c.Path = path })
	seen := time.Unix(1700000000, 0)
	src.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.1:9595"), LastSeen: seen})
	src.InsertOrUpdate(types.TierWhite, Entry{Addr: addr(t, "ws://10.0.0.2:9595"), LastSeen: seen})
	src.InsertOrUpdate(types.TierGold, Entry{Addr: addr(t, "tcp://10.0.0.3:9595"), LastSeen: seen})
	src.InsertOrUpdate(types.TierAnchor, Entry{Addr: addr(t, "tcp://10.0.0.4:9595")})
	src.InsertOrUpdate(types.TierBlack, Entry{Addr: addr(t, "tcp://10.0.0.5:9595")})

	require.NoError(t, src.Save())

	dst := newStore(t, func(c *Config) { c.Path = path })
	require.NoError(t, dst.Load())

	assert.Equal(t, src.Counts(), dst.Counts())

	tier, ok := dst.TierOf(addr(t, "ws://10.0.0.2:9595"))
	require.True(t, ok)
	assert.Equal(t, types.TierWhite, tier)

	e, _, ok := dst.FetchRandom(types.TierGrey, nil)
	require.True(t, ok)
	assert.Equal(t, seen, e.LastSeen)

	// 从未联络过的条目时间戳保持零值
	e, _, ok = dst.FetchRandom(types.TierAnchor, nil)
	require.True(t, ok)
	assert.True(t, e.LastSeen.IsZero())

	t.Log("✅ 五个分级经文件往返后一致")
}

func TestLoad_MissingFile(t *testing.T) {
	s := newStore(t, func(c *Config) {
		c.Path = filepath.Join(t.TempDir(), "absent.json")
	})
	require.NoError(t, s.Load())
	assert.Equal(t, 0, s.Len(types.TierGrey))
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := newStore(t, func(c *Config) { c.Path = path })
	assert.Error(t, s.Load())
}

func TestLoad_BadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "tiers": {}}`), 0o644))

	s := newStore(t, func(c *Config) { c.Path = path })
	assert.Error(t, s.Load())
}

func TestLoad_SkipsBadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	blob := `{
  "version": 1,
  "tiers": {
    "greylist": [
      {"addr": "tcp://10.0.0.1:9595", "last_seen": 1700000000},
      {"addr": "not a url at all", "last_seen": 0},
      {"addr": "tcp://10.0.0.2", "last_seen": 0}
    ],
    "moonlist": [
      {"addr": "tcp://10.0.0.3:9595", "last_seen": 0}
    ]
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	s := newStore(t, func(c *Config) { c.Path = path })
	require.NoError(t, s.Load())

	// 非法地址与未知分级跳过，合法条目照常装载
	assert.Equal(t, 1, s.Len(types.TierGrey))
	assert.True(t, s.Contains(addr(t, "tcp://10.0.0.1:9595")))
}

func TestLoad_RespectsFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")

	src := newStore(t, func(c *Config) { c.Path = path })
	src.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.1:9595")})
	require.NoError(t, src.Save())

	// 装载时黑名单规则照常生效
	dst := newStore(t, func(c *Config) {
		c.Path = path
		c.Rules = []Rule{{Host: "10.0.0.1"}}
	})
	require.NoError(t, dst.Load())
	assert.Equal(t, 0, dst.Len(types.TierGrey))
}

func TestSave_Disabled(t *testing.T) {
	s := newStore(t) // 无路径
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.1:9595")})
	assert.NoError(t, s.Save())
}

func TestSave_AfterClose(t *testing.T) {
	s := newStore(t, func(c *Config) {
		c.Path = filepath.Join(t.TempDir(), "hosts.json")
	})
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Save(), ErrClosed)
	assert.ErrorIs(t, s.Load(), ErrClosed)
}

func TestSave_OverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")

	s := newStore(t, func(c *Config) { c.Path = path })
	s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.1:9595")})
	require.NoError(t, s.Save())

	s.InsertOrUpdate(types.TierGrey, Entry{Addr: addr(t, "tcp://10.0.0.2:9595")})
	require.NoError(t, s.Save())

	// 不留临时文件
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hosts.json", entries[0].Name())

	dst := newStore(t, func(c *Config) { c.Path = path })
	require.NoError(t, dst.Load())
	assert.Equal(t, 2, dst.Len(types.TierGrey))
}
