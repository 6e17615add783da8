package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault 测试创建默认配置
func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	// 验证默认配置有效
	err := cfg.Validate()
	assert.NoError(t, err)

	t.Log("✅ Default 测试通过")
}

// TestConfig_JSONRoundTrip 测试 JSON 往返
func TestConfig_JSONRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Node.ID = "node-a"
	cfg.Session.Seeds = []string{"tcp://seed.example.org:9595"}
	cfg.Session.HandshakeTimeout = Duration(3 * time.Second)
	cfg.Blacklist.Entries = []BlacklistEntry{{Host: "1.2.3.4", Ports: []uint16{9595}}}

	data, err := cfg.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, cfg.Node.ID, decoded.Node.ID)
	assert.Equal(t, cfg.Session.Seeds, decoded.Session.Seeds)
	assert.Equal(t, cfg.Session.HandshakeTimeout, decoded.Session.HandshakeTimeout)
	assert.Equal(t, cfg.Blacklist.Entries, decoded.Blacklist.Entries)
}

// TestConfig_FromJSONPartial 测试部分 JSON 保留默认值
func TestConfig_FromJSONPartial(t *testing.T) {
	data := []byte(`{"session": {"outbound_connections": 3}}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Session.OutboundConnections)
	// 未出现的字段保留默认值
	assert.Equal(t, DefaultSessionConfig().HandshakeTimeout, cfg.Session.HandshakeTimeout)
	assert.Equal(t, DefaultTransportConfig().AllowedSchemes, cfg.Transport.AllowedSchemes)
}

// TestDuration 测试 Duration 两种 JSON 形式
func TestDuration(t *testing.T) {
	var cfg SessionConfig

	require.NoError(t, cfg.HandshakeTimeout.UnmarshalJSON([]byte(`"30s"`)))
	assert.Equal(t, 30*time.Second, cfg.HandshakeTimeout.Duration())

	require.NoError(t, cfg.HandshakeTimeout.UnmarshalJSON([]byte(`5000000000`)))
	assert.Equal(t, 5*time.Second, cfg.HandshakeTimeout.Duration())

	assert.Error(t, cfg.HandshakeTimeout.UnmarshalJSON([]byte(`"bogus"`)))

	out, err := Duration(time.Minute).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(out))
}

// TestTransportConfig_Validate 测试传输配置验证
func TestTransportConfig_Validate(t *testing.T) {
	t.Run("EmptySchemes", func(t *testing.T) {
		cfg := DefaultTransportConfig()
		cfg.AllowedSchemes = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("UnknownScheme", func(t *testing.T) {
		cfg := DefaultTransportConfig()
		cfg.AllowedSchemes = []string{"carrier-pigeon"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("TorWithoutProxy", func(t *testing.T) {
		cfg := DefaultTransportConfig()
		cfg.AllowedSchemes = []string{"tor"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("TorWithProxy", func(t *testing.T) {
		cfg := DefaultTransportConfig()
		cfg.AllowedSchemes = []string{"tor"}
		cfg.TorProxy = "socks5://127.0.0.1:9050"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("BadProxyScheme", func(t *testing.T) {
		cfg := DefaultTransportConfig()
		cfg.AllowedSchemes = []string{"tor"}
		cfg.TorProxy = "http://127.0.0.1:8080"
		assert.Error(t, cfg.Validate())
	})
}

// TestSessionConfig_Validate 测试会话配置验证
func TestSessionConfig_Validate(t *testing.T) {
	cfg := DefaultSessionConfig()
	require.NoError(t, cfg.Validate())

	cfg.HandshakeTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultSessionConfig()
	cfg.OutboundConnections = -1
	assert.Error(t, cfg.Validate())
}

// TestHostsConfig_Validate 测试主机存储配置验证
func TestHostsConfig_Validate(t *testing.T) {
	cfg := DefaultHostsConfig()
	require.NoError(t, cfg.Validate())

	cfg.WhiteConnectPercent = 101
	assert.Error(t, cfg.Validate())

	cfg = DefaultHostsConfig()
	cfg.QuarantineSize = 0
	assert.Error(t, cfg.Validate())
}

// TestBlacklistConfig_Validate 测试黑名单配置验证
func TestBlacklistConfig_Validate(t *testing.T) {
	cfg := DefaultBlacklistConfig()
	require.NoError(t, cfg.Validate())

	cfg.BanPolicy = "medium"
	assert.Error(t, cfg.Validate())

	cfg = DefaultBlacklistConfig()
	cfg.Entries = []BlacklistEntry{{Host: ""}}
	assert.Error(t, cfg.Validate())

	cfg.Entries = []BlacklistEntry{{Host: "1.2.3.4", Schemes: []string{"nope"}}}
	assert.Error(t, cfg.Validate())
}

// TestConfig_File 测试配置文件读写
func TestConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "umbra.json")

	cfg := Default()
	cfg.Node.ID = "persisted"
	require.NoError(t, cfg.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "persisted", loaded.Node.ID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
