package hoststore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/umbra-net/go-umbra/config"
	"github.com/umbra-net/go-umbra/pkg/types"
)

func TestModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	cfg := config.Default()
	cfg.Node.Localnet = true
	cfg.Hosts.StorePath = path
	cfg.Hosts.Anchors = []string{"tcp://127.0.0.1:9595"}

	var store *Store
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&store),
	)

	app.RequireStart()

	// 锚名单在启动时并入
	tier, ok := store.TierOf(types.MustAddr("tcp://127.0.0.1:9595"))
	require.True(t, ok)
	assert.Equal(t, types.TierAnchor, tier)

	app.RequireStop()

	// 停止时主机表落盘
	_, err := os.Stat(path)
	assert.NoError(t, err)
	t.Log("✅ Fx 模块完成启动、并锚、落盘、停止")
}

func TestModule_ReloadsPersistedHosts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	cfg := config.Default()
	cfg.Node.Localnet = true
	cfg.Hosts.StorePath = path

	var store *Store
	app := fxtest.New(t, fx.Supply(cfg), Module(), fx.Populate(&store))
	app.RequireStart()
	store.InsertOrUpdate(types.TierGrey, Entry{Addr: types.MustAddr("tcp://10.0.0.1:9595")})
	app.RequireStop()

	var reloaded *Store
	app2 := fxtest.New(t, fx.Supply(cfg), Module(), fx.Populate(&reloaded))
	app2.RequireStart()
	assert.True(t, reloaded.Contains(types.MustAddr("tcp://10.0.0.1:9595")))
	app2.RequireStop()
}

func TestModule_BadAnchor(t *testing.T) {
	cfg := config.Default()
	cfg.Hosts.Anchors = []string{"::bogus::"}

	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		Module(),
	)
	err := app.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "锚地址")
}

func TestModule_FilteredAnchorStillStarts(t *testing.T) {
	// 私网锚地址在公网模式下被过滤，但只告警不拒绝启动
	cfg := config.Default()
	cfg.Node.Localnet = false
	cfg.Hosts.Anchors = []string{"tcp://192.168.0.1:9595"}

	var store *Store
	app := fxtest.New(t, fx.Supply(cfg), Module(), fx.Populate(&store))
	app.RequireStart()
	assert.Equal(t, 0, store.Len(types.TierAnchor))
	app.RequireStop()
}
