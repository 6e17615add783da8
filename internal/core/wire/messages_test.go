package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 字段名即互通契约：任何实现按这些 JSON 键编解码。
func TestVersion_JSONKeys(t *testing.T) {
	v := Version{
		ProtocolVersion: 1,
		AppVersion:      "0.3.0",
		NodeID:          "node-1",
		Timestamp:       1700000000,
		ExternalAddrs:   []string{"tcp://1.2.3.4:9595"},
	}

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var keys map[string]any
	require.NoError(t, json.Unmarshal(data, &keys))

	for _, key := range []string{
		"protocol_version", "app_version", "node_id", "timestamp", "external_addrs",
	} {
		assert.Contains(t, keys, key)
	}

	t.Log("✅ version 负载键名与线上模式一致")
}

func TestVerack_SameShapeAsVersion(t *testing.T) {
	v := Version{ProtocolVersion: 1, AppVersion: "0.3.0", NodeID: "node-1", Timestamp: 1}

	versionJSON, err := json.Marshal(v)
	require.NoError(t, err)
	verackJSON, err := json.Marshal(Verack(v))
	require.NoError(t, err)

	assert.JSONEq(t, string(versionJSON), string(verackJSON))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	want := GetAddrs{Max: 64, Schemes: []string{"tcp", "tcp+tls"}}

	msg, err := Encode(CmdGetAddrs, want)
	require.NoError(t, err)
	assert.Equal(t, CmdGetAddrs, msg.Command)

	var got GetAddrs
	require.NoError(t, Decode(msg, &got))
	assert.Equal(t, want, got)
}

func TestDecode_BadBody(t *testing.T) {
	msg := Message{Command: CmdPing, Body: []byte(`{"nonce":`)}

	var ping Ping
	err := Decode(msg, &ping)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecode_EmptyBody(t *testing.T) {
	// 空负载不是合法 JSON，内建命令必须携带对象体
	var ping Ping
	err := Decode(Message{Command: CmdPing}, &ping)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestAddrs_RoundTrip(t *testing.T) {
	want := Addrs{Addrs: []AddrEntry{
		{Addr: "tcp://10.0.0.1:9595", LastSeen: 1700000000},
		{Addr: "tor://abcdef.onion:9595", LastSeen: 1700000100},
	}}

	msg, err := Encode(CmdAddrs, want)
	require.NoError(t, err)

	var got Addrs
	require.NoError(t, Decode(msg, &got))
	assert.Equal(t, want, got)
}

func TestEncode_Unmarshalable(t *testing.T) {
	_, err := Encode(CmdAddrs, map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
