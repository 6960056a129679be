package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confmesh/confmesh/internal/registry"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultDomain, cfg.Domain)
	assert.Equal(t, "wss://localhost:8080/ws", cfg.WebSocketURL)
	assert.Equal(t, registry.DefaultRoomCapacity, cfg.RoomCapacity)
	assert.Equal(t, DefaultSTUN, cfg.STUNServer)
}

func TestLoadFlagsBeatEnv(t *testing.T) {
	t.Setenv("DOMAIN", "env.example.com")
	t.Setenv("STUN_SERVER", "stun:env.example.com:3478")

	cfg, err := Load(Options{Domain: "flag.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "flag.example.com", cfg.Domain)
	assert.Equal(t, "stun:env.example.com:3478", cfg.STUNServer)
}

func TestLoadInsecureScheme(t *testing.T) {
	cfg, err := Load(Options{Domain: "localhost:9000", Insecure: true})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9000/ws", cfg.WebSocketURL)

	t.Setenv("INSECURE_WS", "1")
	cfg, err = Load(Options{Domain: "localhost:9000"})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9000/ws", cfg.WebSocketURL)
}

func TestLoadRoomCapacity(t *testing.T) {
	t.Setenv("ROOM_CAPACITY", "4")
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.RoomCapacity)

	cfg, err = Load(Options{RoomCapacity: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.RoomCapacity)

	t.Setenv("ROOM_CAPACITY", "banana")
	_, err = Load(Options{})
	assert.Error(t, err)
}

func TestLoadNegotiationTimers(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultFallbackDelay, cfg.FallbackDelay)
	assert.Equal(t, DefaultDisconnectGrace, cfg.DisconnectGrace)
	assert.Equal(t, DefaultStabilityWindow, cfg.StabilityWindow)

	t.Setenv("FALLBACK_DELAY", "500ms")
	cfg, err = Load(Options{StabilityWindow: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.FallbackDelay)
	assert.Equal(t, time.Second, cfg.StabilityWindow)

	t.Setenv("DISCONNECT_GRACE", "soon")
	_, err = Load(Options{})
	assert.Error(t, err)
}

func TestRoomLink(t *testing.T) {
	cfg, err := Load(Options{Domain: "meet.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example.com/?room=ab12cd34", cfg.GetRoomLink("ab12cd34"))
}

func TestTURNServers(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Nil(t, cfg.GetTURNServers())

	cfg, err = Load(Options{TURNServer: "turn.example.com", TURNUser: "u", TURNPass: "p"})
	require.NoError(t, err)
	urls := cfg.GetTURNServers()
	require.Len(t, urls, 3)
	assert.Equal(t, "turn:turn.example.com:3478?transport=udp", urls[0])
	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}
