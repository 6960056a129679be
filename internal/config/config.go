package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/confmesh/confmesh/internal/registry"
)

// Default configuration values.
const (
	DefaultListenAddr = ":8080"
	DefaultDomain     = "localhost:8080"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultTURN       = "" // optional, empty by default
	DefaultTURNUser   = ""
	DefaultTURNPass   = ""
)

// Default negotiation timers.
const (
	DefaultFallbackDelay   = 3 * time.Second
	DefaultDisconnectGrace = 3 * time.Second
	DefaultStabilityWindow = 2 * time.Second
)

// Config holds application configuration for both the server and the client.
type Config struct {
	// ListenAddr is the address the signaling server binds to.
	ListenAddr string

	// Domain is the signaling server domain seen by clients.
	Domain string

	// WebSocketURL is constructed from domain.
	WebSocketURL string

	// RoomCapacity is the maximum number of participants per room.
	RoomCapacity int

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// Negotiation timers.
	FallbackDelay   time.Duration
	DisconnectGrace time.Duration
	StabilityWindow time.Duration
}

// Options for loading config with CLI flag overrides.
type Options struct {
	ListenAddr   string
	Domain       string
	RoomCapacity int
	Insecure     bool
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string

	FallbackDelay   time.Duration
	DisconnectGrace time.Duration
	StabilityWindow time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	listenAddr := firstOf(opts.ListenAddr, os.Getenv("LISTEN_ADDR"), DefaultListenAddr)
	domain := firstOf(opts.Domain, os.Getenv("DOMAIN"), DefaultDomain)
	stunServer := firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turnServer := firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN)
	turnUser := firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser)
	turnPass := firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass)

	capacity := opts.RoomCapacity
	if capacity == 0 {
		if env := os.Getenv("ROOM_CAPACITY"); env != "" {
			n, err := strconv.Atoi(env)
			if err != nil {
				return nil, fmt.Errorf("invalid ROOM_CAPACITY %q: %w", env, err)
			}
			capacity = n
		}
	}
	if capacity <= 0 {
		capacity = registry.DefaultRoomCapacity
	}

	fallback, err := durationOf(opts.FallbackDelay, "FALLBACK_DELAY", DefaultFallbackDelay)
	if err != nil {
		return nil, err
	}
	grace, err := durationOf(opts.DisconnectGrace, "DISCONNECT_GRACE", DefaultDisconnectGrace)
	if err != nil {
		return nil, err
	}
	stability, err := durationOf(opts.StabilityWindow, "STABILITY_WINDOW", DefaultStabilityWindow)
	if err != nil {
		return nil, err
	}

	scheme := "wss"
	if opts.Insecure || os.Getenv("INSECURE_WS") == "1" {
		scheme = "ws"
	}

	return &Config{
		ListenAddr:   listenAddr,
		Domain:       domain,
		WebSocketURL: fmt.Sprintf("%s://%s/ws", scheme, domain),
		RoomCapacity: capacity,
		STUNServer:   stunServer,
		TURNServer:   turnServer,
		TURNUser:     turnUser,
		TURNPass:     turnPass,

		FallbackDelay:   fallback,
		DisconnectGrace: grace,
		StabilityWindow: stability,
	}, nil
}

// GetRoomLink returns a joinable link for a room ID.
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("https://%s/?room=%s", c.Domain, roomID)
}

// GetSTUNServers returns STUN server URLs as strings.
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password.
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func durationOf(flag time.Duration, env string, def time.Duration) (time.Duration, error) {
	if flag > 0 {
		return flag, nil
	}
	if v := os.Getenv(env); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", env, v, err)
		}
		return d, nil
	}
	return def, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
