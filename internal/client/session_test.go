package client_test

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confmesh/confmesh/internal/client"
	"github.com/confmesh/confmesh/internal/config"
	"github.com/confmesh/confmesh/internal/negotiation"
	"github.com/confmesh/confmesh/internal/registry"
	"github.com/confmesh/confmesh/internal/server"
	"github.com/confmesh/confmesh/internal/signaling"
)

// stubEngine stands in for the media engine so sessions can be exercised
// against a real signaling server without any actual transport.
type stubEngine struct {
	mu          sync.Mutex
	remoteDescs []webrtc.SessionDescription
	offers      int
	answers     int
	onState     func(webrtc.ICEConnectionState)
}

func (e *stubEngine) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"}, nil
}

func (e *stubEngine) CreateAnswer() (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"}, nil
}

func (e *stubEngine) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remoteDescs = append(e.remoteDescs, sdp)
	return nil
}

func (e *stubEngine) Rollback() error { return nil }

func (e *stubEngine) AddICECandidate(webrtc.ICECandidateInit) error { return nil }

func (e *stubEngine) OnCandidate(func(webrtc.ICECandidateInit)) {}

func (e *stubEngine) OnMediaActive(func()) {}

func (e *stubEngine) Close() error { return nil }

func (e *stubEngine) OnTransportState(f func(webrtc.ICEConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onState = f
}

// connect drives the transport-state callback, simulating connectivity.
func (e *stubEngine) connect() bool {
	e.mu.Lock()
	f := e.onState
	e.mu.Unlock()
	if f == nil {
		return false
	}
	f(webrtc.ICEConnectionStateConnected)
	return true
}

func (e *stubEngine) sawRemote() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.remoteDescs) > 0
}

// engineBank hands out stub engines and remembers them per remote peer.
type engineBank struct {
	mu      sync.Mutex
	engines map[string]*stubEngine
}

func newEngineBank() *engineBank {
	return &engineBank{engines: make(map[string]*stubEngine)}
}

func (b *engineBank) factory(remoteID string) (negotiation.Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := &stubEngine{}
	b.engines[remoteID] = e
	return e, nil
}

func (b *engineBank) get(remoteID string) *stubEngine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engines[remoteID]
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	reg := registry.New(0)
	router := signaling.NewRouter(reg, nil)
	srv := httptest.NewServer(server.ServeWs(router))
	t.Cleanup(srv.Close)
	return &config.Config{
		Domain:       strings.TrimPrefix(srv.URL, "http://"),
		WebSocketURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func fastOpts() negotiation.Options {
	return negotiation.Options{
		FallbackDelay:   50 * time.Millisecond,
		DisconnectGrace: 50 * time.Millisecond,
		StabilityWindow: 50 * time.Millisecond,
	}
}

func newTestSession(t *testing.T, cfg *config.Config) (*client.Session, *engineBank) {
	t.Helper()
	bank := newEngineBank()
	sess := client.NewSession(cfg, bank.factory, fastOpts())
	require.NoError(t, sess.Connect())
	t.Cleanup(sess.Close)
	return sess, bank
}

func TestSessionsNegotiateThroughServer(t *testing.T) {
	cfg := testConfig(t)

	alice, aliceBank := newTestSession(t, cfg)
	roomID, err := alice.CreateRoom("alice")
	require.NoError(t, err)
	require.Len(t, roomID, 8)
	assert.Equal(t, "alice", alice.ParticipantID())

	assert.Equal(t, "alice", alice.CreatorID())

	bob, bobBank := newTestSession(t, cfg)
	members, err := bob.JoinRoom(roomID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)
	assert.Equal(t, "alice", bob.CreatorID())

	// Alice initiates toward the newcomer; the handshake crosses the real
	// relay and both engines end up with a remote description applied.
	require.Eventually(t, func() bool {
		ae, be := aliceBank.get("bob"), bobBank.get("alice")
		return ae != nil && be != nil && ae.sawRemote() && be.sawRemote()
	}, 3*time.Second, 10*time.Millisecond)

	// Transport comes up on both sides; the mesh count follows.
	require.Eventually(t, func() bool { return aliceBank.get("bob").connect() }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return bobBank.get("alice").connect() }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return alice.ConnectedCount() == 1 && bob.ConnectedCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSessionJoinUnknownRoom(t *testing.T) {
	cfg := testConfig(t)

	bob, _ := newTestSession(t, cfg)
	_, err := bob.JoinRoom("deadbeef", "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room not found")
}

func TestSessionPeerLeaveDropsCount(t *testing.T) {
	cfg := testConfig(t)

	alice, aliceBank := newTestSession(t, cfg)
	roomID, err := alice.CreateRoom("alice")
	require.NoError(t, err)

	bob, bobBank := newTestSession(t, cfg)
	_, err = bob.JoinRoom(roomID, "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ae, be := aliceBank.get("bob"), bobBank.get("alice")
		return ae != nil && be != nil && ae.sawRemote() && be.sawRemote()
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return aliceBank.get("bob").connect() }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return alice.ConnectedCount() == 1
	}, time.Second, 10*time.Millisecond)

	bob.Leave()

	// Alice hears the departure and forgets the pair.
	assert.Eventually(t, func() bool {
		return alice.ConnectedCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
