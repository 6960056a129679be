package signaling_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confmesh/confmesh/internal/protocol"
	"github.com/confmesh/confmesh/internal/registry"
	"github.com/confmesh/confmesh/internal/server"
	"github.com/confmesh/confmesh/internal/signaling"
)

const readWait = 2 * time.Second

func newTestServer(t *testing.T, capacity int) string {
	t.Helper()
	reg := registry.New(capacity)
	router := signaling.NewRouter(reg, nil)
	srv := httptest.NewServer(server.ServeWs(router))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func recv(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(readWait))
	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

// recvNothing asserts no message arrives within a short window.
func recvNothing(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var msg protocol.Message
	err := conn.ReadJSON(&msg)
	require.Error(t, err, "unexpected message: %+v", msg)
}

// createRoom creates a room through conn and returns room and participant id.
func createRoom(t *testing.T, conn *websocket.Conn, name string) (string, string) {
	t.Helper()
	send(t, conn, &protocol.Message{Type: protocol.TypeCreateRoom, ParticipantID: name})
	reply := recv(t, conn)
	require.Equal(t, protocol.TypeRoomCreated, reply.Type)
	require.Equal(t, reply.ParticipantID, reply.Creator)
	return reply.RoomID, reply.ParticipantID
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID, name string) *protocol.Message {
	t.Helper()
	send(t, conn, &protocol.Message{Type: protocol.TypeJoinRoom, RoomID: roomID, ParticipantID: name})
	return recv(t, conn)
}

func TestCreateAndJoin(t *testing.T) {
	url := newTestServer(t, 0)

	alice := dial(t, url)
	roomID, aliceID := createRoom(t, alice, "")
	assert.Len(t, roomID, 8)
	assert.True(t, strings.HasPrefix(aliceID, "user_"), "minted id %q", aliceID)

	bob := dial(t, url)
	joined := joinRoom(t, bob, roomID, "bob")
	require.Equal(t, protocol.TypeRoomJoined, joined.Type)
	assert.Equal(t, roomID, joined.RoomID)
	assert.Equal(t, "bob", joined.ParticipantID)
	assert.Equal(t, []string{aliceID}, joined.Members)
	assert.Equal(t, aliceID, joined.Creator)

	// Alice hears about the newcomer, with the full member list.
	note := recv(t, alice)
	require.Equal(t, protocol.TypeParticipantJoined, note.Type)
	assert.Equal(t, "bob", note.ParticipantID)
	assert.ElementsMatch(t, []string{aliceID, "bob"}, note.Members)
}

func TestJoinErrors(t *testing.T) {
	url := newTestServer(t, 2)

	alice := dial(t, url)
	roomID, _ := createRoom(t, alice, "alice")

	stranger := dial(t, url)
	reply := joinRoom(t, stranger, "deadbeef", "bob")
	require.Equal(t, protocol.TypeError, reply.Type)
	assert.Equal(t, registry.ErrRoomNotFound.Error(), reply.Error)

	impostor := dial(t, url)
	reply = joinRoom(t, impostor, roomID, "alice")
	require.Equal(t, protocol.TypeError, reply.Type)
	assert.Equal(t, registry.ErrIDInUse.Error(), reply.Error)

	bob := dial(t, url)
	reply = joinRoom(t, bob, roomID, "bob")
	require.Equal(t, protocol.TypeRoomJoined, reply.Type)
	recv(t, alice)

	carol := dial(t, url)
	reply = joinRoom(t, carol, roomID, "carol")
	require.Equal(t, protocol.TypeError, reply.Type)
	assert.Equal(t, registry.ErrRoomFull.Error(), reply.Error)
}

func TestCreateWhileInRoom(t *testing.T) {
	url := newTestServer(t, 0)

	alice := dial(t, url)
	createRoom(t, alice, "alice")

	send(t, alice, &protocol.Message{Type: protocol.TypeCreateRoom})
	reply := recv(t, alice)
	require.Equal(t, protocol.TypeError, reply.Type)
	assert.Contains(t, reply.Error, "already in a room")
}

func TestRelayReachesOnlyTarget(t *testing.T) {
	url := newTestServer(t, 0)

	alice := dial(t, url)
	roomID, _ := createRoom(t, alice, "alice")

	bob := dial(t, url)
	joinRoom(t, bob, roomID, "bob")
	recv(t, alice)

	carol := dial(t, url)
	joinRoom(t, carol, roomID, "carol")
	recv(t, alice)
	recv(t, bob)

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0 fake"}`)
	send(t, bob, &protocol.Message{Type: protocol.TypeOffer, Target: "alice", Payload: payload})

	got := recv(t, alice)
	require.Equal(t, protocol.TypeOffer, got.Type)
	assert.Equal(t, "bob", got.Sender)
	assert.JSONEq(t, string(payload), string(got.Payload))

	recvNothing(t, carol)
}

func TestRelayToMissingTargetDropped(t *testing.T) {
	url := newTestServer(t, 0)

	alice := dial(t, url)
	createRoom(t, alice, "alice")

	send(t, alice, &protocol.Message{Type: protocol.TypeCandidate, Target: "ghost", Payload: json.RawMessage(`{}`)})
	recvNothing(t, alice)
}

func TestRelayFromOutsideRoomDropped(t *testing.T) {
	url := newTestServer(t, 0)

	loner := dial(t, url)
	send(t, loner, &protocol.Message{Type: protocol.TypeOffer, Target: "anyone", Payload: json.RawMessage(`{}`)})
	recvNothing(t, loner)
}

func TestLeaveBroadcast(t *testing.T) {
	url := newTestServer(t, 0)

	alice := dial(t, url)
	roomID, _ := createRoom(t, alice, "alice")

	bob := dial(t, url)
	joinRoom(t, bob, roomID, "bob")
	recv(t, alice)

	send(t, bob, &protocol.Message{Type: protocol.TypeLeaveRoom})

	note := recv(t, alice)
	require.Equal(t, protocol.TypeParticipantLeft, note.Type)
	assert.Equal(t, "bob", note.ParticipantID)
}

func TestDisconnectActsAsLeave(t *testing.T) {
	url := newTestServer(t, 0)

	alice := dial(t, url)
	roomID, _ := createRoom(t, alice, "alice")

	bob := dial(t, url)
	joinRoom(t, bob, roomID, "bob")
	recv(t, alice)

	// Bob's socket dies without a leave message.
	bob.Close()

	note := recv(t, alice)
	require.Equal(t, protocol.TypeParticipantLeft, note.Type)
	assert.Equal(t, "bob", note.ParticipantID)
}
