// Package protocol defines the websocket wire schema shared by the
// signaling server and the participant client.
package protocol

import "encoding/json"

// Message represents all websocket messages between participants and the
// signaling server, in both directions. Payload stays opaque to the server:
// offers, answers and candidates are relayed byte-for-byte.
type Message struct {
	Type          string          `json:"type"`
	RoomID        string          `json:"room_id,omitempty"`
	ParticipantID string          `json:"participant_id,omitempty"`
	Target        string          `json:"target,omitempty"`
	Sender        string          `json:"sender,omitempty"`
	Members       []string        `json:"members,omitempty"`
	Creator       string          `json:"creator,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Participant → server message types.
const (
	TypeCreateRoom = "create_room"
	TypeJoinRoom   = "join_room"
	TypeLeaveRoom  = "leave_room"
	TypeOffer      = "offer"
	TypeAnswer     = "answer"
	TypeCandidate  = "candidate"
)

// Server → participant message types. Offer, answer and candidate reuse the
// constants above, tagged with the sender's participant id.
const (
	TypeRoomCreated       = "room_created"
	TypeRoomJoined        = "room_joined"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeError             = "error"
)

// IsSignal reports whether the message type is one of the three relayed
// negotiation kinds.
func IsSignal(t string) bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeCandidate
}
