package client

import (
	"encoding/json"

	"github.com/confmesh/confmesh/internal/protocol"
)

// RoomEvent carries room lifecycle notifications.
type RoomEvent struct {
	RoomID        string
	ParticipantID string
	Members       []string
	Creator       string
}

// SignalEvent carries a relayed offer, answer or candidate.
type SignalEvent struct {
	Kind    string
	Sender  string
	Payload json.RawMessage
}

// Handler routes incoming signaling messages to typed channels.
type Handler struct {
	client      *Client
	RoomCreated chan *RoomEvent
	RoomJoined  chan *RoomEvent
	PeerJoined  chan *RoomEvent
	PeerLeft    chan string
	Signal      chan *SignalEvent
	Error       chan string
	Done        chan struct{}
}

// NewHandler creates a new message handler over a connected client.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:      client,
		RoomCreated: make(chan *RoomEvent, 1),
		RoomJoined:  make(chan *RoomEvent, 1),
		PeerJoined:  make(chan *RoomEvent, 8),
		PeerLeft:    make(chan string, 8),
		Signal:      make(chan *SignalEvent, 64),
		Error:       make(chan string, 1),
		Done:        make(chan struct{}),
	}
}

// Start consumes incoming messages and routes them until the connection
// dies, then closes Done.
func (h *Handler) Start() {
	defer close(h.Done)

	for msg := range h.client.Incoming() {
		switch msg.Type {

		case protocol.TypeRoomCreated:
			h.RoomCreated <- &RoomEvent{
				RoomID:        msg.RoomID,
				ParticipantID: msg.ParticipantID,
				Creator:       msg.Creator,
			}

		case protocol.TypeRoomJoined:
			h.RoomJoined <- &RoomEvent{
				RoomID:        msg.RoomID,
				ParticipantID: msg.ParticipantID,
				Members:       msg.Members,
				Creator:       msg.Creator,
			}

		case protocol.TypeParticipantJoined:
			h.PeerJoined <- &RoomEvent{ParticipantID: msg.ParticipantID, Members: msg.Members}

		case protocol.TypeParticipantLeft:
			h.PeerLeft <- msg.ParticipantID

		case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeCandidate:
			h.Signal <- &SignalEvent{Kind: msg.Type, Sender: msg.Sender, Payload: msg.Payload}

		case protocol.TypeError:
			h.Error <- msg.Error

		default:
		}
	}
}
