// Package signaling implements the server side of the negotiation relay:
// per-connection websocket pumps and the router that validates, addresses
// and fans out room events and offer/answer/candidate messages.
package signaling

import (
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/confmesh/confmesh/internal/protocol"
	"github.com/confmesh/confmesh/internal/registry"
)

// Router relays signaling messages between participants of a room. It
// resolves participant ids to live connections through the registry and
// never lets one participant's failure reach another: unknown targets are
// dropped, request errors go back only to the caller.
type Router struct {
	reg *registry.Registry
	log *log.Entry
}

// NewRouter creates a router over the given registry.
func NewRouter(reg *registry.Registry, logger *log.Entry) *Router {
	if logger == nil {
		logger = log.WithField("src", "router")
	}
	return &Router{reg: reg, log: logger}
}

// Registry exposes the underlying session registry (read-side use only).
func (r *Router) Registry() *registry.Registry {
	return r.reg
}

// Dispatch routes one inbound message from a participant. Called from the
// participant's read pump, so messages from one connection are handled in
// arrival order.
func (r *Router) Dispatch(c *Client, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeCreateRoom:
		r.createRoom(c, msg)
	case protocol.TypeJoinRoom:
		r.joinRoom(c, msg)
	case protocol.TypeLeaveRoom:
		r.leave(c)
	default:
		if protocol.IsSignal(msg.Type) {
			r.relay(c, msg)
			return
		}
		r.log.WithField("type", msg.Type).Debug("unknown message type")
	}
}

// Disconnect handles abrupt channel loss: the participant is treated as if
// it had sent leave_room, then its outbound queue is closed so the write
// pump exits.
func (r *Router) Disconnect(c *Client) {
	r.leave(c)
	c.closeSend()
}

func (r *Router) createRoom(c *Client, msg *protocol.Message) {
	if p := r.reg.Lookup(c); p != nil {
		c.deliver(&protocol.Message{Type: protocol.TypeError, Error: "already in a room"})
		return
	}

	participantID := msg.ParticipantID
	if participantID == "" {
		participantID = generateParticipantID()
	}
	roomID := r.reg.CreateRoom(participantID, c)

	r.log.WithFields(log.Fields{"room": roomID, "participant": participantID}).Info("room created")
	c.deliver(&protocol.Message{
		Type:          protocol.TypeRoomCreated,
		RoomID:        roomID,
		ParticipantID: participantID,
		Creator:       participantID,
	})
}

func (r *Router) joinRoom(c *Client, msg *protocol.Message) {
	if p := r.reg.Lookup(c); p != nil {
		c.deliver(&protocol.Message{Type: protocol.TypeError, Error: "already in a room"})
		return
	}

	participantID := msg.ParticipantID
	if participantID == "" {
		participantID = generateParticipantID()
	}

	prior, err := r.reg.JoinRoom(msg.RoomID, participantID, c)
	if err != nil {
		r.log.WithFields(log.Fields{"room": msg.RoomID, "participant": participantID}).
			WithError(err).Info("join rejected")
		c.deliver(&protocol.Message{Type: protocol.TypeError, Error: err.Error()})
		return
	}

	r.log.WithFields(log.Fields{
		"room":        msg.RoomID,
		"participant": participantID,
		"members":     len(prior) + 1,
	}).Info("participant joined")

	// The joiner learns which peers it must negotiate with: the members
	// present before it joined.
	c.deliver(&protocol.Message{
		Type:          protocol.TypeRoomJoined,
		RoomID:        msg.RoomID,
		ParticipantID: participantID,
		Members:       participantIDs(prior),
		Creator:       r.reg.Creator(msg.RoomID),
	})

	// Existing members learn about the newcomer, with the full member list.
	all := append(participantIDs(prior), participantID)
	joined := &protocol.Message{
		Type:          protocol.TypeParticipantJoined,
		ParticipantID: participantID,
		Members:       all,
	}
	for _, m := range prior {
		m.Conn.(*Client).deliver(joined)
	}
}

// relay forwards an offer, answer or candidate to a single recipient in the
// sender's room. A missing sender or target is expected under leave races
// and dropped without an error.
func (r *Router) relay(c *Client, msg *protocol.Message) {
	sender := r.reg.Lookup(c)
	if sender == nil {
		r.log.WithField("type", msg.Type).Debug("relay from participant not in a room, dropped")
		return
	}

	var target *registry.Participant
	for _, m := range r.reg.Members(sender.RoomID) {
		if m.ID == msg.Target {
			target = m
			break
		}
	}
	if target == nil {
		r.log.WithFields(log.Fields{
			"type":   msg.Type,
			"from":   sender.ID,
			"target": msg.Target,
		}).Debug("relay target not in room, dropped")
		return
	}

	target.Conn.(*Client).deliver(&protocol.Message{
		Type:    msg.Type,
		Sender:  sender.ID,
		Payload: msg.Payload,
	})
}

func (r *Router) leave(c *Client) {
	p, remaining, roomDeleted := r.reg.Leave(c)
	if p == nil {
		return
	}

	if roomDeleted {
		r.log.WithField("room", p.RoomID).Info("room deleted")
		return
	}

	r.log.WithFields(log.Fields{"room": p.RoomID, "participant": p.ID}).Info("participant left")
	left := &protocol.Message{Type: protocol.TypeParticipantLeft, ParticipantID: p.ID}
	for _, m := range remaining {
		m.Conn.(*Client).deliver(left)
	}
}

func participantIDs(members []*registry.Participant) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}

// generateParticipantID mints an id for participants that did not choose
// their own.
func generateParticipantID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
