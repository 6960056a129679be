package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	log "github.com/sirupsen/logrus"

	"github.com/confmesh/confmesh/internal/config"
	"github.com/confmesh/confmesh/internal/mesh"
	"github.com/confmesh/confmesh/internal/negotiation"
	"github.com/confmesh/confmesh/internal/protocol"
)

// requestTimeout bounds how long create/join waits for the server's reply.
const requestTimeout = 10 * time.Second

// ErrDisconnected is returned when the signaling channel dies mid-request.
var ErrDisconnected = errors.New("signaling connection closed")

// Session is one participant's presence in a room: its signaling
// connection, its per-peer negotiation coordinator, and the mesh status
// aggregator that watches the resulting links.
type Session struct {
	cfg       *config.Config
	newEngine negotiation.EngineFactory
	nopts     negotiation.Options

	client  *Client
	handler *Handler
	coord   *negotiation.Coordinator
	agg     *mesh.Aggregator

	localID   string
	roomID    string
	creatorID string
	log       *log.Entry
}

// NewSession builds a session. newEngine decides the media engine; use
// negotiation.NewPionFactory(cfg) for real connectivity.
func NewSession(cfg *config.Config, newEngine negotiation.EngineFactory, nopts negotiation.Options) *Session {
	return &Session{
		cfg:       cfg,
		newEngine: newEngine,
		nopts:     nopts,
		log:       log.WithField("src", "session"),
	}
}

// Connect dials the signaling server and starts message handling.
func (s *Session) Connect() error {
	s.client = NewClient(s.cfg.WebSocketURL)
	if err := s.client.Connect(); err != nil {
		return err
	}
	s.handler = NewHandler(s.client)
	go s.handler.Start()
	return nil
}

// CreateRoom creates a fresh room with this participant as creator and
// returns the room id. An empty participantID lets the server mint one.
func (s *Session) CreateRoom(participantID string) (string, error) {
	s.client.Send(&protocol.Message{Type: protocol.TypeCreateRoom, ParticipantID: participantID})

	select {
	case ev := <-s.handler.RoomCreated:
		s.creatorID = ev.Creator
		s.start(ev.RoomID, ev.ParticipantID, nil)
		return ev.RoomID, nil
	case errMsg := <-s.handler.Error:
		return "", fmt.Errorf("create room: %s", errMsg)
	case <-s.handler.Done:
		return "", ErrDisconnected
	case <-time.After(requestTimeout):
		return "", errors.New("create room: timed out")
	}
}

// JoinRoom joins an existing room and returns the peers already present,
// the ones this participant will negotiate with.
func (s *Session) JoinRoom(roomID, participantID string) ([]string, error) {
	s.client.Send(&protocol.Message{
		Type:          protocol.TypeJoinRoom,
		RoomID:        roomID,
		ParticipantID: participantID,
	})

	select {
	case ev := <-s.handler.RoomJoined:
		s.creatorID = ev.Creator
		s.start(ev.RoomID, ev.ParticipantID, ev.Members)
		return ev.Members, nil
	case errMsg := <-s.handler.Error:
		return nil, fmt.Errorf("join room: %s", errMsg)
	case <-s.handler.Done:
		return nil, ErrDisconnected
	case <-time.After(requestTimeout):
		return nil, errors.New("join room: timed out")
	}
}

// start stands the negotiation machinery up once membership is established.
// Existing members will initiate toward us; we arm a fallback per known
// member in case their join event got lost.
func (s *Session) start(roomID, localID string, members []string) {
	s.roomID = roomID
	s.localID = localID
	s.log = log.WithFields(log.Fields{"src": "session", "room": roomID, "self": localID})

	s.agg = mesh.New(nil)
	s.coord = negotiation.NewCoordinator(localID, &wsSender{client: s.client}, s.newEngine, s.agg, s.nopts)
	s.agg.BindSnapshot(s.coord.ConnectedSnapshot)

	for _, m := range members {
		s.coord.PeerPresent(m)
	}
	s.agg.StartPolling(0, 0)

	go s.run()
}

// run fans handler events into the coordinator until the connection dies.
func (s *Session) run() {
	for {
		select {
		case ev := <-s.handler.PeerJoined:
			s.log.WithField("peer", ev.ParticipantID).Info("participant joined, initiating")
			s.coord.PeerJoined(ev.ParticipantID)

		case peer := <-s.handler.PeerLeft:
			s.log.WithField("peer", peer).Info("participant left")
			s.coord.PeerLeft(peer)

		case sig := <-s.handler.Signal:
			s.dispatchSignal(sig)

		case errMsg := <-s.handler.Error:
			s.log.WithField("error", errMsg).Warn("server error")

		case <-s.handler.Done:
			s.log.Debug("signaling connection closed, tearing down pairs")
			s.coord.Close()
			s.agg.StopPolling()
			return
		}
	}
}

func (s *Session) dispatchSignal(sig *SignalEvent) {
	switch sig.Kind {
	case protocol.TypeOffer, protocol.TypeAnswer:
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(sig.Payload, &sdp); err != nil {
			s.log.WithField("peer", sig.Sender).WithError(err).Warn("malformed session description")
			return
		}
		if sig.Kind == protocol.TypeOffer {
			s.coord.HandleOffer(sig.Sender, sdp)
		} else {
			s.coord.HandleAnswer(sig.Sender, sdp)
		}

	case protocol.TypeCandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(sig.Payload, &cand); err != nil {
			s.log.WithField("peer", sig.Sender).WithError(err).Warn("malformed candidate")
			return
		}
		s.coord.HandleCandidate(sig.Sender, cand)
	}
}

// ConnectedCount reports how many peers of the room this participant is
// currently connected to.
func (s *Session) ConnectedCount() int {
	if s.agg == nil {
		return 0
	}
	return s.agg.ConnectedCount()
}

// RoomID returns the joined room's id, once established.
func (s *Session) RoomID() string { return s.roomID }

// ParticipantID returns the local participant id, once established.
func (s *Session) ParticipantID() string { return s.localID }

// CreatorID returns the id of the participant that created the room, once
// established.
func (s *Session) CreatorID() string { return s.creatorID }

// Done closes when the signaling connection is gone.
func (s *Session) Done() <-chan struct{} { return s.handler.Done }

// Leave leaves the room: every pair and every room-scoped timer is torn
// down before the leave message goes out, so nothing is sent for this
// participant after it is reported as gone.
func (s *Session) Leave() {
	if s.coord != nil {
		s.coord.Close()
	}
	if s.agg != nil {
		s.agg.StopPolling()
	}
	s.client.Send(&protocol.Message{Type: protocol.TypeLeaveRoom})
}

// Close leaves and drops the signaling connection.
func (s *Session) Close() {
	s.Leave()
	s.client.Close()
}
