package client

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/confmesh/confmesh/internal/protocol"
)

// wsSender adapts the websocket client to the negotiation Sender interface.
// Sends only enqueue onto the write pump, so a pair's lock is never held
// across network progress.
type wsSender struct {
	client *Client
}

func (s *wsSender) SendOffer(target string, sdp webrtc.SessionDescription) error {
	return s.sendSignal(protocol.TypeOffer, target, sdp)
}

func (s *wsSender) SendAnswer(target string, sdp webrtc.SessionDescription) error {
	return s.sendSignal(protocol.TypeAnswer, target, sdp)
}

func (s *wsSender) SendCandidate(target string, cand webrtc.ICECandidateInit) error {
	return s.sendSignal(protocol.TypeCandidate, target, cand)
}

func (s *wsSender) sendSignal(kind, target string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	s.client.Send(&protocol.Message{Type: kind, Target: target, Payload: b})
	return nil
}
