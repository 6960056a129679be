package negotiation

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/confmesh/confmesh/internal/config"
	"github.com/confmesh/confmesh/internal/presence"
)

// pionEngine adapts a pion PeerConnection to the Engine interface. One
// instance per peer pair; the link owns it exclusively.
type pionEngine struct {
	pc *webrtc.PeerConnection

	mu               sync.Mutex
	onCandidate      func(webrtc.ICECandidateInit)
	onTransportState func(webrtc.ICEConnectionState)
	onMediaActive    func()
}

// NewPionFactory returns an EngineFactory backed by pion/webrtc, configured
// with the STUN/TURN servers from cfg. Each engine carries a recv-only audio
// transceiver so negotiation succeeds before any local media exists, and a
// negotiated presence datachannel for liveness beacons.
func NewPionFactory(cfg *config.Config) EngineFactory {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}
	if turn := cfg.GetTURNServers(); turn != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}
	rtcConfig := webrtc.Configuration{
		ICEServers:   iceServers,
		BundlePolicy: webrtc.BundlePolicyMaxBundle,
	}

	return func(remoteID string) (Engine, error) {
		pc, err := webrtc.NewPeerConnection(rtcConfig)
		if err != nil {
			return nil, fmt.Errorf("create peer connection for %s: %w", remoteID, err)
		}

		e := &pionEngine{pc: pc}

		// Placeholder transceiver: negotiation must not depend on local
		// media being ready.
		if _, err := pc.AddTransceiverFromKind(
			webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
		); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add audio transceiver: %w", err)
		}

		// Negotiated channel: both sides create it with the same id, so no
		// side depends on being the offerer.
		negotiated := true
		var channelID uint16
		dc, err := pc.CreateDataChannel(presence.ChannelLabel, &webrtc.DataChannelInit{
			Negotiated: &negotiated,
			ID:         &channelID,
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create presence channel: %w", err)
		}
		presence.Attach(dc, presence.DefaultInterval, func() {
			if cb := e.mediaActiveCallback(); cb != nil {
				cb()
			}
		})

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				return
			}
			if cb := e.candidateCallback(); cb != nil {
				cb(c.ToJSON())
			}
		})
		pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
			if cb := e.transportStateCallback(); cb != nil {
				cb(state)
			}
		})

		return e, nil
	}
}

func (e *pionEngine) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := e.pc.CreateOffer(opts)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return *e.pc.LocalDescription(), nil
}

func (e *pionEngine) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return *e.pc.LocalDescription(), nil
}

func (e *pionEngine) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return e.pc.SetRemoteDescription(sdp)
}

func (e *pionEngine) Rollback() error {
	return e.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (e *pionEngine) AddICECandidate(cand webrtc.ICECandidateInit) error {
	return e.pc.AddICECandidate(cand)
}

func (e *pionEngine) OnCandidate(cb func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCandidate = cb
}

func (e *pionEngine) OnTransportState(cb func(webrtc.ICEConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTransportState = cb
}

func (e *pionEngine) OnMediaActive(cb func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMediaActive = cb
}

func (e *pionEngine) Close() error {
	return e.pc.Close()
}

func (e *pionEngine) candidateCallback() func(webrtc.ICECandidateInit) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onCandidate
}

func (e *pionEngine) transportStateCallback() func(webrtc.ICEConnectionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onTransportState
}

func (e *pionEngine) mediaActiveCallback() func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onMediaActive
}
