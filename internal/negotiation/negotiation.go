// Package negotiation drives the connection-setup handshake for every peer
// pair of a room: offer/answer sequencing, candidate buffering, glare
// rollback, and the fallback and restart timers that keep a mesh converging
// when events get lost.
package negotiation

import (
	"github.com/pion/webrtc/v4"
)

// Phase is the handshake phase of one peer link.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOffering
	PhaseHaveLocalOffer
	PhaseHaveRemoteOffer
	PhaseAnswering
	PhaseStable
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOffering:
		return "offering"
	case PhaseHaveLocalOffer:
		return "have-local-offer"
	case PhaseHaveRemoteOffer:
		return "have-remote-offer"
	case PhaseAnswering:
		return "answering"
	case PhaseStable:
		return "stable"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// Sender carries outbound negotiation messages to one recipient. The
// signaling client implements it; tests swap in an in-memory duct.
// Implementations must enqueue rather than synchronously invoke the
// recipient's handlers: sends happen while the sending pair's lock is held.
type Sender interface {
	SendOffer(target string, sdp webrtc.SessionDescription) error
	SendAnswer(target string, sdp webrtc.SessionDescription) error
	SendCandidate(target string, cand webrtc.ICECandidateInit) error
}

// Engine is the per-pair slice of the external media engine. Implementations
// must not block the calling goroutine on network progress: CreateOffer,
// CreateAnswer and SetRemoteDescription only stage descriptions, connectivity
// happens in the background and is reported through the callbacks.
type Engine interface {
	// CreateOffer builds a local offer (optionally requesting an ICE
	// restart) and stages it as the local description.
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	// CreateAnswer builds an answer for the applied remote offer and stages
	// it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	// SetRemoteDescription applies the remote offer or answer.
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	// Rollback discards a staged, unacknowledged local offer.
	Rollback() error
	// AddICECandidate applies one remote network-path candidate.
	AddICECandidate(cand webrtc.ICECandidateInit) error
	// OnCandidate registers the callback for locally gathered candidates.
	OnCandidate(func(webrtc.ICECandidateInit))
	// OnTransportState registers the callback for transport connectivity
	// transitions.
	OnTransportState(func(webrtc.ICEConnectionState))
	// OnMediaActive registers the callback fired once when the pair first
	// demonstrably exchanges live traffic.
	OnMediaActive(func())
	// Close tears the engine down. Safe to call more than once.
	Close() error
}

// EngineFactory builds one Engine per remote peer.
type EngineFactory func(remoteID string) (Engine, error)

// Observer receives per-pair status changes. The mesh aggregator implements
// it; a nil observer is allowed.
type Observer interface {
	// TransportStateChanged reports whether the pair's transport is
	// currently usable.
	TransportStateChanged(remoteID string, connected bool)
	// MediaActive reports that the pair exchanged live traffic at least
	// once.
	MediaActive(remoteID string)
	// StabilityConfirmed reports that the pair stayed connected through the
	// confirmation window.
	StabilityConfirmed(remoteID string)
	// PairClosed reports that the pair was torn down.
	PairClosed(remoteID string)
}
