package negotiation

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	log "github.com/sirupsen/logrus"
)

// Link is the negotiation state machine for one (local, remote) pair. Each
// endpoint owns its private Link; the two stay consistent purely through the
// ordered message exchange, never shared memory.
//
// All inbound events for a pair serialize on the link mutex, so no two
// goroutines ever apply a description or send an offer for the same pair at
// the same time. Different pairs progress independently.
type Link struct {
	remoteID string
	engine   Engine
	send     Sender
	observer Observer
	log      *log.Entry

	fallbackDelay   time.Duration
	disconnectGrace time.Duration
	stabilityWindow time.Duration

	mu            sync.Mutex
	phase         Phase
	remoteApplied bool
	offerReceived bool
	connected     bool
	pending       []webrtc.ICECandidateInit

	fallbackTimer  *time.Timer
	graceTimer     *time.Timer
	stabilityTimer *time.Timer
}

func newLink(remoteID string, engine Engine, send Sender, observer Observer, opts Options, logger *log.Entry) *Link {
	l := &Link{
		remoteID:        remoteID,
		engine:          engine,
		send:            send,
		observer:        observer,
		log:             logger.WithField("peer", remoteID),
		fallbackDelay:   opts.FallbackDelay,
		disconnectGrace: opts.DisconnectGrace,
		stabilityWindow: opts.StabilityWindow,
		phase:           PhaseIdle,
	}
	engine.OnCandidate(l.onLocalCandidate)
	engine.OnTransportState(l.onTransportState)
	engine.OnMediaActive(l.onMediaActive)
	return l
}

// Phase returns the current handshake phase.
func (l *Link) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Connected reports whether the pair's transport is currently usable.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// initiate makes this side the initiator: it constructs and relays an offer.
func (l *Link) initiate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != PhaseIdle {
		return
	}
	l.sendOfferLocked(false)
}

// armFallback starts the liveness guard on the non-initiating side: if the
// expected peer's offer never arrives, this side initiates itself, exactly
// once. A lost join event or an asymmetric partition otherwise leaves the
// pair dead forever.
func (l *Link) armFallback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != PhaseIdle || l.fallbackTimer != nil {
		return
	}
	l.fallbackTimer = time.AfterFunc(l.fallbackDelay, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.fallbackTimer = nil
		if l.phase != PhaseIdle || l.offerReceived {
			return
		}
		l.log.Warn("no offer within fallback window, initiating ourselves")
		l.sendOfferLocked(false)
	})
}

// HandleOffer applies a remote offer. An offer arriving while our own offer
// is pending and unanswered is glare: the incoming offer wins and the local
// one rolls back. An offer on a stable pair renegotiates (ICE restart from
// the far side).
func (l *Link) HandleOffer(sdp webrtc.SessionDescription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == PhaseClosed {
		l.log.Debug("offer for closed pair, dropped")
		return
	}

	l.offerReceived = true
	l.cancelFallbackLocked()

	if l.phase == PhaseOffering || l.phase == PhaseHaveLocalOffer {
		l.log.WithField("phase", l.phase).Warn("glare: rolling back pending local offer")
		if err := l.engine.Rollback(); err != nil {
			l.log.WithError(err).Warn("rollback failed")
		}
	}

	if err := l.engine.SetRemoteDescription(sdp); err != nil {
		l.log.WithError(err).Error("applying remote offer failed")
		l.phase = PhaseFailed
		return
	}
	l.phase = PhaseHaveRemoteOffer
	l.remoteApplied = true
	l.replayPendingLocked()

	l.phase = PhaseAnswering
	answer, err := l.engine.CreateAnswer()
	if err != nil {
		l.log.WithError(err).Error("creating answer failed")
		l.phase = PhaseFailed
		return
	}
	if err := l.send.SendAnswer(l.remoteID, answer); err != nil {
		l.log.WithError(err).Error("relaying answer failed")
		l.phase = PhaseFailed
		return
	}
	l.phase = PhaseStable
	l.log.Debug("answered remote offer, pair stable")
}

// HandleAnswer applies a remote answer to our pending offer. Answers with no
// matching pending offer are expected under races and absorbed.
func (l *Link) HandleAnswer(sdp webrtc.SessionDescription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.phase {
	case PhaseClosed, PhaseStable, PhaseIdle:
		l.log.WithField("phase", l.phase).Debug("unexpected answer, dropped")
		return
	case PhaseHaveLocalOffer:
	default:
		// Stale intermediate state; try to cancel it before applying.
		l.log.WithField("phase", l.phase).Warn("answer in unexpected phase, attempting rollback")
		if err := l.engine.Rollback(); err != nil {
			l.log.WithError(err).Debug("rollback failed, dropping answer")
			return
		}
	}

	if err := l.engine.SetRemoteDescription(sdp); err != nil {
		l.log.WithError(err).Error("applying remote answer failed")
		l.phase = PhaseFailed
		return
	}
	l.remoteApplied = true
	l.replayPendingLocked()
	l.phase = PhaseStable
	l.log.Debug("remote answer applied, pair stable")
}

// HandleCandidate applies a remote candidate, or buffers it in arrival order
// until the remote description lands.
func (l *Link) HandleCandidate(cand webrtc.ICECandidateInit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == PhaseClosed {
		l.log.Debug("candidate for closed pair, dropped")
		return
	}
	if !l.remoteApplied {
		l.pending = append(l.pending, cand)
		return
	}
	if err := l.engine.AddICECandidate(cand); err != nil {
		l.log.WithError(err).Warn("adding candidate failed")
	}
}

// Close tears the pair down: every timer is cancelled, buffered candidates
// are discarded and the engine is closed. Terminal and idempotent.
func (l *Link) Close() {
	l.mu.Lock()
	if l.phase == PhaseClosed {
		l.mu.Unlock()
		return
	}
	l.phase = PhaseClosed
	l.connected = false
	l.pending = nil
	l.cancelFallbackLocked()
	l.stopTimerLocked(&l.graceTimer)
	l.stopTimerLocked(&l.stabilityTimer)
	l.mu.Unlock()

	l.engine.Close()
	if l.observer != nil {
		l.observer.PairClosed(l.remoteID)
	}
}

// sendOfferLocked constructs a local offer and relays it. Caller holds mu.
func (l *Link) sendOfferLocked(iceRestart bool) {
	l.phase = PhaseOffering
	offer, err := l.engine.CreateOffer(iceRestart)
	if err != nil {
		l.log.WithError(err).Error("creating offer failed")
		l.phase = PhaseFailed
		return
	}
	if err := l.send.SendOffer(l.remoteID, offer); err != nil {
		l.log.WithError(err).Error("relaying offer failed")
		l.phase = PhaseFailed
		return
	}
	l.phase = PhaseHaveLocalOffer
}

// replayPendingLocked applies buffered candidates in their original order
// and clears the buffer. Caller holds mu and has applied the remote
// description.
func (l *Link) replayPendingLocked() {
	for _, cand := range l.pending {
		if err := l.engine.AddICECandidate(cand); err != nil {
			l.log.WithError(err).Warn("replaying buffered candidate failed")
		}
	}
	l.pending = nil
}

func (l *Link) cancelFallbackLocked() {
	l.stopTimerLocked(&l.fallbackTimer)
}

func (l *Link) stopTimerLocked(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// onLocalCandidate forwards a locally gathered candidate to the peer. Fired
// by the engine on its own goroutine; nothing is sent once the pair closed.
func (l *Link) onLocalCandidate(cand webrtc.ICECandidateInit) {
	l.mu.Lock()
	closed := l.phase == PhaseClosed
	l.mu.Unlock()
	if closed {
		return
	}
	if err := l.send.SendCandidate(l.remoteID, cand); err != nil {
		l.log.WithError(err).Warn("relaying candidate failed")
	}
}

// onTransportState reacts to connectivity transitions from the media engine.
// Failures are recovered locally via restart; they never escalate as errors,
// only as status changes to the observer.
func (l *Link) onTransportState(state webrtc.ICEConnectionState) {
	l.mu.Lock()
	if l.phase == PhaseClosed {
		l.mu.Unlock()
		return
	}
	l.log.WithField("state", state).Debug("transport state changed")

	var notifyConnected, notifyDisconnected bool
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		l.connected = true
		notifyConnected = true
		l.stopTimerLocked(&l.graceTimer)
		l.armStabilityLocked()

	case webrtc.ICEConnectionStateFailed:
		l.connected = false
		notifyDisconnected = true
		l.stopTimerLocked(&l.stabilityTimer)
		l.log.Warn("transport failed, restarting negotiation")
		l.sendOfferLocked(true)

	case webrtc.ICEConnectionStateDisconnected:
		// Often a transient blip; give it a grace window before restarting.
		l.connected = false
		notifyDisconnected = true
		l.stopTimerLocked(&l.stabilityTimer)
		if l.graceTimer == nil {
			l.graceTimer = time.AfterFunc(l.disconnectGrace, func() {
				l.mu.Lock()
				defer l.mu.Unlock()
				l.graceTimer = nil
				if l.phase == PhaseClosed || l.connected {
					return
				}
				l.log.Warn("still disconnected after grace period, restarting negotiation")
				l.sendOfferLocked(true)
			})
		}

	case webrtc.ICEConnectionStateClosed:
		l.connected = false
		notifyDisconnected = true
		l.stopTimerLocked(&l.stabilityTimer)
	}
	l.mu.Unlock()

	if l.observer != nil {
		if notifyConnected {
			l.observer.TransportStateChanged(l.remoteID, true)
		} else if notifyDisconnected {
			l.observer.TransportStateChanged(l.remoteID, false)
		}
	}
}

// armStabilityLocked starts the confirmation window: if the transport holds
// for the whole window without regressing, stability is confirmed and the
// defensive polling can stand down. Caller holds mu.
func (l *Link) armStabilityLocked() {
	l.stopTimerLocked(&l.stabilityTimer)
	l.stabilityTimer = time.AfterFunc(l.stabilityWindow, func() {
		l.mu.Lock()
		stable := l.phase != PhaseClosed && l.connected
		l.stabilityTimer = nil
		l.mu.Unlock()
		if stable && l.observer != nil {
			l.observer.StabilityConfirmed(l.remoteID)
		}
	})
}

func (l *Link) onMediaActive() {
	l.mu.Lock()
	closed := l.phase == PhaseClosed
	l.mu.Unlock()
	if closed {
		return
	}
	if l.observer != nil {
		l.observer.MediaActive(l.remoteID)
	}
}
