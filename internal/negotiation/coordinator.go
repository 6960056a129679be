package negotiation

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	log "github.com/sirupsen/logrus"
)

// Options are the timer knobs of the negotiation state machine.
type Options struct {
	// FallbackDelay is how long the non-initiating side waits for the
	// expected offer before initiating itself.
	FallbackDelay time.Duration
	// DisconnectGrace is how long a disconnected transport may blip before
	// a restart is attempted.
	DisconnectGrace time.Duration
	// StabilityWindow is how long a transport must stay connected before
	// the pair counts as stably connected.
	StabilityWindow time.Duration
}

// DefaultOptions returns the production timer defaults.
func DefaultOptions() Options {
	return Options{
		FallbackDelay:   3 * time.Second,
		DisconnectGrace: 3 * time.Second,
		StabilityWindow: 2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FallbackDelay <= 0 {
		o.FallbackDelay = d.FallbackDelay
	}
	if o.DisconnectGrace <= 0 {
		o.DisconnectGrace = d.DisconnectGrace
	}
	if o.StabilityWindow <= 0 {
		o.StabilityWindow = d.StabilityWindow
	}
	return o
}

// Coordinator owns one Link per remote peer of the local participant's room.
// It creates links lazily as peers are discovered (or as their offers
// arrive), fans inbound signaling into the right link, and tears links down
// when peers leave.
type Coordinator struct {
	localID   string
	send      Sender
	newEngine EngineFactory
	observer  Observer
	opts      Options
	log       *log.Entry

	mu    sync.Mutex
	links map[string]*Link
}

// NewCoordinator builds a coordinator for the local participant. observer
// may be nil.
func NewCoordinator(localID string, send Sender, newEngine EngineFactory, observer Observer, opts Options) *Coordinator {
	return &Coordinator{
		localID:   localID,
		send:      send,
		newEngine: newEngine,
		observer:  observer,
		opts:      opts.withDefaults(),
		log:       log.WithFields(log.Fields{"src": "negotiation", "self": localID}),
		links:     make(map[string]*Link),
	}
}

// PeerJoined handles a join broadcast: we are the existing member, so we
// initiate toward the newcomer.
func (c *Coordinator) PeerJoined(remoteID string) {
	link, created := c.ensureLink(remoteID)
	if link == nil {
		return
	}
	if !created {
		c.log.WithField("peer", remoteID).Debug("duplicate join event, pair already exists")
		return
	}
	link.initiate()
}

// PeerPresent handles one entry of the member list returned on join: the
// existing member is expected to initiate toward us, so we only arm the
// fallback guard.
func (c *Coordinator) PeerPresent(remoteID string) {
	link, _ := c.ensureLink(remoteID)
	if link == nil {
		return
	}
	link.armFallback()
}

// HandleOffer routes a relayed offer to its pair, creating the pair lazily:
// an offer can be the first thing we hear about a peer.
func (c *Coordinator) HandleOffer(sender string, sdp webrtc.SessionDescription) {
	link, _ := c.ensureLink(sender)
	if link == nil {
		return
	}
	link.HandleOffer(sdp)
}

// HandleAnswer routes a relayed answer to its pair. Answers never create
// pairs: one for an unknown peer is a late message for a torn-down pair.
func (c *Coordinator) HandleAnswer(sender string, sdp webrtc.SessionDescription) {
	if link := c.lookup(sender); link != nil {
		link.HandleAnswer(sdp)
		return
	}
	c.log.WithField("peer", sender).Debug("answer for unknown pair, dropped")
}

// HandleCandidate routes a relayed candidate to its pair.
func (c *Coordinator) HandleCandidate(sender string, cand webrtc.ICECandidateInit) {
	if link := c.lookup(sender); link != nil {
		link.HandleCandidate(cand)
		return
	}
	c.log.WithField("peer", sender).Debug("candidate for unknown pair, dropped")
}

// PeerLeft discards the pair for a departed peer: its buffered candidates
// and timers go with it. Terminal for that pair.
func (c *Coordinator) PeerLeft(remoteID string) {
	c.mu.Lock()
	link := c.links[remoteID]
	delete(c.links, remoteID)
	c.mu.Unlock()
	if link != nil {
		link.Close()
	}
}

// Close tears down every pair, synchronously. Used when the local
// participant leaves the room or loses its channel.
func (c *Coordinator) Close() {
	c.mu.Lock()
	links := make([]*Link, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}
	c.links = make(map[string]*Link)
	c.mu.Unlock()

	for _, l := range links {
		l.Close()
	}
}

// Link returns the pair state machine for a remote peer, or nil.
func (c *Coordinator) Link(remoteID string) *Link {
	return c.lookup(remoteID)
}

// ConnectedSnapshot recomputes per-pair transport connectivity. The mesh
// aggregator polls it defensively against missed events.
func (c *Coordinator) ConnectedSnapshot() map[string]bool {
	c.mu.Lock()
	links := make(map[string]*Link, len(c.links))
	for id, l := range c.links {
		links[id] = l
	}
	c.mu.Unlock()

	snapshot := make(map[string]bool, len(links))
	for id, l := range links {
		snapshot[id] = l.Connected()
	}
	return snapshot
}

func (c *Coordinator) lookup(remoteID string) *Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.links[remoteID]
}

// ensureLink returns the link for remoteID, creating it (and its engine) on
// first use. created reports whether this call created it.
func (c *Coordinator) ensureLink(remoteID string) (link *Link, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if link, ok := c.links[remoteID]; ok {
		return link, false
	}
	engine, err := c.newEngine(remoteID)
	if err != nil {
		c.log.WithField("peer", remoteID).WithError(err).Error("creating media engine failed")
		return nil, false
	}
	link = newLink(remoteID, engine, c.send, c.observer, c.opts, c.log)
	c.links[remoteID] = link
	return link, true
}
