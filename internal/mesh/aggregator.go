// Package mesh aggregates per-pair connectivity into room-level health: how
// many of the local participant's peer links are currently usable.
package mesh

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval and DefaultMaxPolls bound the defensive recompute
// loop: poll once a second, give up after 30 ticks if nothing ever connects.
const (
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 30
)

// Snapshot recomputes per-pair transport connectivity from the source of
// truth (the negotiation coordinator).
type Snapshot func() map[string]bool

// Aggregator tracks which peer pairs count as connected. A pair counts if
// its transport reports connected, or if it has demonstrably exchanged live
// traffic at least once, since transport-state APIs can lag behind usability.
//
// It implements the negotiation observer interface; a bounded poll loop
// additionally recomputes state defensively against missed notifications.
// The poll is a resilience mechanism, not the source of truth.
type Aggregator struct {
	snapshot Snapshot
	log      *log.Entry

	mu        sync.Mutex
	connected map[string]bool
	mediaSeen map[string]bool
	stable    bool
	pollStop  chan struct{}
}

// New builds an aggregator over the given snapshot function (may be nil,
// which disables polling recomputes).
func New(snapshot Snapshot) *Aggregator {
	return &Aggregator{
		snapshot:  snapshot,
		log:       log.WithField("src", "mesh"),
		connected: make(map[string]bool),
		mediaSeen: make(map[string]bool),
	}
}

// BindSnapshot sets the snapshot source after construction. The aggregator
// and the coordinator reference each other, so one of the two hooks up late.
func (a *Aggregator) BindSnapshot(snapshot Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = snapshot
}

// ConnectedCount returns the number of peer pairs currently considered
// connected.
func (a *Aggregator) ConnectedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.countLocked()
}

// TransportStateChanged records a transport transition for a pair.
func (a *Aggregator) TransportStateChanged(remoteID string, connected bool) {
	a.mu.Lock()
	a.connected[remoteID] = connected
	count := a.countLocked()
	a.mu.Unlock()
	a.log.WithFields(log.Fields{"peer": remoteID, "connected": connected, "total": count}).
		Debug("transport state recorded")
}

// MediaActive records that a pair exchanged live traffic at least once.
func (a *Aggregator) MediaActive(remoteID string) {
	a.mu.Lock()
	a.mediaSeen[remoteID] = true
	a.mu.Unlock()
}

// StabilityConfirmed marks the mesh stable; the defensive poll stands down.
func (a *Aggregator) StabilityConfirmed(remoteID string) {
	a.mu.Lock()
	a.stable = true
	a.mu.Unlock()
	a.log.WithField("peer", remoteID).Debug("stability confirmed, stopping poll")
	a.StopPolling()
}

// PairClosed forgets a torn-down pair.
func (a *Aggregator) PairClosed(remoteID string) {
	a.mu.Lock()
	delete(a.connected, remoteID)
	delete(a.mediaSeen, remoteID)
	a.mu.Unlock()
}

// StartPolling begins the bounded defensive recompute loop. Zero values
// select the defaults. Starting an already-polling aggregator is a no-op.
func (a *Aggregator) StartPolling(interval time.Duration, maxPolls int) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}

	a.mu.Lock()
	if a.pollStop != nil || a.snapshot == nil {
		a.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	a.pollStop = stop
	a.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for tick := 0; tick < maxPolls; tick++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
				a.recompute()
				a.mu.Lock()
				done := a.stable
				a.mu.Unlock()
				if done {
					a.StopPolling()
					return
				}
			}
		}
		a.log.Debug("poll limit reached, standing down")
		a.StopPolling()
	}()
}

// StopPolling halts the defensive poll. Idempotent.
func (a *Aggregator) StopPolling() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pollStop != nil {
		close(a.pollStop)
		a.pollStop = nil
	}
}

// recompute folds a fresh snapshot over the event-derived state. Media-seen
// flags are sticky; transport flags take the snapshot's word.
func (a *Aggregator) recompute() {
	a.mu.Lock()
	snapshot := a.snapshot
	a.mu.Unlock()
	if snapshot == nil {
		return
	}
	snap := snapshot()
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, connected := range snap {
		a.connected[id] = connected
	}
	for id := range a.connected {
		if _, live := snap[id]; !live {
			delete(a.connected, id)
			delete(a.mediaSeen, id)
		}
	}
}

func (a *Aggregator) countLocked() int {
	n := 0
	seen := make(map[string]bool, len(a.connected)+len(a.mediaSeen))
	for id, c := range a.connected {
		if c || a.mediaSeen[id] {
			n++
		}
		seen[id] = true
	}
	for id := range a.mediaSeen {
		if !seen[id] {
			n++
		}
	}
	return n
}
