package client

import (
	"sync"
	"testing"
	"time"

	"github.com/confmesh/confmesh/internal/protocol"
)

// With no pumps draining the queue, sends past capacity must drop instead
// of parking the caller: negotiation timers send with a pair's lock held.
func TestSendNeverBlocks(t *testing.T) {
	c := NewClient("ws://unused")

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < cap(c.outgoing)*2; i++ {
			c.Send(&protocol.Message{Type: protocol.TypeOffer})
		}
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked with a dead write pump")
	}
}

func TestSendAfterClose(t *testing.T) {
	c := NewClient("ws://unused")
	c.Close()
	c.Send(&protocol.Message{Type: protocol.TypeOffer})
}

func TestCloseConcurrent(t *testing.T) {
	c := NewClient("ws://unused")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()
}
