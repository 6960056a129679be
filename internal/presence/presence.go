// Package presence runs a lightweight heartbeat over a per-pair datachannel.
// The first heartbeat received from the remote side is proof the pair has
// exchanged live traffic, which the mesh status layer uses to compensate for
// transport-state APIs that lag behind actual usability.
package presence

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// ChannelLabel is the datachannel label used for heartbeats.
const ChannelLabel = "presence"

// DefaultInterval is the production heartbeat period.
const DefaultInterval = 5 * time.Second

// Heartbeat is one presence beacon.
type Heartbeat struct {
	Seq    uint64 `msgpack:"seq"`
	SentAt int64  `msgpack:"sentAt"`
}

// Encode serializes a heartbeat.
func Encode(hb Heartbeat) ([]byte, error) {
	return msgpack.Marshal(hb)
}

// Decode deserializes a heartbeat.
func Decode(b []byte) (Heartbeat, error) {
	var hb Heartbeat
	err := msgpack.Unmarshal(b, &hb)
	return hb, err
}

// Attach wires heartbeating onto a datachannel: beacons go out every
// interval once the channel opens, and onActive fires exactly once when the
// first remote beacon arrives.
func Attach(dc *webrtc.DataChannel, interval time.Duration, onActive func()) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	var activeOnce sync.Once
	done := make(chan struct{})
	var closeOnce sync.Once

	dc.OnOpen(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			var seq uint64
			for {
				select {
				case <-ticker.C:
					seq++
					b, err := Encode(Heartbeat{Seq: seq, SentAt: time.Now().UnixMilli()})
					if err != nil {
						continue
					}
					if err := dc.Send(b); err != nil {
						log.WithError(err).Debug("presence send failed")
						return
					}
				case <-done:
					return
				}
			}
		}()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if _, err := Decode(msg.Data); err != nil {
			log.WithError(err).Debug("malformed presence beacon, ignored")
			return
		}
		activeOnce.Do(onActive)
	})

	dc.OnClose(func() {
		closeOnce.Do(func() { close(done) })
	})
}
