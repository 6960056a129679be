package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatRoundTrip(t *testing.T) {
	sent := Heartbeat{Seq: 7, SentAt: time.Now().UnixMilli()}

	b, err := Encode(sent)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("\xff\xff not msgpack"))
	assert.Error(t, err)
}
