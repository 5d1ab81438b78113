// internal/mavconn/connection_test.go
package mavconn

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestPostDroppedAfterTeardown covers the window between a blocking read
// returning and the received bytes reaching the reactor: if the connection is
// torn down in between, the bytes must not be delivered on the channel ID,
// which may already belong to a new connection.
func TestPostDroppedAfterTeardown(t *testing.T) {
	logger := zap.NewNop()
	registry := NewChannelRegistry(logger)
	reactor := NewReactor(logger)
	reactor.Start()
	t.Cleanup(reactor.Stop)

	ch, err := registry.Allocate()
	require.NoError(t, err)

	old := newConnBase(ch, 1, 240, registry, reactor, logger)
	reactor.Register(ch, old.deliver)
	old.markOpen()

	var delivered atomic.Uint64
	old.SetReceiveCallback(func(channel int, data []byte) {
		delivered.Add(uint64(len(data)))
	})

	old.post([]byte{0xaa, 0xbb})
	require.Eventually(t, func() bool {
		return delivered.Load() == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, old.teardown(func() error { return nil }))

	// the channel ID is free again and gets a new holder
	reused, err := registry.Allocate()
	require.NoError(t, err)
	require.Equal(t, ch, reused)

	next := newConnBase(reused, 1, 240, registry, reactor, logger)
	reactor.Register(reused, next.deliver)
	next.markOpen()

	var stale atomic.Uint64
	next.SetReceiveCallback(func(channel int, data []byte) {
		stale.Add(1)
	})

	// a descheduled pump posting after teardown must be a no-op
	old.post([]byte{0xcc})

	next.post([]byte{0x01})
	require.Eventually(t, func() bool {
		return next.Stats().MessagesReceived == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, uint64(1), stale.Load(), "only the new holder's own bytes may arrive")
	assert.Equal(t, uint64(2), old.Stats().BytesReceived, "bytes posted after teardown are not counted")

	require.NoError(t, next.teardown(func() error { return nil }))
}
