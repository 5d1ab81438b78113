// internal/mavconn/channel.go
package mavconn

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MaxChannels is the number of concurrent protocol channels supported by
// the MAVLink framing layer (MAVLINK_COMM_NUM_BUFFERS).
const MaxChannels = 16

// ChannelRegistry manages the pool of MAVLink channel IDs. Every open
// connection holds exactly one ID; an ID becomes reusable only after the
// owning connection frees it. Safe for concurrent use.
type ChannelRegistry struct {
	mu     sync.Mutex
	used   [MaxChannels]bool
	logger *zap.Logger
}

// NewChannelRegistry creates an empty channel registry
func NewChannelRegistry(logger *zap.Logger) *ChannelRegistry {
	return &ChannelRegistry{
		logger: logger.With(zap.String("component", "channel_registry")),
	}
}

// Allocate reserves the lowest unused channel ID. It returns
// ErrChannelsExhausted when all IDs are in use.
func (r *ChannelRegistry) Allocate() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ch := 0; ch < MaxChannels; ch++ {
		if !r.used[ch] {
			r.used[ch] = true
			r.logger.Debug("Allocated channel", zap.Int("channel", ch))
			return ch, nil
		}
	}

	r.logger.Error("Channel overrun", zap.Int("max_channels", MaxChannels))
	return -1, ErrChannelsExhausted
}

// Free releases a previously allocated channel ID. Freeing an ID that is
// not currently held is a programming error and panics: callers must
// guarantee at most one Free per Allocate.
func (r *ChannelRegistry) Free(ch int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch < 0 || ch >= MaxChannels || !r.used[ch] {
		panic(fmt.Sprintf("mavconn: free of unallocated channel %d", ch))
	}

	r.used[ch] = false
	r.logger.Debug("Freed channel", zap.Int("channel", ch))
}

// Available returns the number of channel IDs not currently in use
func (r *ChannelRegistry) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for ch := 0; ch < MaxChannels; ch++ {
		if !r.used[ch] {
			n++
		}
	}
	return n
}
