// internal/mavconn/connection.go
package mavconn

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ReceiveFunc is invoked for every inbound chunk of framed protocol bytes.
// It runs on the reactor goroutine and must return promptly; deframing into
// typed messages is the caller's responsibility.
type ReceiveFunc func(channel int, data []byte)

// Connection is the contract every transport variant satisfies. A live
// connection owns exactly one channel ID, one endpoint identity and one
// underlying OS transport resource.
type Connection interface {
	// Send enqueues outbound framed protocol bytes. It never blocks the
	// caller: the data is queued for the transport's writer and an error is
	// returned if the connection is no longer open or the queue is full.
	Send(data []byte) error

	// SetReceiveCallback registers the callback invoked with the channel ID
	// and raw received bytes. Callbacks run on the reactor goroutine.
	SetReceiveCallback(fn ReceiveFunc)

	// Channel returns the MAVLink channel ID held by this connection
	Channel() int

	// SystemID returns the system ID of the endpoint identity
	SystemID() uint8

	// ComponentID returns the component ID of the endpoint identity
	ComponentID() uint8

	// Stats returns a snapshot of link statistics
	Stats() Stats

	// NoteParseError records a framing/CRC failure observed by the
	// collaborator deframing this connection's byte stream.
	NoteParseError()

	// Close shuts the connection down: it closes the OS resource,
	// deregisters from the reactor and frees the channel ID exactly once.
	// Safe to call multiple times and concurrently with inbound callbacks.
	Close() error
}

// Stats provides link-level statistics for observability
type Stats struct {
	BytesSent        uint64 `json:"bytes_sent"`
	BytesReceived    uint64 `json:"bytes_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	ParseErrors      uint64 `json:"parse_errors"`
}

// connState tracks the connection lifecycle
type connState int32

const (
	stateConstructing connState = iota
	stateOpen
	stateClosing
	stateClosed
)

// txQueueLen bounds the per-connection outbound queue
const txQueueLen = 256

// connBase carries the state shared by all transport variants: channel
// ownership, endpoint identity, outbound queue, statistics counters and the
// close-exactly-once guarantee.
type connBase struct {
	channel  int
	sysID    uint8
	compID   uint8
	registry *ChannelRegistry
	reactor  *Reactor
	logger   *zap.Logger

	mu       sync.Mutex
	state    connState
	callback ReceiveFunc

	txq     chan []byte
	writerQ chan struct{}

	closeOnce sync.Once

	bytesSent   atomic.Uint64
	bytesRecv   atomic.Uint64
	msgsSent    atomic.Uint64
	msgsRecv    atomic.Uint64
	parseErrors atomic.Uint64
}

// newConnBase initializes the shared connection state in Constructing
func newConnBase(channel int, sysID, compID uint8, registry *ChannelRegistry, reactor *Reactor, logger *zap.Logger) connBase {
	return connBase{
		channel:  channel,
		sysID:    sysID,
		compID:   compID,
		registry: registry,
		reactor:  reactor,
		logger:   logger,
		state:    stateConstructing,
		txq:      make(chan []byte, txQueueLen),
		writerQ:  make(chan struct{}),
	}
}

// Channel returns the MAVLink channel ID held by this connection
func (c *connBase) Channel() int { return c.channel }

// SystemID returns the system ID of the endpoint identity
func (c *connBase) SystemID() uint8 { return c.sysID }

// ComponentID returns the component ID of the endpoint identity
func (c *connBase) ComponentID() uint8 { return c.compID }

// SetReceiveCallback registers the inbound data callback
func (c *connBase) SetReceiveCallback(fn ReceiveFunc) {
	c.mu.Lock()
	c.callback = fn
	c.mu.Unlock()
}

// deliver hands received bytes to the registered callback. Runs on the
// reactor goroutine.
func (c *connBase) deliver(channel int, data []byte) {
	c.mu.Lock()
	fn := c.callback
	c.mu.Unlock()

	c.msgsRecv.Add(1)
	if fn != nil {
		fn(channel, data)
	}
}

// post records received bytes and forwards them to the reactor. A pump can
// finish a read concurrently with Close; once the connection left the Open
// state the bytes are dropped here, so a channel ID reallocated after
// teardown never sees them.
func (c *connBase) post(data []byte) {
	c.mu.Lock()
	open := c.state == stateOpen
	c.mu.Unlock()

	if !open {
		return
	}
	c.bytesRecv.Add(uint64(len(data)))
	c.reactor.Post(c.channel, data)
}

// NoteParseError records a framing/CRC failure reported by the deframer
func (c *connBase) NoteParseError() {
	c.parseErrors.Add(1)
}

// Stats returns a snapshot of link statistics
func (c *connBase) Stats() Stats {
	return Stats{
		BytesSent:        c.bytesSent.Load(),
		BytesReceived:    c.bytesRecv.Load(),
		MessagesSent:     c.msgsSent.Load(),
		MessagesReceived: c.msgsRecv.Load(),
		ParseErrors:      c.parseErrors.Load(),
	}
}

// markOpen transitions Constructing -> Open
func (c *connBase) markOpen() {
	c.mu.Lock()
	c.state = stateOpen
	c.mu.Unlock()
}

// beginClosing transitions to Closing unless already closed. Used by
// transports when the link fails at runtime (peer disconnect, I/O error);
// the connection is not torn down automatically, the owner still closes it.
func (c *connBase) beginClosing() {
	c.mu.Lock()
	if c.state == stateOpen {
		c.state = stateClosing
	}
	c.mu.Unlock()
}

// isOpen reports whether the connection accepts traffic
func (c *connBase) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// enqueue queues outbound bytes for the transport writer without blocking
func (c *connBase) enqueue(data []byte) error {
	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return newDeviceError("send", "connection is not open")
	}
	c.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case c.txq <- buf:
		return nil
	default:
		return newDeviceError("send", "tx queue full")
	}
}

// teardown runs the close-exactly-once path shared by all transports.
// closeResource must close the underlying OS handle(s) and unblock any
// pending reads. The reactor deregistration completes before the channel ID
// is freed, so a reused channel can never receive stale callbacks.
func (c *connBase) teardown(closeResource func() error) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosing
		c.mu.Unlock()

		close(c.writerQ)
		err = closeResource()

		c.reactor.Deregister(c.channel)
		c.registry.Free(c.channel)

		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()

		c.logger.Info("Connection closed", zap.Int("channel", c.channel))
	})
	return err
}
