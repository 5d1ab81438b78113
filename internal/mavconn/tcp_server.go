// internal/mavconn/tcp_server.go
package mavconn

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// TCPServerConnection is the TCP server transport variant. It listens on
// the bind address and serves one active peer at a time; a reconnecting
// peer replaces the previous one.
type TCPServerConnection struct {
	connBase
	listener net.Listener

	peerMu sync.Mutex
	peer   net.Conn
}

// newTCPServerConnection binds the listener and starts the accept loop and
// the write pump
func newTCPServerConnection(cfg tcpConfig, ch int, sysID, compID uint8,
	registry *ChannelRegistry, reactor *Reactor, logger *zap.Logger) (*TCPServerConnection, error) {

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, wrapDeviceError("tcp", "failed to bind "+addr, err)
	}

	c := &TCPServerConnection{
		connBase: newConnBase(ch, sysID, compID, registry, reactor, logger.With(
			zap.String("transport", "tcp-l"),
			zap.String("bind", listener.Addr().String()),
		)),
		listener: listener,
	}

	reactor.Register(ch, c.deliver)
	c.markOpen()

	go c.acceptLoop()
	go c.writePump()

	c.logger.Info("TCP server listening")
	return c, nil
}

// Send enqueues outbound bytes for the active peer
func (c *TCPServerConnection) Send(data []byte) error {
	return c.enqueue(data)
}

// Close closes the listener and the active peer, then releases the channel
func (c *TCPServerConnection) Close() error {
	return c.teardown(func() error {
		err := c.listener.Close()
		c.peerMu.Lock()
		if c.peer != nil {
			c.peer.Close()
			c.peer = nil
		}
		c.peerMu.Unlock()
		return err
	})
}

// LocalAddr returns the bound listener address
func (c *TCPServerConnection) LocalAddr() net.Addr {
	return c.listener.Addr()
}

// acceptLoop accepts peers; a new peer replaces the current one
func (c *TCPServerConnection) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if c.isOpen() {
				c.logger.Warn("Accept failed", zap.Error(err))
				c.beginClosing()
			}
			return
		}

		c.peerMu.Lock()
		if c.peer != nil {
			c.logger.Info("Replacing active peer", zap.String("old_peer", c.peer.RemoteAddr().String()))
			c.peer.Close()
		}
		c.peer = conn
		c.peerMu.Unlock()

		c.logger.Info("Client connected", zap.String("peer", conn.RemoteAddr().String()))
		go c.readPump(conn)
	}
}

// currentPeer returns the active peer connection, nil when none
func (c *TCPServerConnection) currentPeer() net.Conn {
	c.peerMu.Lock()
	defer c.peerMu.Unlock()
	return c.peer
}

// clearPeer drops conn as the active peer if it still is
func (c *TCPServerConnection) clearPeer(conn net.Conn) {
	c.peerMu.Lock()
	if c.peer == conn {
		c.peer = nil
	}
	c.peerMu.Unlock()
}

// readPump serves one peer until it disconnects. The server stays open and
// keeps accepting after a peer goes away.
func (c *TCPServerConnection) readPump(conn net.Conn) {
	defer c.clearPeer(conn)

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.post(data)
		}
		if err != nil {
			if c.isOpen() && errors.Is(err, io.EOF) {
				c.logger.Info("Peer disconnected", zap.String("peer", conn.RemoteAddr().String()))
			}
			return
		}
	}
}

// writePump drains the tx queue onto the active peer. Data queued while no
// peer is connected is dropped.
func (c *TCPServerConnection) writePump() {
	for {
		select {
		case data := <-c.txq:
			peer := c.currentPeer()
			if peer == nil {
				c.logger.Warn("No active peer, dropping message", zap.Int("bytes", len(data)))
				continue
			}

			sent := len(data)
			for len(data) > 0 {
				n, err := peer.Write(data)
				if err != nil {
					c.logger.Warn("TCP write failed, dropping peer", zap.Error(err))
					peer.Close()
					c.clearPeer(peer)
					break
				}
				c.bytesSent.Add(uint64(n))
				data = data[n:]
			}
			if len(data) == 0 && sent > 0 {
				c.msgsSent.Add(1)
			}

		case <-c.writerQ:
			return
		}
	}
}
