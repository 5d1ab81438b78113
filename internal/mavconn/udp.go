// internal/mavconn/udp.go
package mavconn

import (
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// udpConfig holds the resolved UDP URL fields. An empty RemoteHost means the
// peer is not known yet and is learned from the first inbound datagram.
type udpConfig struct {
	BindHost   string
	BindPort   int
	RemoteHost string
	RemotePort int
}

// UDPConnection is the UDP transport variant. One socket serves both
// directions.
type UDPConnection struct {
	connBase
	sock *net.UDPConn

	remoteMu sync.Mutex
	remote   *net.UDPAddr
}

// newUDPConnection binds the local socket, optionally fixes the remote
// target and starts the read/write pumps
func newUDPConnection(cfg udpConfig, ch int, sysID, compID uint8,
	registry *ChannelRegistry, reactor *Reactor, logger *zap.Logger) (*UDPConnection, error) {

	bindAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.BindHost, strconv.Itoa(cfg.BindPort)))
	if err != nil {
		return nil, wrapDeviceError("udp", "failed to resolve bind address", err)
	}

	sock, err := net.ListenUDP("udp", bindAddr)
	if err != nil {
		return nil, wrapDeviceError("udp", "failed to bind "+bindAddr.String(), err)
	}

	c := &UDPConnection{
		connBase: newConnBase(ch, sysID, compID, registry, reactor, logger.With(
			zap.String("transport", "udp"),
			zap.String("bind", sock.LocalAddr().String()),
		)),
		sock: sock,
	}

	if cfg.RemoteHost != "" {
		remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.RemoteHost, strconv.Itoa(cfg.RemotePort)))
		if err != nil {
			sock.Close()
			return nil, wrapDeviceError("udp", "failed to resolve remote address", err)
		}
		c.remote = remote
	}

	reactor.Register(ch, c.deliver)
	c.markOpen()

	go c.readPump()
	go c.writePump()

	c.logger.Info("UDP connection opened",
		zap.String("remote_host", cfg.RemoteHost),
		zap.Int("remote_port", cfg.RemotePort),
	)
	return c, nil
}

// Send enqueues an outbound datagram
func (c *UDPConnection) Send(data []byte) error {
	return c.enqueue(data)
}

// Close closes the socket and releases the channel
func (c *UDPConnection) Close() error {
	return c.teardown(c.sock.Close)
}

// LocalAddr returns the bound local address
func (c *UDPConnection) LocalAddr() net.Addr {
	return c.sock.LocalAddr()
}

// remoteAddr returns the current remote target, nil when not yet known
func (c *UDPConnection) remoteAddr() *net.UDPAddr {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	return c.remote
}

// readPump receives datagrams and feeds them to the reactor. When no remote
// target was configured, the peer address is learned from the first inbound
// datagram and used for subsequent replies.
func (c *UDPConnection) readPump() {
	buf := make([]byte, 65536)
	for {
		n, src, err := c.sock.ReadFromUDP(buf)
		if n > 0 {
			c.remoteMu.Lock()
			if c.remote == nil {
				c.remote = src
				c.logger.Info("Remote peer discovered", zap.String("remote", src.String()))
			}
			c.remoteMu.Unlock()

			data := make([]byte, n)
			copy(data, buf[:n])
			c.post(data)
		}
		if err != nil {
			if c.isOpen() {
				c.logger.Warn("UDP read failed", zap.Error(err))
				c.beginClosing()
			}
			return
		}
	}
}

// writePump drains the tx queue onto the socket. Datagrams queued before a
// remote target is known are dropped.
func (c *UDPConnection) writePump() {
	for {
		select {
		case data := <-c.txq:
			remote := c.remoteAddr()
			if remote == nil {
				c.logger.Warn("No remote endpoint yet, dropping datagram", zap.Int("bytes", len(data)))
				continue
			}

			n, err := c.sock.WriteToUDP(data, remote)
			if err != nil {
				if c.isOpen() {
					c.logger.Warn("UDP write failed", zap.Error(err))
					c.beginClosing()
				}
				return
			}
			c.bytesSent.Add(uint64(n))
			c.msgsSent.Add(1)

		case <-c.writerQ:
			return
		}
	}
}
