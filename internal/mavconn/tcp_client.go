// internal/mavconn/tcp_client.go
package mavconn

import (
	"errors"
	"io"
	"net"
	"strconv"

	"go.uber.org/zap"
)

// tcpConfig holds the resolved TCP URL fields, server address for the
// client variant and bind address for the server variant
type tcpConfig struct {
	Host string
	Port int
}

// TCPClientConnection is the TCP client transport variant. A connect
// failure at construction is a hard error; reconnect policy belongs to the
// owner of the connection.
type TCPClientConnection struct {
	connBase
	conn net.Conn
}

// newTCPClientConnection dials the server and starts the read/write pumps
func newTCPClientConnection(cfg tcpConfig, ch int, sysID, compID uint8,
	registry *ChannelRegistry, reactor *Reactor, logger *zap.Logger) (*TCPClientConnection, error) {

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, wrapDeviceError("tcp", "failed to connect to "+addr, err)
	}

	c := &TCPClientConnection{
		connBase: newConnBase(ch, sysID, compID, registry, reactor, logger.With(
			zap.String("transport", "tcp"),
			zap.String("server", addr),
		)),
		conn: conn,
	}

	reactor.Register(ch, c.deliver)
	c.markOpen()

	go c.readPump()
	go c.writePump()

	c.logger.Info("TCP connection opened")
	return c, nil
}

// Send enqueues outbound bytes for the TCP writer
func (c *TCPClientConnection) Send(data []byte) error {
	return c.enqueue(data)
}

// Close closes the socket and releases the channel
func (c *TCPClientConnection) Close() error {
	return c.teardown(c.conn.Close)
}

// readPump blocks on the socket and feeds received bytes to the reactor.
// EOF means the peer closed the connection and moves the state to Closing;
// the owner is still responsible for the final Close.
func (c *TCPClientConnection) readPump() {
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.post(data)
		}
		if err != nil {
			if c.isOpen() {
				if errors.Is(err, io.EOF) {
					c.logger.Info("Peer closed connection")
				} else {
					c.logger.Warn("TCP read failed", zap.Error(err))
				}
				c.beginClosing()
			}
			return
		}
	}
}

// writePump drains the tx queue onto the socket
func (c *TCPClientConnection) writePump() {
	for {
		select {
		case data := <-c.txq:
			for len(data) > 0 {
				n, err := c.conn.Write(data)
				if err != nil {
					if c.isOpen() {
						c.logger.Warn("TCP write failed", zap.Error(err))
						c.beginClosing()
					}
					return
				}
				c.bytesSent.Add(uint64(n))
				data = data[n:]
			}
			c.msgsSent.Add(1)

		case <-c.writerQ:
			return
		}
	}
}
