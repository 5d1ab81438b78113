// internal/mavconn/serial.go
package mavconn

import (
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// serialConfig holds the resolved serial URL fields
type serialConfig struct {
	Device string
	Baud   int
}

// SerialConnection is the serial port transport variant
type SerialConnection struct {
	connBase
	port serial.Port
}

// newSerialConnection opens the device at the given baud rate and starts the
// read/write pumps. The connection is returned already in the Open state.
func newSerialConnection(cfg serialConfig, ch int, sysID, compID uint8,
	registry *ChannelRegistry, reactor *Reactor, logger *zap.Logger) (*SerialConnection, error) {

	mode := &serial.Mode{
		BaudRate: cfg.Baud,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, wrapDeviceError("serial", "failed to open "+cfg.Device, err)
	}

	c := &SerialConnection{
		connBase: newConnBase(ch, sysID, compID, registry, reactor, logger.With(
			zap.String("transport", "serial"),
			zap.String("device", cfg.Device),
		)),
		port: port,
	}

	reactor.Register(ch, c.deliver)
	c.markOpen()

	go c.readPump()
	go c.writePump()

	c.logger.Info("Serial connection opened", zap.Int("baud_rate", cfg.Baud))
	return c, nil
}

// Send enqueues outbound bytes for the serial writer
func (c *SerialConnection) Send(data []byte) error {
	return c.enqueue(data)
}

// Close closes the device and releases the channel
func (c *SerialConnection) Close() error {
	return c.teardown(c.port.Close)
}

// readPump blocks on the device and feeds received bytes to the reactor
func (c *SerialConnection) readPump() {
	buf := make([]byte, 4096)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.post(data)
		}
		if err != nil {
			if c.isOpen() {
				c.logger.Warn("Serial read failed", zap.Error(err))
				c.beginClosing()
			}
			return
		}
	}
}

// writePump drains the tx queue onto the device, finishing partial writes
// when the OS send buffer is full
func (c *SerialConnection) writePump() {
	for {
		select {
		case data := <-c.txq:
			for len(data) > 0 {
				n, err := c.port.Write(data)
				if err != nil {
					if c.isOpen() {
						c.logger.Warn("Serial write failed", zap.Error(err))
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
