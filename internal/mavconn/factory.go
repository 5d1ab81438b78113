// internal/mavconn/factory.go
package mavconn

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Factory opens MAVLink connections from URL descriptors. It owns no global
// state: the channel registry and shared reactor are injected, so tests can
// run against fresh instances.
type Factory struct {
	registry *ChannelRegistry
	reactor  *Reactor
	logger   *zap.Logger
}

// NewFactory creates a connection factory using the given registry and
// reactor
func NewFactory(registry *ChannelRegistry, reactor *Reactor, logger *zap.Logger) *Factory {
	return &Factory{
		registry: registry,
		reactor:  reactor,
		logger:   logger.With(zap.String("component", "mavconn")),
	}
}

// Open parses a connection URL and constructs the matching transport with a
// freshly allocated channel. Supported schemes are serial, udp, tcp (client)
// and tcp-l (server); a URL without "://" is shorthand for a serial device
// path. The caller-supplied identity is used unless the URL query overrides
// it with ids=SYS,COMP.
//
// The reactor is started lazily on the first Open. If transport construction
// fails after the channel was allocated, the channel is freed before the
// error is returned.
func (f *Factory) Open(url string, sysID, compID uint8) (Connection, error) {
	f.reactor.Start()

	scheme, host, path, query, ok := splitURL(url)
	if !ok {
		// looks like a bare device path
		f.logger.Debug("URL looks like file path", zap.String("url", url))
		return f.openSerial(url, "", sysID, compID)
	}

	f.logger.Debug("Opening URL",
		zap.String("url", url),
		zap.String("scheme", scheme),
		zap.String("host", host),
		zap.String("path", path),
		zap.String("query", query),
	)

	switch scheme {
	case "serial":
		return f.openSerial(path, query, sysID, compID)
	case "udp":
		return f.openUDP(host, query, sysID, compID)
	case "tcp":
		return f.openTCPClient(host, query, sysID, compID)
	case "tcp-l":
		return f.openTCPServer(host, query, sysID, compID)
	default:
		return nil, newDeviceError("url", "Unknown URL type")
	}
}

// openSerial resolves serial URL fields and constructs the transport
func (f *Factory) openSerial(path, query string, sysID, compID uint8) (Connection, error) {
	device, baud, err := parseHostPort(path, defaultSerialDevice, defaultSerialBaud)
	if err != nil {
		return nil, err
	}
	if baud <= 0 {
		return nil, newDeviceError("url", "invalid baudrate "+strconv.Itoa(baud))
	}
	parseQueryIDs(query, &sysID, &compID, f.logger)

	return f.construct(sysID, compID, func(ch int, logger *zap.Logger) (Connection, error) {
		return newSerialConnection(serialConfig{Device: device, Baud: baud},
			ch, sysID, compID, f.registry, f.reactor, logger)
	})
}

// openUDP resolves UDP URL fields and constructs the transport. The host
// token must carry a bind side and a remote side separated by '@'; an empty
// remote host means the peer is learned from the first inbound datagram.
func (f *Factory) openUDP(hosts, query string, sysID, compID uint8) (Connection, error) {
	sep := strings.IndexByte(hosts, '@')
	if sep < 0 {
		f.logger.Error("UDP URL should contain @", zap.String("hosts", hosts))
		return nil, newDeviceError("url", "UDP separator not found")
	}

	bindHost, bindPort, err := parseHostPort(hosts[:sep], defaultUDPBindHost, defaultUDPBindPort)
	if err != nil {
		return nil, err
	}
	remoteHost, remotePort, err := parseHostPort(hosts[sep+1:], "", defaultUDPRemotePort)
	if err != nil {
		return nil, err
	}
	parseQueryIDs(query, &sysID, &compID, f.logger)

	return f.construct(sysID, compID, func(ch int, logger *zap.Logger) (Connection, error) {
		return newUDPConnection(udpConfig{
			BindHost:   bindHost,
			BindPort:   bindPort,
			RemoteHost: remoteHost,
			RemotePort: remotePort,
		}, ch, sysID, compID, f.registry, f.reactor, logger)
	})
}

// openTCPClient resolves TCP client URL fields and constructs the transport
func (f *Factory) openTCPClient(host, query string, sysID, compID uint8) (Connection, error) {
	serverHost, serverPort, err := parseHostPort(host, defaultTCPHost, defaultTCPPort)
	if err != nil {
		return nil, err
	}
	parseQueryIDs(query, &sysID, &compID, f.logger)

	return f.construct(sysID, compID, func(ch int, logger *zap.Logger) (Connection, error) {
		return newTCPClientConnection(tcpConfig{Host: serverHost, Port: serverPort},
			ch, sysID, compID, f.registry, f.reactor, logger)
	})
}

// openTCPServer resolves TCP server URL fields and constructs the transport
func (f *Factory) openTCPServer(host, query string, sysID, compID uint8) (Connection, error) {
	bindHost, bindPort, err := parseHostPort(host, defaultTCPBindHost, defaultTCPBindPort)
	if err != nil {
		return nil, err
	}
	parseQueryIDs(query, &sysID, &compID, f.logger)

	return f.construct(sysID, compID, func(ch int, logger *zap.Logger) (Connection, error) {
		return newTCPServerConnection(tcpConfig{Host: bindHost, Port: bindPort},
			ch, sysID, compID, f.registry, f.reactor, logger)
	})
}

// construct allocates a channel and builds the transport, freeing the
// channel again if construction fails. A half-open connection is never
// returned to the caller.
func (f *Factory) construct(sysID, compID uint8, build func(ch int, logger *zap.Logger) (Connection, error)) (Connection, error) {
	ch, err := f.registry.Allocate()
	if err != nil {
		return nil, err
	}

	logger := f.logger.With(
		zap.Int("channel", ch),
		zap.Uint8("system_id", sysID),
		zap.Uint8("component_id", compID),
	)

	conn, err := build(ch, logger)
	if err != nil {
		f.registry.Free(ch)
		return nil, err
	}
	return conn, nil
}
