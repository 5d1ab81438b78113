// internal/mavconn/url.go
package mavconn

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Per-scheme defaults of the connection URL grammar:
//
//	serial:///dev/ttyACM0:57600
//	udp://0.0.0.0:14555@:14550
//	tcp://localhost:5760
//	tcp-l://0.0.0.0:5760
const (
	defaultSerialDevice = "/dev/ttyACM0"
	defaultSerialBaud   = 57600

	defaultUDPBindHost   = "0.0.0.0"
	defaultUDPBindPort   = 14555
	defaultUDPRemotePort = 14550

	defaultTCPHost = "localhost"
	defaultTCPPort = 5760

	defaultTCPBindHost = "0.0.0.0"
	defaultTCPBindPort = 5760
)

const schemeSep = "://"

// splitURL splits a connection URL into scheme, host, path and query.
// Scheme and host are lower-cased; path and query are left untouched since
// device paths are case-sensitive. ok is false when the input has no "://"
// separator, which callers treat as a bare serial device path.
func splitURL(url string) (scheme, host, path, query string, ok bool) {
	sep := strings.Index(url, schemeSep)
	if sep < 0 {
		return "", "", "", "", false
	}

	scheme = strings.ToLower(url[:sep])
	rest := url[sep+len(schemeSep):]

	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		host = strings.ToLower(rest[:slash])
		rest = rest[slash:]
	} else {
		host = strings.ToLower(rest)
		rest = ""
	}

	if q := strings.IndexByte(rest, '?'); q >= 0 {
		path = rest[:q]
		query = rest[q+1:]
	} else {
		path = rest
	}

	return scheme, host, path, query, true
}

// parseHostPort resolves a "host[:port]" token against defaults:
//
//	""           -> (defHost, defPort)
//	"host"       -> (host, defPort)
//	":port"      -> (defHost, port)
//	"host:port"  -> (host, port)
//
// The port is read as the leading decimal digits of the token; trailing
// non-digits are ignored, so "host:5760?ids=2,3" still resolves to 5760 when
// the query rides along inside the host segment. A port with no leading
// digits is a hard error for the connection attempt.
func parseHostPort(token, defHost string, defPort int) (string, int, error) {
	sep := strings.IndexByte(token, ':')
	if sep < 0 {
		if token == "" {
			return defHost, defPort, nil
		}
		return token, defPort, nil
	}

	host := token[:sep]
	if host == "" {
		host = defHost
	}

	port, err := atoiPrefix(token[sep+1:])
	if err != nil {
		return "", 0, wrapDeviceError("url", "invalid port in "+strconv.Quote(token), err)
	}

	return host, port, nil
}

// atoiPrefix parses the leading decimal digits of s
func atoiPrefix(s string) (int, error) {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == 0 {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(s[:n])
}

// parseQueryIDs resolves an optional "ids=SYS,COMP" query, overriding the
// caller-supplied endpoint identity in place. Malformed queries are
// tolerated: the problem is logged and the identity stays at its defaults,
// so the connection attempt still proceeds.
func parseQueryIDs(query string, sysID, compID *uint8, logger *zap.Logger) {
	if query == "" {
		return
	}

	idx := strings.Index(query, "ids=")
	if idx < 0 {
		logger.Warn("URL: unknown query arguments", zap.String("query", query))
		return
	}

	ids := query[idx+len("ids="):]
	comma := strings.IndexByte(ids, ',')
	if comma < 0 {
		logger.Error("URL: no comma in ids= query", zap.String("query", query))
		return
	}

	sys, err := strconv.ParseUint(ids[:comma], 10, 8)
	if err != nil {
		logger.Error("URL: bad system id in ids= query", zap.String("query", query), zap.Error(err))
		return
	}
	comp, err := strconv.ParseUint(ids[comma+1:], 10, 8)
	if err != nil {
		logger.Error("URL: bad component id in ids= query", zap.String("query", query), zap.Error(err))
		return
	}

	*sysID = uint8(sys)
	*compID = uint8(comp)

	logger.Debug("URL: found system/component id",
		zap.Uint8("system_id", *sysID),
		zap.Uint8("component_id", *compID),
	)
}
