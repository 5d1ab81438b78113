// internal/mavconn/tcp_test.go
package mavconn

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTCPPair opens a tcp-l server and a tcp client connected to it
func openTCPPair(t *testing.T, f *Factory) (server, client Connection) {
	t.Helper()

	server, err := f.Open("tcp-l://127.0.0.1:0", 1, 240)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	addr := server.(*TCPServerConnection).LocalAddr().String()
	client, err = f.Open("tcp://"+addr, 2, 200)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return server, client
}

func TestTCPRoundTrip(t *testing.T) {
	f, _ := newTestFactory(t)
	server, client := openTCPPair(t, f)

	serverGot := make(chan []byte, 8)
	server.SetReceiveCallback(func(ch int, data []byte) {
		assert.Equal(t, server.Channel(), ch)
		serverGot <- data
	})
	clientGot := make(chan []byte, 8)
	client.SetReceiveCallback(func(ch int, data []byte) {
		clientGot <- data
	})

	require.NoError(t, client.Send([]byte{0xfe, 0x09, 0x01, 0x02}))

	select {
	case data := <-serverGot:
		assert.Equal(t, []byte{0xfe, 0x09, 0x01, 0x02}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive data")
	}

	// server replies to the active peer once the accept completed
	require.Eventually(t, func() bool {
		if err := server.Send([]byte{0xfd, 0x05}); err != nil {
			return false
		}
		select {
		case <-clientGot:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.GreaterOrEqual(t, client.Stats().MessagesSent, uint64(1))
	assert.Equal(t, uint64(4), client.Stats().BytesSent)

	// parse errors are reported by the deframing collaborator
	client.NoteParseError()
	assert.Equal(t, uint64(1), client.Stats().ParseErrors)
}

func TestTCPServerReplacesPeer(t *testing.T) {
	f, _ := newTestFactory(t)
	server, first := openTCPPair(t, f)

	serverGot := make(chan []byte, 8)
	server.SetReceiveCallback(func(ch int, data []byte) {
		serverGot <- data
	})

	// wait until the first peer is fully accepted
	require.NoError(t, first.Send([]byte{0x01}))
	select {
	case <-serverGot:
	case <-time.After(2 * time.Second):
		t.Fatal("first peer never reached the server")
	}

	// a reconnecting peer replaces the previous one
	addr := server.(*TCPServerConnection).LocalAddr().String()
	second, err := f.Open("tcp://"+addr, 3, 100)
	require.NoError(t, err)
	defer second.Close()

	require.Eventually(t, func() bool {
		if err := second.Send([]byte{0x02}); err != nil {
			return false
		}
		select {
		case data := <-serverGot:
			return len(data) == 1 && data[0] == 0x02
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	// the replaced peer was closed by the server; its send path degrades
	require.Eventually(t, func() bool {
		return first.Send([]byte{0x03}) != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTCPClientObservesPeerClose(t *testing.T) {
	f, _ := newTestFactory(t)
	server, client := openTCPPair(t, f)

	// ensure the link is established end to end
	serverGot := make(chan []byte, 1)
	server.SetReceiveCallback(func(ch int, data []byte) { serverGot <- data })
	require.NoError(t, client.Send([]byte{0x01}))
	select {
	case <-serverGot:
	case <-time.After(2 * time.Second):
		t.Fatal("link never established")
	}

	// closing the server ends the client's stream: a zero-byte read means
	// the peer is gone and the client moves to Closing
	require.NoError(t, server.Close())

	require.Eventually(t, func() bool {
		return client.Send([]byte{0x02}) != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTCPServerKeepsListeningAfterPeerLoss(t *testing.T) {
	f, _ := newTestFactory(t)
	server, client := openTCPPair(t, f)

	serverGot := make(chan []byte, 8)
	server.SetReceiveCallback(func(ch int, data []byte) { serverGot <- data })

	require.NoError(t, client.Send([]byte{0x01}))
	select {
	case <-serverGot:
	case <-time.After(2 * time.Second):
		t.Fatal("link never established")
	}

	require.NoError(t, client.Close())

	// the server stays open and accepts a new peer
	addr := server.(*TCPServerConnection).LocalAddr().String()
	next, err := f.Open(fmt.Sprintf("tcp://%s", addr), 4, 50)
	require.NoError(t, err)
	defer next.Close()

	require.Eventually(t, func() bool {
		if err := next.Send([]byte{0x04}); err != nil {
			return false
		}
		select {
		case data := <-serverGot:
			return len(data) == 1 && data[0] == 0x04
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}
