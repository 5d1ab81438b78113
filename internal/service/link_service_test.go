// internal/service/link_service_test.go
package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mavgate/internal/config"
	"mavgate/internal/mavconn"
)

// newTestService builds a link service on a fresh registry and reactor
func newTestService(t *testing.T) (*LinkService, *mavconn.ChannelRegistry) {
	t.Helper()
	logger := zap.NewNop()
	registry := mavconn.NewChannelRegistry(logger)
	reactor := mavconn.NewReactor(logger)
	t.Cleanup(reactor.Stop)

	factory := mavconn.NewFactory(registry, reactor, logger)
	cfg := &config.GatewayConfig{SystemID: 1, ComponentID: 240}
	svc := NewLinkService(factory, registry, cfg, logger)
	t.Cleanup(svc.Shutdown)
	return svc, registry
}

func TestLinkServiceOpenCloseRoundTrip(t *testing.T) {
	svc, registry := newTestService(t)

	var mu sync.Mutex
	var events []string
	svc.SetEventSink(func(eventType string, data map[string]interface{}) {
		mu.Lock()
		events = append(events, eventType)
		mu.Unlock()
	})

	info, err := svc.OpenLink("tcp-l://127.0.0.1:0")
	require.NoError(t, err)
	require.NotEmpty(t, info.ID)
	assert.Equal(t, uint8(1), info.SystemID)
	assert.Equal(t, uint8(240), info.ComponentID)
	assert.Equal(t, mavconn.MaxChannels-1, registry.Available())

	links := svc.ListLinks()
	require.Len(t, links, 1)
	assert.Equal(t, info.ID, links[0].ID)

	got, err := svc.GetLink(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "tcp-l://127.0.0.1:0", got.URL)

	require.NoError(t, svc.CloseLink(info.ID))
	assert.Equal(t, mavconn.MaxChannels, registry.Available())
	assert.Empty(t, svc.ListLinks())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"link.opened", "link.closed"}, events)
}

func TestLinkServiceUnknownLink(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetLink("no-such-link")
	assert.ErrorIs(t, err, ErrLinkNotFound)

	err = svc.CloseLink("no-such-link")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestLinkServiceOpenLinkFailure(t *testing.T) {
	svc, registry := newTestService(t)

	_, err := svc.OpenLink("ftp://example.com")
	require.Error(t, err)

	var devErr *mavconn.DeviceError
	assert.ErrorAs(t, err, &devErr)
	assert.Equal(t, mavconn.MaxChannels, registry.Available())
	assert.Empty(t, svc.ListLinks())
}

func TestLinkServiceStats(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.OpenLink("tcp-l://127.0.0.1:0")
	require.NoError(t, err)
	_, err = svc.OpenLink("udp://127.0.0.1:0@")
	require.NoError(t, err)

	stats := svc.Stats()
	assert.Equal(t, 2, stats.Links)
	assert.Equal(t, mavconn.MaxChannels-2, stats.ChannelsAvailable)

	require.NoError(t, svc.CloseLink(first.ID))
	stats = svc.Stats()
	assert.Equal(t, 1, stats.Links)
	assert.Equal(t, mavconn.MaxChannels-1, stats.ChannelsAvailable)
}

func TestLinkServiceShutdownClosesEverything(t *testing.T) {
	svc, registry := newTestService(t)

	for i := 0; i < 4; i++ {
		_, err := svc.OpenLink("tcp-l://127.0.0.1:0")
		require.NoError(t, err)
	}
	require.Equal(t, mavconn.MaxChannels-4, registry.Available())

	svc.Shutdown()
	assert.Equal(t, mavconn.MaxChannels, registry.Available())
	assert.Empty(t, svc.ListLinks())
}

func TestLinkServiceLogsLifecycle(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	registry := mavconn.NewChannelRegistry(logger)
	reactor := mavconn.NewReactor(logger)
	t.Cleanup(reactor.Stop)

	factory := mavconn.NewFactory(registry, reactor, logger)
	cfg := &config.GatewayConfig{SystemID: 1, ComponentID: 240}
	svc := NewLinkService(factory, registry, cfg, logger)
	t.Cleanup(svc.Shutdown)

	info, err := svc.OpenLink("tcp-l://127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, svc.CloseLink(info.ID))

	var actions []string
	for _, entry := range logs.FilterMessage("Link lifecycle event").All() {
		fields := entry.ContextMap()
		assert.Equal(t, info.ID, fields["link_id"])
		actions = append(actions, fields["action"].(string))
	}
	assert.Equal(t, []string{"opened", "closed"}, actions)
}

func TestLinkServiceOpenConfiguredToleratesFailures(t *testing.T) {
	logger := zap.NewNop()
	registry := mavconn.NewChannelRegistry(logger)
	reactor := mavconn.NewReactor(logger)
	t.Cleanup(reactor.Stop)

	factory := mavconn.NewFactory(registry, reactor, logger)
	cfg := &config.GatewayConfig{
		SystemID:    1,
		ComponentID: 240,
		Endpoints: []string{
			"ftp://bad-scheme",
			"tcp-l://127.0.0.1:0",
		},
	}
	svc := NewLinkService(factory, registry, cfg, logger)
	t.Cleanup(svc.Shutdown)

	svc.OpenConfigured()
	assert.Len(t, svc.ListLinks(), 1, "good endpoints must open despite bad ones")
}
