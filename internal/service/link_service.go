// internal/service/link_service.go
package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mavgate/internal/config"
	"mavgate/internal/mavconn"
	"mavgate/internal/utils"
)

// ErrLinkNotFound reports an unknown link ID
var ErrLinkNotFound = errors.New("link not found")

// EventSink receives link lifecycle events for distribution to observers
type EventSink func(eventType string, data map[string]interface{})

// LinkInfo is the externally visible description of an open link
type LinkInfo struct {
	ID          string        `json:"id"`
	URL         string        `json:"url"`
	Channel     int           `json:"channel"`
	SystemID    uint8         `json:"system_id"`
	ComponentID uint8         `json:"component_id"`
	OpenedAt    time.Time     `json:"opened_at"`
	Stats       mavconn.Stats `json:"stats"`
}

// GatewayStats aggregates statistics across all open links
type GatewayStats struct {
	Links             int           `json:"links"`
	ChannelsAvailable int           `json:"channels_available"`
	Totals            mavconn.Stats `json:"totals"`
}

// link pairs a connection with its bookkeeping
type link struct {
	id       string
	url      string
	conn     mavconn.Connection
	openedAt time.Time
	logger   *utils.LinkLogger
}

// LinkService owns every MAVLink connection opened by the gateway: it opens
// links through the factory, indexes them by link ID, snapshots their
// statistics and closes them on demand and at shutdown.
type LinkService struct {
	factory  *mavconn.Factory
	registry *mavconn.ChannelRegistry
	cfg      *config.GatewayConfig
	logger   *zap.Logger
	base     *zap.Logger

	mu    sync.RWMutex
	links map[string]*link

	sink EventSink
}

// NewLinkService creates a new link service
func NewLinkService(factory *mavconn.Factory, registry *mavconn.ChannelRegistry, cfg *config.GatewayConfig, logger *zap.Logger) *LinkService {
	return &LinkService{
		factory:  factory,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "link_service")),
		base:     logger,
		links:    make(map[string]*link),
	}
}

// SetEventSink installs the sink notified about link lifecycle events
func (s *LinkService) SetEventSink(sink EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// OpenConfigured opens every endpoint URL from the gateway configuration.
// A failing endpoint is logged and skipped so one bad device does not keep
// the remaining links down.
func (s *LinkService) OpenConfigured() {
	for _, url := range s.cfg.Endpoints {
		if _, err := s.OpenLink(url); err != nil {
			s.logger.Error("Failed to open configured endpoint",
				zap.String("url", url),
				zap.Error(err),
			)
		}
	}
}

// OpenLink opens a connection URL with the gateway's default identity and
// registers it under a fresh link ID
func (s *LinkService) OpenLink(url string) (*LinkInfo, error) {
	conn, err := s.factory.Open(url, s.cfg.SystemID, s.cfg.ComponentID)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", url, err)
	}

	l := &link{
		id:       uuid.New().String(),
		url:      url,
		conn:     conn,
		openedAt: time.Now(),
	}
	l.logger = utils.NewLinkLogger(s.base.With(zap.Int("channel", conn.Channel())), l.id, url)

	// received frames are counted by the connection itself; the callback
	// keeps byte-level visibility at debug level
	conn.SetReceiveCallback(func(channel int, data []byte) {
		l.logger.Debug("Received data", zap.Int("bytes", len(data)))
	})

	s.mu.Lock()
	s.links[l.id] = l
	s.mu.Unlock()

	l.logger.LogLifecycle("opened", nil)
	s.publish("link.opened", map[string]interface{}{
		"link_id": l.id,
		"url":     url,
		"channel": conn.Channel(),
	})

	info := s.describe(l)
	return &info, nil
}

// ListLinks returns every open link
func (s *LinkService) ListLinks() []LinkInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]LinkInfo, 0, len(s.links))
	for _, l := range s.links {
		infos = append(infos, s.describe(l))
	}
	return infos
}

// GetLink returns the link with the given ID
func (s *LinkService) GetLink(id string) (LinkInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[id]
	if !ok {
		return LinkInfo{}, fmt.Errorf("link %s: %w", id, ErrLinkNotFound)
	}
	return s.describe(l), nil
}

// CloseLink closes the link with the given ID and forgets it
func (s *LinkService) CloseLink(id string) error {
	s.mu.Lock()
	l, ok := s.links[id]
	if ok {
		delete(s.links, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("link %s: %w", id, ErrLinkNotFound)
	}

	if err := l.conn.Close(); err != nil {
		l.logger.LogLifecycle("close", err)
		return fmt.Errorf("failed to close link %s: %w", id, err)
	}

	l.logger.LogLifecycle("closed", nil)
	s.publish("link.closed", map[string]interface{}{
		"link_id": id,
		"url":     l.url,
	})
	return nil
}

// Stats aggregates statistics across links plus channel availability
func (s *LinkService) Stats() GatewayStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := GatewayStats{
		Links:             len(s.links),
		ChannelsAvailable: s.registry.Available(),
	}
	for _, l := range s.links {
		ls := l.conn.Stats()
		stats.Totals.BytesSent += ls.BytesSent
		stats.Totals.BytesReceived += ls.BytesReceived
		stats.Totals.MessagesSent += ls.MessagesSent
		stats.Totals.MessagesReceived += ls.MessagesReceived
		stats.Totals.ParseErrors += ls.ParseErrors
	}
	return stats
}

// Shutdown closes every open link
func (s *LinkService) Shutdown() {
	s.mu.Lock()
	links := make([]*link, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	s.links = make(map[string]*link)
	s.mu.Unlock()

	for _, l := range links {
		if err := l.conn.Close(); err != nil {
			l.logger.LogLifecycle("close", err)
		}
	}

	s.logger.Info("All links closed", zap.Int("count", len(links)))
}

// describe builds a LinkInfo snapshot; callers hold at least a read lock
func (s *LinkService) describe(l *link) LinkInfo {
	return LinkInfo{
		ID:          l.id,
		URL:         l.url,
		Channel:     l.conn.Channel(),
		SystemID:    l.conn.SystemID(),
		ComponentID: l.conn.ComponentID(),
		OpenedAt:    l.openedAt,
		Stats:       l.conn.Stats(),
	}
}

// publish forwards an event to the sink when one is installed
func (s *LinkService) publish(eventType string, data map[string]interface{}) {
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()

	if sink != nil {
		sink(eventType, data)
	}
}
