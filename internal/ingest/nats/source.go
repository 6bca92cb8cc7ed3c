// Package nats subscribes to NATS subjects and feeds published events
// into the engine.
package nats

import (
	"fmt"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"careops-alert-engine/config"
	"careops-alert-engine/internal/ingest"
	"careops-alert-engine/internal/logger"
	"careops-alert-engine/internal/metrics"
	"careops-alert-engine/internal/stats"
)

const sourceName = "nats"

// Source consumes events from NATS subjects.
type Source struct {
	cfg     *config.NATSConfig
	sink    ingest.Sink
	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.Collector

	mu   sync.Mutex
	conn *natsgo.Conn
	subs []*natsgo.Subscription
}

// NewSource creates a NATS event source. Start establishes the
// connection.
func NewSource(cfg *config.NATSConfig, sink ingest.Sink, log *logger.Logger, m *metrics.Metrics, s *stats.Collector) *Source {
	return &Source{
		cfg:     cfg,
		sink:    sink,
		logger:  log,
		metrics: m,
		stats:   s,
	}
}

// Start connects to the server and subscribes to the configured
// subjects.
func (s *Source) Start() error {
	if s.cfg.URL == "" {
		return fmt.Errorf("no NATS server URL provided")
	}

	opts := []natsgo.Option{
		natsgo.Name("careops-alert-engine"),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			s.logger.Error("disconnected from NATS server", "error", err)
		}),
		natsgo.ReconnectHandler(func(conn *natsgo.Conn) {
			s.logger.Info("reconnected to NATS server", "url", conn.ConnectedUrl())
		}),
	}

	conn, err := natsgo.Connect(s.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS server: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.logger.Info("connected to NATS server", "url", conn.ConnectedUrl())

	for _, subject := range s.cfg.Subjects {
		subject := subject
		sub, err := conn.Subscribe(subject, func(msg *natsgo.Msg) {
			s.handleMessage(msg)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
		s.logger.Debug("subscribed to subject", "subject", subject)
	}

	return nil
}

// Stop drains subscriptions and closes the connection.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe", "error", err)
		}
	}
	s.subs = nil

	if s.conn != nil {
		s.logger.Info("disconnecting from NATS server")
		s.conn.Close()
		s.conn = nil
	}
}

// IsConnected reports current connection status.
func (s *Source) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.conn.IsConnected()
}

func (s *Source) handleMessage(msg *natsgo.Msg) {
	event, err := ingest.ParseEvent(msg.Subject, msg.Data)
	if err != nil {
		s.logger.Warn("dropping malformed event",
			"subject", msg.Subject,
			"error", err)
		return
	}

	s.metrics.IncEventsTotal(sourceName)
	s.stats.IncEventsReceived()

	if err := s.sink.Submit(event); err != nil {
		s.logger.Error("failed to submit event",
			"subject", msg.Subject,
			"error", err)
	}
}
