// Package mqtt subscribes to an MQTT broker and feeds published events
// into the engine.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"careops-alert-engine/config"
	"careops-alert-engine/internal/ingest"
	"careops-alert-engine/internal/logger"
	"careops-alert-engine/internal/metrics"
	"careops-alert-engine/internal/stats"
)

const sourceName = "mqtt"

// Source consumes events from MQTT topics.
type Source struct {
	cfg       *config.MQTTConfig
	sink      ingest.Sink
	logger    *logger.Logger
	metrics   *metrics.Metrics
	stats     *stats.Collector
	client    pahomqtt.Client
	connected atomic.Bool
}

// NewSource creates an MQTT event source. Start establishes the
// connection.
func NewSource(cfg *config.MQTTConfig, sink ingest.Sink, log *logger.Logger, m *metrics.Metrics, s *stats.Collector) (*Source, error) {
	src := &Source{
		cfg:     cfg,
		sink:    sink,
		logger:  log,
		metrics: m,
		stats:   s,
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute)

	opts.OnConnect = src.handleConnect
	opts.OnConnectionLost = src.handleDisconnect

	if cfg.TLS.Enable {
		tlsConfig, err := newTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	src.client = pahomqtt.NewClient(opts)
	return src, nil
}

// Start connects to the broker. Topic subscriptions are restored by
// the connect handler on every (re)connect.
func (s *Source) Start() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Source) Stop() {
	s.logger.Info("disconnecting from mqtt broker")
	s.client.Disconnect(250)
	s.connected.Store(false)
}

// IsConnected reports current connection status.
func (s *Source) IsConnected() bool {
	return s.connected.Load()
}

func (s *Source) handleConnect(client pahomqtt.Client) {
	s.logger.Info("mqtt client connected", "broker", s.cfg.Broker)
	s.connected.Store(true)

	for _, topic := range s.cfg.Topics {
		topic := topic
		token := client.Subscribe(topic, 1, s.handleMessage)
		if token.Wait() && token.Error() != nil {
			s.logger.Error("failed to subscribe to topic",
				"topic", topic,
				"error", token.Error())
			continue
		}
		s.logger.Debug("subscribed to topic", "topic", topic)
	}
}

func (s *Source) handleDisconnect(client pahomqtt.Client, err error) {
	s.logger.Error("mqtt connection lost", "error", err)
	s.connected.Store(false)
}

func (s *Source) handleMessage(client pahomqtt.Client, msg pahomqtt.Message) {
	event, err := ingest.ParseEvent(msg.Topic(), msg.Payload())
	if err != nil {
		s.logger.Warn("dropping malformed event",
			"topic", msg.Topic(),
			"error", err)
		return
	}

	s.metrics.IncEventsTotal(sourceName)
	s.stats.IncEventsReceived()

	if err := s.sink.Submit(event); err != nil {
		s.logger.Error("failed to submit event",
			"topic", msg.Topic(),
			"error", err)
	}
}

func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
