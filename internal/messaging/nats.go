package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

const (
	progressSubjectPrefix = "sync.progress."
	logSubjectPrefix      = "sync.logs."
)

// NATSClient distributes progress and log events between instances. The
// orchestrator publishes through it, and every dashboard hub subscribes, so
// browsers see one stream no matter which instance runs the sync.
type NATSClient struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Entry
	cfg    *config.NATSConfig

	subs   []*nats.Subscription
	subsMu sync.Mutex
}

// NewNATSClient creates a new NATS client
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	nc := &NATSClient{
		conn:   conn,
		js:     js,
		logger: logger.WithField("component", "nats"),
		cfg:    cfg,
	}

	if err := nc.initializeStreams(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize streams: %w", err)
	}

	return nc, nil
}

// initializeStreams creates the JetStream stream carrying sync events.
func (nc *NATSClient) initializeStreams() error {
	_, err := nc.js.AddStream(&nats.StreamConfig{
		Name:     "SYNC",
		Subjects: []string{"sync.>"},
		Storage:  nats.MemoryStorage,
		MaxAge:   24 * time.Hour,
		Replicas: 1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create SYNC stream: %w", err)
	}

	return nil
}

// Close closes the NATS connection
func (nc *NATSClient) Close() error {
	nc.subsMu.Lock()
	for _, sub := range nc.subs {
		sub.Unsubscribe()
	}
	nc.subs = nil
	nc.subsMu.Unlock()

	nc.conn.Close()
	return nil
}

// IsConnected checks if NATS is connected
func (nc *NATSClient) IsConnected() bool {
	return nc.conn.IsConnected()
}

// Progress publishes a progress event; implements the pipeline's progress sink.
// Delivery is best effort.
func (nc *NATSClient) Progress(event models.ProgressEvent) {
	nc.publish(progressSubjectPrefix+event.Source, event)
}

// Log publishes a log event; implements the pipeline's log sink.
func (nc *NATSClient) Log(event models.LogEvent) {
	nc.publish(logSubjectPrefix+event.Source, event)
}

func (nc *NATSClient) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		nc.logger.WithError(err).WithField("subject", subject).Error("Failed to marshal event")
		return
	}

	if err := nc.conn.Publish(subject, data); err != nil {
		nc.logger.WithError(err).WithField("subject", subject).Warn("Failed to publish event")
	}
}

// SubscribeProgress delivers every progress event, from any source, to handler.
func (nc *NATSClient) SubscribeProgress(handler func(models.ProgressEvent)) error {
	return nc.subscribe(progressSubjectPrefix+">", func(data []byte) {
		var event models.ProgressEvent
		if err := json.Unmarshal(data, &event); err != nil {
			nc.logger.WithError(err).Warn("Failed to decode progress event")
			return
		}
		handler(event)
	})
}

// SubscribeLogs delivers every log event, from any source, to handler.
func (nc *NATSClient) SubscribeLogs(handler func(models.LogEvent)) error {
	return nc.subscribe(logSubjectPrefix+">", func(data []byte) {
		var event models.LogEvent
		if err := json.Unmarshal(data, &event); err != nil {
			nc.logger.WithError(err).Warn("Failed to decode log event")
			return
		}
		handler(event)
	})
}

func (nc *NATSClient) subscribe(subject string, handler func([]byte)) error {
	sub, err := nc.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	nc.subsMu.Lock()
	nc.subs = append(nc.subs, sub)
	nc.subsMu.Unlock()

	return nil
}
