// Package queue publishes submission envelopes to the message broker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/chatrelay/chatrelay/internal/common/config"
	"github.com/chatrelay/chatrelay/internal/common/logger"
	"github.com/chatrelay/chatrelay/internal/message"
)

// Publisher owns the single broker connection for the process. Publishing is
// fire-and-forget from the request handler's perspective: while disconnected
// every publish is a logged no-op, never an error surfaced to the caller.
type Publisher struct {
	mu     sync.RWMutex
	conn   *nats.Conn
	js     nats.JetStreamContext
	config config.BrokerConfig
	logger *logger.Logger
}

// NewPublisher creates a publisher. It does not connect; call Connect to
// start the background connect loop.
func NewPublisher(cfg config.BrokerConfig, log *logger.Logger) *Publisher {
	return &Publisher{
		config: cfg,
		logger: log,
	}
}

// Connect attempts to establish the broker connection, retrying on a flat
// delay indefinitely until it succeeds or the context is cancelled. When the
// broker is disabled it returns immediately and the publisher stays idle.
// Intended to run as a background goroutine so request handling never waits
// on broker availability.
func (p *Publisher) Connect(ctx context.Context) {
	if !p.config.Enabled {
		p.logger.Info("Broker is disabled, publishes will be dropped")
		return
	}

	wait := p.config.ReconnectWaitDuration()

	for {
		if err := p.connect(); err != nil {
			p.logger.Error("Broker connection failed",
				zap.Error(err),
				zap.Duration("retry_in", wait),
			)
		} else {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// connect dials the broker and ensures the stream exists.
func (p *Publisher) connect() error {
	if p.config.URL == "" {
		return errors.New("broker.url is required when the broker is enabled")
	}

	wait := p.config.ReconnectWaitDuration()

	opts := []nats.Option{
		nats.Name("chatrelay"),
		// Flat reconnect delay, unlimited retries. Once connected, the
		// client keeps the same policy for any later disconnect.
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				p.logger.Warn("Broker disconnected", zap.Error(err))
			} else {
				p.logger.Info("Broker disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.logger.Info("Broker reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				p.logger.Error("Broker connection closed", zap.Error(err))
			} else {
				p.logger.Info("Broker connection closed")
			}
		}),
	}

	conn, err := nats.Connect(p.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Durable stream with replicated storage, favoring delivery durability
	// over throughput. The worker consumes from the queue subject.
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     p.config.Stream,
		Subjects: []string{p.config.Queue},
		Storage:  nats.FileStorage,
		Replicas: p.config.Replicas,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		conn.Close()
		return fmt.Errorf("failed to ensure stream %q: %w", p.config.Stream, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.js = js
	p.mu.Unlock()

	p.logger.Info("Connected to broker",
		zap.String("url", p.config.URL),
		zap.String("stream", p.config.Stream),
		zap.String("queue", p.config.Queue),
	)
	return nil
}

// Publish serializes the envelope and sends it to the queue subject. While
// the broker is disabled or disconnected this is a logged no-op: the caller
// must never block or fail because of broker unavailability.
func (p *Publisher) Publish(ctx context.Context, env *message.Envelope) error {
	p.mu.RLock()
	js := p.js
	p.mu.RUnlock()

	if js == nil {
		if p.config.Enabled {
			p.logger.Warn("Broker not available, message not sent",
				zap.String("message_id", env.ID),
			)
		} else {
			p.logger.Debug("Broker disabled, message not sent",
				zap.String("message_id", env.ID),
			)
		}
		return nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if _, err := js.Publish(p.config.Queue, data, nats.MsgId(env.ID), nats.Context(ctx)); err != nil {
		p.logger.Error("Failed to publish envelope",
			zap.String("message_id", env.ID),
			zap.String("queue", p.config.Queue),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish envelope: %w", err)
	}

	p.logger.Info("Published envelope",
		zap.String("message_id", env.ID),
		zap.String("queue", p.config.Queue),
		zap.Bool("has_image", env.Metadata.HasImage()),
		zap.String("webhook_url", env.WebhookURL),
	)
	return nil
}

// IsConnected reports whether a broker connection is currently live.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.conn == nil {
		return false
	}
	return p.conn.IsConnected()
}

// Close drains the broker connection gracefully.
func (p *Publisher) Close() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.js = nil
	p.mu.Unlock()

	if conn != nil {
		if err := conn.Drain(); err != nil {
			p.logger.Warn("Error draining broker connection", zap.Error(err))
			conn.Close()
		}
		p.logger.Info("Broker connection closed")
	}
}
