package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/shizukutanaka/seccollector/internal/model"
)

// DefaultNATSSubject is used when no subject is configured
const DefaultNATSSubject = "security.alerts"

// NATSSink publishes alerts as JSON on a NATS subject
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to url. The connection keeps retrying in the
// background when the server is down; publishes made meanwhile are buffered
// by the client.
func NewNATSSink(logger *zap.Logger, url, subject, name string) (*NATSSink, error) {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Name implements Sink
func (s *NATSSink) Name() string { return "nats" }

// Send implements Sink
func (s *NATSSink) Send(ctx context.Context, a model.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := s.nc.Publish(s.subject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close drains the connection. A connection that never came up is closed
// and whatever it buffered is discarded.
func (s *NATSSink) Close() error {
	if !s.nc.IsConnected() {
		s.nc.Close()
		return nil
	}
	return s.nc.Drain()
}

// Pusher delivers an alert to a remote API
type Pusher interface {
	PushAlert(ctx context.Context, a model.Alert) error
}

// PushSink adapts a Pusher to a Sink
type PushSink struct {
	name   string
	pusher Pusher
}

// NewPushSink creates a sink named name delivering through p
func NewPushSink(name string, p Pusher) *PushSink {
	return &PushSink{name: name, pusher: p}
}

// Name implements Sink
func (s *PushSink) Name() string { return s.name }

// Send implements Sink
func (s *PushSink) Send(ctx context.Context, a model.Alert) error {
	return s.pusher.PushAlert(ctx, a)
}
