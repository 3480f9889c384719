package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yegors/planetracker/pkg/logger"
)

// DefaultSubject is used when no NATS subject is configured
const DefaultSubject = "planetracker.alerts"

// Publisher is the part of a NATS connection used for delivery
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSOptions configure the NATS connection
type NATSOptions struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// ConnectNATS opens a NATS connection with reconnect handling
func ConnectNATS(opts NATSOptions, log *logger.Logger) (*nats.Conn, error) {
	natsLogger := log.Named("nats")
	options := []nats.Option{
		nats.Name("planetracker"),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.Timeout(opts.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			natsLogger.Warn("NATS disconnected", logger.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			natsLogger.Info("NATS reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			natsLogger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(opts.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSSink publishes notifications as JSON
type NATSSink struct {
	pub     Publisher
	subject string
}

// NewNATSSink creates a NATS sink
func NewNATSSink(pub Publisher, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{pub: pub, subject: subject}
}

// Name implements Sink
func (s *NATSSink) Name() string { return "nats" }

// Notify implements Sink
func (s *NATSSink) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.subject, err)
	}
	return nil
}
