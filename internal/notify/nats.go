package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	DefaultSubjectPrefix = "custody"
	DefaultStreamName    = "CUSTODY"

	streamMaxAge = 90 * 24 * time.Hour
)

// NATSOptions configures a NATSPublisher.
type NATSOptions struct {
	URL           string
	SubjectPrefix string
	Stream        string
	ClientName    string
}

// NATSPublisher publishes notices to JetStream. The event id doubles as the
// message id so redelivered publishes are deduplicated by the server.
type NATSPublisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects and makes sure the custody stream exists.
func NewNATSPublisher(opts NATSOptions, logger *slog.Logger) (*NATSPublisher, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify")

	prefix := strings.Trim(strings.TrimSpace(opts.SubjectPrefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	stream := strings.TrimSpace(opts.Stream)
	if stream == "" {
		stream = DefaultStreamName
	}
	name := opts.ClientName
	if name == "" {
		name = "evidencevault"
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{prefix + ".>"},
			Storage:  nats.FileStorage,
			MaxAge:   streamMaxAge,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create stream %s: %w", stream, err)
		}
		logger.Info("created stream", "stream", stream, "subjects", prefix+".>")
	}

	return &NATSPublisher{conn: conn, js: js, prefix: prefix, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, n Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	subject := Subject(p.prefix, n.Action)
	if _, err := p.js.Publish(subject, data, nats.MsgId(n.EventID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
