// Package nats publishes snapshot events to a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/couchcryptid/ltv-stats-service/internal/domain"
	"github.com/couchcryptid/ltv-stats-service/internal/observability"
	"github.com/nats-io/nats.go"
)

const sinkName = "nats"

// Notifier implements snapshot.Notifier over a NATS connection.
type Notifier struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNotifier connects to url. Connection state changes are logged and
// mirrored into the sink_connected gauge.
func NewNotifier(url, subject string, logger *slog.Logger, metrics *observability.Metrics) (*Notifier, error) {
	if err := validateSubject(subject); err != nil {
		return nil, err
	}
	connected := metrics.SinkConnected.WithLabelValues(sinkName)
	nc, err := nats.Connect(url,
		nats.Name("ltv-stats-service"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			connected.Set(0)
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			connected.Set(1)
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			connected.Set(0)
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	connected.Set(1)
	return &Notifier{nc: nc, subject: subject, logger: logger}, nil
}

// Name identifies the sink in logs and metrics.
func (n *Notifier) Name() string { return sinkName }

// Notify publishes the event and waits for the server to acknowledge the
// flush, so delivery failures surface to the caller.
func (n *Notifier) Notify(ctx context.Context, event domain.SnapshotEvent) error {
	msg, err := newMessage(n.subject, event)
	if err != nil {
		return err
	}
	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish snapshot event: %w", err)
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush snapshot event: %w", err)
	}
	n.logger.Debug("snapshot event sent", "subject", n.subject, "snapshot_id", event.SnapshotID)
	return nil
}

// Close drains pending messages and closes the connection.
func (n *Notifier) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}

func newMessage(subject string, event domain.SnapshotEvent) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("serialize snapshot event: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	// JetStream streams use this header for duplicate suppression.
	msg.Header.Set(nats.MsgIdHdr, event.SnapshotID)
	msg.Header.Set("Records", strconv.Itoa(event.Records))
	return msg, nil
}

// validateSubject rejects subjects NATS would refuse to publish on:
// empty tokens, whitespace, or wildcards.
func validateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("invalid nats subject: empty")
	}
	if strings.ContainsAny(subject, " \t\r\n*>") {
		return fmt.Errorf("invalid nats subject %q: contains whitespace or wildcard", subject)
	}
	for _, tok := range strings.Split(subject, ".") {
		if tok == "" {
			return fmt.Errorf("invalid nats subject %q: empty token", subject)
		}
	}
	return nil
}
