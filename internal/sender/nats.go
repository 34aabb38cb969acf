package sender

import (
	"context"
	"fmt"

	"github.com/Priya8975/envelope-relay/internal/domain"
)

// Publisher is the subset of *nats.Conn the NATS sender needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSender publishes each event to "<prefix>.<level>".
type NATSSender struct {
	pub    Publisher
	prefix string
}

func NewNATSSender(pub Publisher, prefix string) *NATSSender {
	if prefix == "" {
		prefix = "relay.events"
	}
	return &NATSSender{pub: pub, prefix: prefix}
}

func (n *NATSSender) Name() string {
	return "nats"
}

func (n *NATSSender) Subject(level domain.Level) string {
	return n.prefix + "." + level.String()
}

func (n *NATSSender) Send(ctx context.Context, ev *domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := ev.EncodeNotification()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.pub.Publish(n.Subject(ev.Level), data); err != nil {
		return fmt.Errorf("publish to %s: %w", n.Subject(ev.Level), err)
	}
	return nil
}
