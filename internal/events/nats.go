package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Bus publishes and subscribes to plan events on a NATS connection.
type Bus struct {
	nc *nats.Conn
}

// NewBus wraps an established connection.
func NewBus(nc *nats.Conn) (*Bus, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	return &Bus{nc: nc}, nil
}

// Publish sends ev to its plan subject.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validToken(ev.PlanID) {
		return fmt.Errorf("invalid plan id for subject: %q", ev.PlanID)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := b.nc.Publish(PlanSubject(ev.PlanID, ev.Type), data); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.Type, err)
	}
	return nil
}

// PublishNotification sends payload to the user's notification subject.
func (b *Bus) PublishNotification(ctx context.Context, userID string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validToken(userID) {
		return fmt.Errorf("invalid user id for subject: %q", userID)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	if err := b.nc.Publish(NotificationSubject(userID), data); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// Subscription delivers raw messages from a subject.
type Subscription struct {
	sub *nats.Subscription
	ch  chan *nats.Msg
}

// C returns the message channel.
func (s *Subscription) C() <-chan *nats.Msg { return s.ch }

// Close unsubscribes.
func (s *Subscription) Close() error {
	return s.sub.Unsubscribe()
}

// SubscribePlan subscribes to every event of planID.
func (b *Bus) SubscribePlan(planID string) (*Subscription, error) {
	if !validToken(planID) {
		return nil, fmt.Errorf("invalid plan id for subject: %q", planID)
	}
	return b.subscribe(PlanWildcard(planID))
}

// SubscribeNotifications subscribes to userID's notifications.
func (b *Bus) SubscribeNotifications(userID string) (*Subscription, error) {
	if !validToken(userID) {
		return nil, fmt.Errorf("invalid user id for subject: %q", userID)
	}
	return b.subscribe(NotificationSubject(userID))
}

func (b *Bus) subscribe(subject string) (*Subscription, error) {
	ch := make(chan *nats.Msg, 64)
	sub, err := b.nc.ChanSubscribe(subject, ch)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	return &Subscription{sub: sub, ch: ch}, nil
}

// Flush waits until the server has processed everything published so far.
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// validToken rejects values that would change the meaning of a subject.
func validToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".*> \t\r\n")
}

// Connect dials url with the reconnect policy used by the daemon.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	return nc, nil
}

// StartEmbedded runs an in-process NATS server on 127.0.0.1:port.
// A port of -1 picks a random free port.
func StartEmbedded(port int) (*server.Server, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded nats server not ready")
	}
	return ns, nil
}
