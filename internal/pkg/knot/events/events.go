// Package events notifies external subscribers of KNOT session lifecycle
// transitions (register, rollback, schema commit, unregister) over
// CloudEvents/HTTP. It is a pure side channel: the dispatcher's behavior
// never depends on whether a notification is delivered.
package events

import (
	"context"
	"fmt"
	"io"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	yaml "gopkg.in/yaml.v2"
)

// Type names the session lifecycle event being reported.
type Type string

const (
	TypeRegistered       Type = "knot.session.registered"
	TypeRolledBack       Type = "knot.session.rolledback"
	TypeSchemaCommitted  Type = "knot.session.schemacommitted"
	TypeUnregistered     Type = "knot.session.unregistered"
)

// SessionEvent is the payload carried by every notification.
type SessionEvent struct {
	Handle     uint64 `json:"handle"`
	DeviceID   uint64 `json:"deviceId"`
	UUID       string `json:"uuid"`
	ObservedAt string `json:"observedAt"`
}

// Notifier sends session lifecycle notifications to configured
// subscribers.
type Notifier interface {
	Send(ctx context.Context, eventType Type, event SessionEvent) error
}

type notifier struct {
	subscribers map[Type][]SubscriberConfig
}

// New builds a Notifier from cfg. A nil cfg yields a Notifier with no
// subscribers — Send becomes a no-op.
func New(cfg *Config) Notifier {
	n := &notifier{subscribers: make(map[Type][]SubscriberConfig)}
	if cfg != nil {
		for _, sub := range cfg.Notifications {
			n.subscribers[Type(sub.Type)] = sub.Subscribers
		}
	}
	return n
}

func (n *notifier) Send(ctx context.Context, eventType Type, event SessionEvent) error {
	subs, ok := n.subscribers[eventType]
	if !ok || len(subs) == 0 {
		return nil
	}

	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return err
	}

	ce := cloudevents.NewEvent()
	ce.SetID(fmt.Sprintf("%d:%s:%d", event.Handle, eventType, time.Now().UnixNano()))
	ce.SetSource("github.com/knot-edge/gateway")
	ce.SetType(string(eventType))
	if err := ce.SetData(cloudevents.ApplicationJSON, event); err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)

	var sendErr error
	for _, sub := range subs {
		target := cloudevents.ContextWithTarget(ctx, sub.Endpoint)
		result := c.Send(target, ce)
		if cloudevents.IsUndelivered(result) {
			logger.Error("failed to deliver session event", "endpoint", sub.Endpoint, "type", eventType, "err", result.Error())
			sendErr = result
		}
	}
	return sendErr
}

// SubscriberConfig names one CloudEvents/HTTP endpoint to notify.
type SubscriberConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// Notification binds an event type to the subscribers that want it.
type Notification struct {
	Type        string             `yaml:"type"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
}

// Config is the top-level notification subscription document.
type Config struct {
	Notifications []Notification `yaml:"notifications"`
}

// LoadConfiguration parses a notification subscription document.
func LoadConfiguration(r io.Reader) (*Config, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Config{}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
