package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/knot-edge/gateway/internal/pkg/knot/audit"
	"github.com/knot-edge/gateway/internal/pkg/knot/bus"
	"github.com/knot-edge/gateway/internal/pkg/knot/events"
)

// Recorder fans a session lifecycle transition out to every configured
// ambient sink: the audit trail, external CloudEvents subscribers, and
// (for accepted data only) the AMQP relay. Each field is optional; a nil
// one is simply skipped. Recorder satisfies both dispatcher.Observer and
// watchdog.Observer.
type Recorder struct {
	Audit  *audit.Log
	Events events.Notifier
	Bus    *bus.Relay
	Logger *slog.Logger
}

func (r *Recorder) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Recorder) record(ctx context.Context, kind audit.EventKind, eventType events.Type, handle, deviceID uint64, uuid string) {
	if r.Audit != nil {
		if err := r.Audit.Record(ctx, handle, deviceID, uuid, kind); err != nil {
			r.logger().WarnContext(ctx, "failed to append audit event", "kind", kind, "handle", handle, "err", err.Error())
		}
	}
	if r.Events != nil {
		evt := events.SessionEvent{Handle: handle, DeviceID: deviceID, UUID: uuid, ObservedAt: time.Now().UTC().Format(time.RFC3339)}
		if err := r.Events.Send(ctx, eventType, evt); err != nil {
			r.logger().WarnContext(ctx, "failed to send session event", "type", eventType, "handle", handle, "err", err.Error())
		}
	}
}

// Registered implements dispatcher.Observer.
func (r *Recorder) Registered(ctx context.Context, handle, deviceID uint64, uuid string) {
	r.record(ctx, audit.EventRegistered, events.TypeRegistered, handle, deviceID, uuid)
}

// SchemaCommitted implements dispatcher.Observer.
func (r *Recorder) SchemaCommitted(ctx context.Context, handle, deviceID uint64, uuid string) {
	r.record(ctx, audit.EventSchemaCommitted, events.TypeSchemaCommitted, handle, deviceID, uuid)
}

// Unregistered implements dispatcher.Observer.
func (r *Recorder) Unregistered(ctx context.Context, handle, deviceID uint64, uuid string) {
	r.record(ctx, audit.EventUnregistered, events.TypeUnregistered, handle, deviceID, uuid)
}

// RolledBack implements watchdog.Observer.
func (r *Recorder) RolledBack(ctx context.Context, handle, deviceID uint64, uuid string) {
	r.record(ctx, audit.EventRolledBack, events.TypeRolledBack, handle, deviceID, uuid)
}

// DataAccepted implements dispatcher.Observer, relaying the reading onto
// the message bus. It is not part of the audit trail: accepted readings
// are high-volume and belong on the bus, not in the provisioning log.
func (r *Recorder) DataAccepted(ctx context.Context, handle uint64, uuid string, sensorID, valueType uint8, payload []byte) {
	if r.Bus == nil {
		return
	}
	if err := r.Bus.Publish(ctx, handle, uuid, sensorID, valueType, payload); err != nil {
		r.logger().WarnContext(ctx, "failed to publish accepted data", "handle", handle, "err", err.Error())
	}
}
