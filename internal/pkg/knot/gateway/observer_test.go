package gateway

import (
	"context"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/messaging-golang/pkg/messaging"

	"github.com/knot-edge/gateway/internal/pkg/knot/audit"
	"github.com/knot-edge/gateway/internal/pkg/knot/bus"
	"github.com/knot-edge/gateway/internal/pkg/knot/events"
)

type fakeNotifier struct {
	sent []events.Type
}

func (f *fakeNotifier) Send(ctx context.Context, eventType events.Type, event events.SessionEvent) error {
	f.sent = append(f.sent, eventType)
	return nil
}

func TestRecorderRegisteredWritesAuditAndEvent(t *testing.T) {
	is := is.New(t)

	log, err := audit.New(audit.NewSQLiteConnector(context.Background()))
	is.NoErr(err)

	notifier := &fakeNotifier{}
	rec := &Recorder{Audit: log, Events: notifier}

	rec.Registered(context.Background(), 1, 42, "uuid-1")

	recent, err := log.Recent(context.Background(), 10)
	is.NoErr(err)
	is.Equal(len(recent), 1)
	is.Equal(recent[0].Kind, audit.EventRegistered)
	is.Equal(recent[0].DeviceID, uint64(42))
	is.Equal(notifier.sent, []events.Type{events.TypeRegistered})
}

func TestRecorderDataAcceptedPublishesToBus(t *testing.T) {
	is := is.New(t)

	var published messaging.TopicMessage
	mock := &messaging.MsgContextMock{
		PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
			published = message
			return nil
		},
	}
	rec := &Recorder{Bus: bus.New(mock)}

	rec.DataAccepted(context.Background(), 7, "uuid-1", 3, 2, []byte{0xAA})

	is.Equal(published.TopicName(), "knot.dataAccepted")
}

func TestRecorderSkipsNilSinks(t *testing.T) {
	rec := &Recorder{}
	// Must not panic with every sink left unset.
	rec.Registered(context.Background(), 1, 1, "u")
	rec.SchemaCommitted(context.Background(), 1, 1, "u")
	rec.Unregistered(context.Background(), 1, 1, "u")
	rec.RolledBack(context.Background(), 1, 1, "u")
	rec.DataAccepted(context.Background(), 1, "u", 1, 1, nil)
}
