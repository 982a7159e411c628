package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
)

func TestPublishSendsDataAcceptedOnTopic(t *testing.T) {
	is := is.New(t)

	var published messaging.TopicMessage
	m := &messaging.MsgContextMock{
		PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
			published = message
			return nil
		},
	}

	r := New(m)
	err := r.Publish(context.Background(), 7, "uuid-1", 3, 2, []byte{0xAA})
	is.NoErr(err)

	is.Equal(published.TopicName(), "knot.dataAccepted")
	is.Equal(published.ContentType(), "application/json")

	var decoded DataAccepted
	is.NoErr(json.Unmarshal(published.Body(), &decoded))
	is.Equal(decoded.Handle, uint64(7))
	is.Equal(decoded.UUID, "uuid-1")
	is.Equal(decoded.SensorID, uint8(3))
	is.Equal(decoded.Payload, []byte{0xAA})
}
