// Package bus relays accepted sensor readings onto the gateway's AMQP
// message bus, so other services can consume KNOT data without talking
// to the cloud adapter directly. Publication happens after, and never
// gates, a successful push_data exchange.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
)

// DataAccepted is published once per successfully pushed sensor reading.
type DataAccepted struct {
	Handle    uint64    `json:"handle"`
	UUID      string    `json:"uuid"`
	SensorID  uint8     `json:"sensorId"`
	ValueType uint8     `json:"valueType"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

func (d *DataAccepted) ContentType() string {
	return "application/json"
}
func (d *DataAccepted) TopicName() string {
	return "knot.dataAccepted"
}
func (d *DataAccepted) Body() []byte {
	b, _ := json.Marshal(d)
	return b
}

// Relay publishes accepted-data notifications to a messaging.MsgContext.
type Relay struct {
	messenger messaging.MsgContext
}

// New builds a Relay over an already-connected messenger.
func New(messenger messaging.MsgContext) *Relay {
	return &Relay{messenger: messenger}
}

// Publish sends one DataAccepted notification. Failures are the
// caller's to log; they never change the PDU reply to the node.
func (r *Relay) Publish(ctx context.Context, handle uint64, uuid string, sensorID, valueType uint8, payload []byte) error {
	return r.messenger.PublishOnTopic(ctx, &DataAccepted{
		Handle:    handle,
		UUID:      uuid,
		SensorID:  sensorID,
		ValueType: valueType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}
