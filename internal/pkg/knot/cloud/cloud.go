// Package cloud defines the abstract capability the KNOT dispatcher
// invokes to provision devices, exchange credentials, and push/pull
// sensor data against the remote cloud service. It is a capability
// object passed into the dispatcher, not a global — this is what lets
// the dispatcher be tested deterministically against an in-memory fake
// (see AdapterMock) instead of a real network.
package cloud

import (
	"context"

	"github.com/knot-edge/gateway/internal/pkg/knot/trust"
)

// Result is the shared result-code vocabulary returned by both the
// cloud adapter and the dispatcher's PDU replies.
type Result uint8

const (
	ResultSuccess                   Result = 0
	ResultCredentialUnauthorized    Result = 1
	ResultRegisterInvalidDeviceName Result = 2
	ResultSchemaEmpty               Result = 3
	ResultInvalidData               Result = 4
	ResultErrorUnknown              Result = 5
	ResultNoData                    Result = 6
)

//go:generate moq -rm -out cloud_mock.go . Adapter

// Adapter is the set of operations an implementer must supply. All
// operations are presented to the dispatcher as synchronous — an
// implementation may block internally or await a future, but the
// dispatcher always observes a linear return (see the trust package's
// refcounting, which exists precisely to survive these suspension
// points).
type Adapter interface {
	MkNode(ctx context.Context, deviceName string, deviceID uint64) (uuid, token string, result Result)
	RmNode(ctx context.Context, uuid, token string) Result
	SignIn(ctx context.Context, uuid, token string) (schema []trust.SchemaEntry, cfg []trust.ConfigEntry, result Result)
	SubmitSchema(ctx context.Context, uuid, token string, schema []trust.SchemaEntry) Result
	PushData(ctx context.Context, uuid, token string, sensorID uint8, valueType uint8, payload []byte) Result
	PullData(ctx context.Context, uuid, token string, sensorID uint8) Result
	AckSetData(ctx context.Context, uuid, token string, sensorID uint8) Result
}
