package dispatcher

import (
	"context"
	"testing"

	"github.com/matryer/is"

	"github.com/knot-edge/gateway/internal/pkg/knot/cloud"
	"github.com/knot-edge/gateway/internal/pkg/knot/pdu"
	"github.com/knot-edge/gateway/internal/pkg/knot/schema"
	"github.com/knot-edge/gateway/internal/pkg/knot/trust"
)

func newTestDispatcher() (*Dispatcher, *cloud.AdapterMock) {
	mock := &cloud.AdapterMock{}
	d := New(trust.NewStore(), mock, schema.DefaultCompatTable(), nil, nil)
	return d, mock
}

func registerPDU(deviceID uint64, name string) []byte {
	body := make([]byte, 8)
	for i := 0; i < 8; i++ {
		body[i] = byte(deviceID >> (8 * i))
	}
	body = append(body, []byte(name)...)
	return append([]byte{byte(pdu.TypeRegisterReq), byte(len(body))}, body...)
}

func schemaPDU(t pdu.Type, sensorID uint8, typeID uint16, valueType, unit uint8, name string) []byte {
	body := []byte{sensorID, byte(typeID), byte(typeID >> 8), valueType, unit}
	body = append(body, []byte(name)...)
	return append([]byte{byte(t), byte(len(body))}, body...)
}

func dataPDU(t pdu.Type, sensorID uint8, payload ...byte) []byte {
	body := append([]byte{sensorID}, payload...)
	return append([]byte{byte(t), byte(len(body))}, body...)
}

func decodeResult(tb testing.TB, out []byte, n int) (pdu.Type, uint8) {
	tb.Helper()
	d, err := pdu.Decode(out[:n])
	is.New(tb).NoErr(err)
	is.New(tb).True(d.Result != nil)
	return d.Header.Type, d.Result.Result
}

// E1: fresh registration succeeds and stores a provisional (rollback)
// trust keyed to the issued credential.
func TestE1FreshRegistration(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	mock.MkNodeFunc = func(ctx context.Context, name string, id uint64) (string, string, cloud.Result) {
		return "uuid-1", "token-1", cloud.ResultSuccess
	}
	mock.SignInFunc = func(ctx context.Context, uuid, token string) ([]trust.SchemaEntry, []trust.ConfigEntry, cloud.Result) {
		return nil, nil, cloud.ResultSuccess
	}

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 1, registerPDU(42, "node-a"), out)
	is.NoErr(err)
	is.True(n > 0)

	decoded, err := pdu.Decode(out[:n])
	is.NoErr(err)
	is.Equal(decoded.Header.Type, pdu.TypeRegisterResp)
	is.Equal(decoded.Credential.UUID, "uuid-1")
	is.Equal(decoded.Credential.Token, "token-1")

	tr, ok := d.Store.Lookup(1)
	is.True(ok)
	is.True(tr.Rollback)
	d.Store.Release(tr)

	is.Equal(len(mock.MkNodeCalls()), 1)
}

// E2: a retransmitted REGISTER_REQ from the same peer/device is
// idempotent — it must not call MkNode again, and must return the same
// credential.
func TestE2RegisterRetransmitIdempotent(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	mock.MkNodeFunc = func(ctx context.Context, name string, id uint64) (string, string, cloud.Result) {
		return "uuid-1", "token-1", cloud.ResultSuccess
	}
	mock.SignInFunc = func(ctx context.Context, uuid, token string) ([]trust.SchemaEntry, []trust.ConfigEntry, cloud.Result) {
		return nil, nil, cloud.ResultSuccess
	}

	out := make([]byte, pdu.MaxSize)
	_, err := d.Handle(context.Background(), 1, registerPDU(42, "node-a"), out)
	is.NoErr(err)

	n, err := d.Handle(context.Background(), 1, registerPDU(42, "node-a"), out)
	is.NoErr(err)

	decoded, err := pdu.Decode(out[:n])
	is.NoErr(err)
	is.Equal(decoded.Credential.UUID, "uuid-1")
	is.Equal(decoded.Credential.Token, "token-1")

	is.Equal(len(mock.MkNodeCalls()), 1)
}

// A REGISTER_REQ body with device_id present but no name byte at all is
// structurally complete, not a decode error: it must get the documented
// REGISTER_INVALID_DEVICENAME reply rather than being dropped.
func TestRegisterReqWithNoNameByteRepliesInvalidDeviceName(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 1, registerPDU(42, ""), out)
	is.NoErr(err)
	is.True(n > 0)

	typ, result := decodeResult(t, out, n)
	is.Equal(typ, pdu.TypeRegisterResp)
	is.Equal(result, uint8(cloud.ResultRegisterInvalidDeviceName))

	is.Equal(len(mock.MkNodeCalls()), 0)
}

// E3: the first SCHEMA PDU flips Rollback false and stages its entry;
// staged entries commit to Schema only once SubmitSchema succeeds on
// SCHEMA_END.
func TestE3SchemaUploadCommits(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	tr := &trust.Trust{UUID: "u", Token: "t", Rollback: true}
	is.NoErr(d.Store.Insert(7, tr))

	mock.SubmitSchemaFunc = func(ctx context.Context, uuid, token string, entries []trust.SchemaEntry) cloud.Result {
		is.Equal(len(entries), 1)
		return cloud.ResultSuccess
	}

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 7, schemaPDU(pdu.TypeSchema, 1, schema.TypeIDTemperature, schema.ValueTypeFloat, schema.UnitCelsius, "temp"), out)
	is.NoErr(err)
	respType, result := decodeResult(t, out, n)
	is.Equal(respType, pdu.TypeSchemaResp)
	is.Equal(result, uint8(cloud.ResultSuccess))
	is.True(!tr.Rollback)
	is.Equal(len(tr.Schema), 0)
	is.Equal(len(tr.SchemaStaging), 1)

	n, err = d.Handle(context.Background(), 7, schemaPDU(pdu.TypeSchemaEnd, 1, schema.TypeIDTemperature, schema.ValueTypeFloat, schema.UnitCelsius, "temp"), out)
	is.NoErr(err)
	respType, result = decodeResult(t, out, n)
	is.Equal(respType, pdu.TypeSchemaEndResp)
	is.Equal(result, uint8(cloud.ResultSuccess))
	is.Equal(len(tr.Schema), 1)
	is.Equal(len(tr.SchemaStaging), 0)
	is.Equal(len(mock.SubmitSchemaCalls()), 1)
}

// E4: data for a sensor whose schema/compat validation fails is rejected
// before PushData is ever called.
func TestE4DataSchemaMismatchRejected(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	tr := &trust.Trust{
		UUID:  "u",
		Token: "t",
		Schema: []trust.SchemaEntry{
			{SensorID: 1, TypeID: schema.TypeIDTemperature, ValueType: schema.ValueTypeInt, Unit: schema.UnitCelsius},
		},
	}
	is.NoErr(d.Store.Insert(9, tr))

	mock.PushDataFunc = func(ctx context.Context, uuid, token string, sensorID, valueType uint8, payload []byte) cloud.Result {
		t.Fatal("PushData must not be called for an incompatible schema entry")
		return cloud.ResultSuccess
	}
	mock.PullDataFunc = func(ctx context.Context, uuid, token string, sensorID uint8) cloud.Result {
		return cloud.ResultNoData
	}

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 9, dataPDU(pdu.TypeData, 1, 0x01, 0x02), out)
	is.NoErr(err)
	respType, result := decodeResult(t, out, n)
	is.Equal(respType, pdu.TypeDataResp)
	is.Equal(result, uint8(cloud.ResultInvalidData))
}

// E5: data for a valid, compatible sensor entry pushes and returns
// success.
func TestE5DataHappyPath(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	tr := &trust.Trust{
		UUID:  "u",
		Token: "t",
		Schema: []trust.SchemaEntry{
			{SensorID: 1, TypeID: schema.TypeIDTemperature, ValueType: schema.ValueTypeFloat, Unit: schema.UnitCelsius},
		},
	}
	is.NoErr(d.Store.Insert(3, tr))

	var pushedPayload []byte
	mock.PushDataFunc = func(ctx context.Context, uuid, token string, sensorID, valueType uint8, payload []byte) cloud.Result {
		pushedPayload = payload
		return cloud.ResultSuccess
	}
	mock.PullDataFunc = func(ctx context.Context, uuid, token string, sensorID uint8) cloud.Result {
		return cloud.ResultNoData
	}

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 3, dataPDU(pdu.TypeData, 1, 0xDE, 0xAD), out)
	is.NoErr(err)
	respType, result := decodeResult(t, out, n)
	is.Equal(respType, pdu.TypeDataResp)
	is.Equal(result, uint8(cloud.ResultSuccess))
	is.Equal(pushedPayload, []byte{0xDE, 0xAD})
	is.Equal(len(mock.PushDataCalls()), 1)
}

// E6: unregister removes cloud-side and local trust state on success.
func TestE6Unregister(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	tr := &trust.Trust{UUID: "u", Token: "t"}
	is.NoErr(d.Store.Insert(5, tr))

	mock.RmNodeFunc = func(ctx context.Context, uuid, token string) cloud.Result {
		is.Equal(uuid, "u")
		is.Equal(token, "t")
		return cloud.ResultSuccess
	}

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 5, []byte{byte(pdu.TypeUnregisterReq), 0}, out)
	is.NoErr(err)
	respType, result := decodeResult(t, out, n)
	is.Equal(respType, pdu.TypeUnregisterResp)
	is.Equal(result, uint8(cloud.ResultSuccess))

	_, ok := d.Store.Lookup(5)
	is.True(!ok)
}

func TestHandleRejectsUndersizedOutputBuffer(t *testing.T) {
	is := is.New(t)
	d, _ := newTestDispatcher()

	_, err := d.Handle(context.Background(), 1, registerPDU(1, "x"), make([]byte, 4))
	is.True(err != nil)
}

func TestHandleStructuralDecodeErrorReturnsNegative(t *testing.T) {
	is := is.New(t)
	d, _ := newTestDispatcher()

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 1, []byte{0x01}, out)
	is.NoErr(err)
	is.True(n < 0)
}

func TestHandleUnknownTypeEchoesRequestType(t *testing.T) {
	is := is.New(t)
	d, _ := newTestDispatcher()

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 1, []byte{0xFE, 0}, out)
	is.NoErr(err)
	is.True(n > 0)

	// The echoed type is itself unknown to pdu.Decode, so the reply is
	// checked byte by byte.
	is.Equal(n, 3)
	is.Equal(pdu.Type(out[0]), pdu.Type(0xFE))
	is.Equal(out[2], uint8(cloud.ResultErrorUnknown))
}

func TestHandleAuthReqForUnknownCredentialCreatesSession(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	mock.SignInFunc = func(ctx context.Context, uuid, token string) ([]trust.SchemaEntry, []trust.ConfigEntry, cloud.Result) {
		return []trust.SchemaEntry{{SensorID: 1}}, nil, cloud.ResultSuccess
	}

	uuid := "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	token := "cccccccccccccccccccccccccccccccccccccccc"
	in := pdu.EncodeCredential(pdu.TypeAuthReq, uuid, token)

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 2, in, out)
	is.NoErr(err)
	respType, result := decodeResult(t, out, n)
	is.Equal(respType, pdu.TypeAuthResp)
	is.Equal(result, uint8(cloud.ResultSuccess))

	tr, ok := d.Store.Lookup(2)
	is.True(ok)
	is.Equal(tr.UUID, uuid)
	d.Store.Release(tr)
}

func TestHandleAuthReqEmptySchemaRejected(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	mock.SignInFunc = func(ctx context.Context, uuid, token string) ([]trust.SchemaEntry, []trust.ConfigEntry, cloud.Result) {
		return nil, nil, cloud.ResultSuccess
	}

	uuid := "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	token := "cccccccccccccccccccccccccccccccccccccccc"
	in := pdu.EncodeCredential(pdu.TypeAuthReq, uuid, token)

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 2, in, out)
	is.NoErr(err)
	_, result := decodeResult(t, out, n)
	is.Equal(result, uint8(cloud.ResultSchemaEmpty))

	_, ok := d.Store.Lookup(2)
	is.True(!ok)
}

func TestHandleConfigRespRemovesMatchingEntry(t *testing.T) {
	is := is.New(t)
	d, _ := newTestDispatcher()

	tr := &trust.Trust{
		UUID: "u", Token: "t",
		Config: []trust.ConfigEntry{{SensorID: 1}, {SensorID: 2}},
	}
	is.NoErr(d.Store.Insert(11, tr))

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 11, []byte{byte(pdu.TypeConfigResp), 1, 1}, out)
	is.NoErr(err)
	is.Equal(n, 0)
	is.Equal(len(tr.Config), 1)
	is.Equal(tr.Config[0].SensorID, uint8(2))
}

func TestHandleDataRespDrivesAckAndPush(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	tr := &trust.Trust{
		UUID: "u", Token: "t",
		Schema: []trust.SchemaEntry{
			{SensorID: 4, TypeID: schema.TypeIDHumidity, ValueType: schema.ValueTypeFloat, Unit: schema.UnitPercent},
		},
	}
	is.NoErr(d.Store.Insert(13, tr))

	acked, pushed := false, false
	mock.AckSetDataFunc = func(ctx context.Context, uuid, token string, sensorID uint8) cloud.Result {
		acked = true
		return cloud.ResultSuccess
	}
	mock.PushDataFunc = func(ctx context.Context, uuid, token string, sensorID, valueType uint8, payload []byte) cloud.Result {
		pushed = true
		return cloud.ResultSuccess
	}

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 13, dataPDU(pdu.TypeDataResp, 4, 0x01), out)
	is.NoErr(err)
	is.Equal(n, 0)
	is.True(acked)
	is.True(pushed)
}

func TestHandleRegisterForUnknownCloudResultPropagates(t *testing.T) {
	is := is.New(t)
	d, mock := newTestDispatcher()

	mock.MkNodeFunc = func(ctx context.Context, name string, id uint64) (string, string, cloud.Result) {
		return "", "", cloud.ResultRegisterInvalidDeviceName
	}

	out := make([]byte, pdu.MaxSize)
	n, err := d.Handle(context.Background(), 1, registerPDU(1, "bad"), out)
	is.NoErr(err)
	_, result := decodeResult(t, out, n)
	is.Equal(result, uint8(cloud.ResultRegisterInvalidDeviceName))

	_, ok := d.Store.Lookup(1)
	is.True(!ok)
}
