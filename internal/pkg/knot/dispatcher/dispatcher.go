// Package dispatcher is the KNOT message-processing state machine: it
// routes a decoded PDU to the handler appropriate for the connection's
// current session state, enforcing the protocol's register/sign-in/
// schema/data lifecycle, and produces the reply bytes to send back.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/knot-edge/gateway/internal/pkg/knot/cloud"
	knotconfig "github.com/knot-edge/gateway/internal/pkg/knot/config"
	"github.com/knot-edge/gateway/internal/pkg/knot/pdu"
	"github.com/knot-edge/gateway/internal/pkg/knot/schema"
	"github.com/knot-edge/gateway/internal/pkg/knot/trust"
)

var tracer = otel.Tracer("knot-gateway/dispatcher")

// PeerResolver resolves a connection handle to the local peer process
// id that registered it, best-effort; implementations return 0 when the
// handle cannot be resolved. It is supplied by the transport, which is
// out of the dispatcher's scope.
type PeerResolver interface {
	ResolvePeerPID(handle uint64) int
}

// PeerResolverFunc adapts a plain function to PeerResolver.
type PeerResolverFunc func(handle uint64) int

func (f PeerResolverFunc) ResolvePeerPID(handle uint64) int { return f(handle) }

// ErrInvalidArgument is returned (not as a PDU reply — the transport has
// no room for one) when the caller's output buffer is smaller than
// pdu.MaxSize.
type ErrInvalidArgument struct{}

func (ErrInvalidArgument) Error() string { return "dispatcher: output buffer smaller than pdu.MaxSize" }

// Observer is notified of session lifecycle transitions the dispatcher
// decides, so ambient concerns (audit trail, external notifications,
// data relay) can observe them without the dispatcher depending on any
// of them. A nil Observer is valid; Dispatcher never calls a nil one.
type Observer interface {
	Registered(ctx context.Context, handle, deviceID uint64, uuid string)
	SchemaCommitted(ctx context.Context, handle, deviceID uint64, uuid string)
	Unregistered(ctx context.Context, handle, deviceID uint64, uuid string)
	DataAccepted(ctx context.Context, handle uint64, uuid string, sensorID, valueType uint8, payload []byte)
}

// Dispatcher holds no per-connection state of its own — every field is
// a shared collaborator. All state lives in the Store it was built with.
type Dispatcher struct {
	Store    *trust.Store
	Cloud    cloud.Adapter
	Compat   schema.CompatTable
	Peers    PeerResolver
	Logger   *slog.Logger
	Observer Observer
}

// New builds a Dispatcher from its collaborators. peers may be nil, in
// which case every handle resolves to peer pid 0.
func New(store *trust.Store, adapter cloud.Adapter, compat schema.CompatTable, peers PeerResolver, logger *slog.Logger) *Dispatcher {
	if peers == nil {
		peers = PeerResolverFunc(func(uint64) int { return 0 })
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Store: store, Cloud: adapter, Compat: compat, Peers: peers, Logger: logger}
}

func (d *Dispatcher) notifyRegistered(ctx context.Context, handle, deviceID uint64, uuid string) {
	if d.Observer != nil {
		d.Observer.Registered(ctx, handle, deviceID, uuid)
	}
}

func (d *Dispatcher) notifySchemaCommitted(ctx context.Context, handle, deviceID uint64, uuid string) {
	if d.Observer != nil {
		d.Observer.SchemaCommitted(ctx, handle, deviceID, uuid)
	}
}

func (d *Dispatcher) notifyUnregistered(ctx context.Context, handle, deviceID uint64, uuid string) {
	if d.Observer != nil {
		d.Observer.Unregistered(ctx, handle, deviceID, uuid)
	}
}

func (d *Dispatcher) notifyDataAccepted(ctx context.Context, handle uint64, uuid string, sensorID, valueType uint8, payload []byte) {
	if d.Observer != nil {
		d.Observer.DataAccepted(ctx, handle, uuid, sensorID, valueType, payload)
	}
}

// Handle decodes in, routes it to the appropriate handler for handle's
// session state, and writes the reply into out (which must be at least
// pdu.MaxSize long). It returns the number of bytes to transmit, 0 to
// send nothing, or a negative value for structural input errors (no
// reply is possible — the transport decides whether to drop the
// connection).
func (d *Dispatcher) Handle(ctx context.Context, handle uint64, in []byte, out []byte) (int, error) {
	if len(out) < pdu.MaxSize {
		return 0, ErrInvalidArgument{}
	}

	ctx, span := tracer.Start(ctx, "dispatch")
	defer span.End()

	decoded, err := pdu.Decode(in)
	if err != nil {
		if errors.Is(err, pdu.ErrUnknownType) {
			// Open question resolved (see SPEC_FULL.md §9): echo the
			// request's own type back rather than leaving it undefined.
			return reply(out, decoded.Header.Type, cloud.ResultErrorUnknown), nil
		}
		d.Logger.DebugContext(ctx, "structural decode error", "err", err.Error(), "handle", handle)
		return -1, nil
	}

	switch decoded.Header.Type {
	case pdu.TypeRegisterReq:
		return d.handleRegister(ctx, handle, decoded, out), nil
	case pdu.TypeAuthReq:
		return d.handleAuth(ctx, handle, decoded, out), nil
	case pdu.TypeSchema:
		return d.handleSchema(ctx, handle, decoded, false, out), nil
	case pdu.TypeSchemaEnd:
		return d.handleSchema(ctx, handle, decoded, true, out), nil
	case pdu.TypeData:
		return d.handleData(ctx, handle, decoded, pdu.TypeDataResp, out), nil
	case pdu.TypeDataResp:
		return d.handleDataResp(ctx, handle, decoded, out), nil
	case pdu.TypeConfigResp:
		return d.handleConfigResp(ctx, handle, decoded), nil
	case pdu.TypeUnregisterReq:
		return d.handleUnregister(ctx, handle, out), nil
	default:
		// Response types other than DATA_RESP decode structurally but are
		// not requests a node sends; they get the same ERROR_UNKNOWN echo
		// as an unknown type.
		return reply(out, decoded.Header.Type, cloud.ResultErrorUnknown), nil
	}
}

func reply(out []byte, t pdu.Type, result cloud.Result) int {
	return copy(out, pdu.EncodeResult(t, uint8(result)))
}

func replyCredential(out []byte, t pdu.Type, uuid, token string) int {
	return copy(out, pdu.EncodeCredential(t, uuid, token))
}

func (d *Dispatcher) handleRegister(ctx context.Context, handle uint64, decoded pdu.Decoded, out []byte) int {
	req := decoded.RegisterReq
	if req == nil || req.DeviceName == "" {
		return reply(out, pdu.TypeRegisterResp, cloud.ResultRegisterInvalidDeviceName)
	}

	peerPID := d.Peers.ResolvePeerPID(handle)

	if existing, ok := d.Store.Lookup(handle); ok {
		defer d.Store.Release(existing)
		if existing.DeviceID == req.DeviceID && existing.PeerPID == peerPID {
			return replyCredential(out, pdu.TypeRegisterResp, existing.UUID, existing.Token)
		}
	}

	uuid, token, result := d.Cloud.MkNode(ctx, req.DeviceName, req.DeviceID)
	if result != cloud.ResultSuccess {
		return reply(out, pdu.TypeRegisterResp, result)
	}

	// schema/config are ignored on a fresh register: the node has not
	// uploaded anything yet, and this sign-in only confirms uuid/token.
	_, _, result = d.Cloud.SignIn(ctx, uuid, token)
	if result != cloud.ResultSuccess {
		return reply(out, pdu.TypeRegisterResp, result)
	}

	t := &trust.Trust{
		PeerPID:  peerPID,
		DeviceID: req.DeviceID,
		UUID:     uuid,
		Token:    token,
		Rollback: true,
	}
	if err := d.Store.Insert(handle, t); err != nil {
		d.Logger.ErrorContext(ctx, "trust already present for handle on register", "handle", handle)
		return reply(out, pdu.TypeRegisterResp, cloud.ResultErrorUnknown)
	}

	d.notifyRegistered(ctx, handle, req.DeviceID, uuid)

	return replyCredential(out, pdu.TypeRegisterResp, uuid, token)
}

func (d *Dispatcher) handleAuth(ctx context.Context, handle uint64, decoded pdu.Decoded, out []byte) int {
	if existing, ok := d.Store.Lookup(handle); ok {
		d.Store.Release(existing)
		return reply(out, pdu.TypeAuthResp, cloud.ResultSuccess)
	}

	cred := decoded.Credential
	if cred == nil {
		return reply(out, pdu.TypeAuthResp, cloud.ResultErrorUnknown)
	}

	schemaList, cfgList, result := d.Cloud.SignIn(ctx, cred.UUID, cred.Token)
	if result != cloud.ResultSuccess {
		return reply(out, pdu.TypeAuthResp, result)
	}

	if len(schemaList) == 0 {
		return reply(out, pdu.TypeAuthResp, cloud.ResultSchemaEmpty)
	}

	// Invalid config from the cloud is dropped silently; the session
	// continues with an empty config rather than failing auth.
	if knotconfig.ValidateAll(cfgList) != knotconfig.Valid {
		cfgList = nil
	}

	t := &trust.Trust{
		UUID:     cred.UUID,
		Token:    cred.Token,
		Rollback: false,
		Schema:   schemaList,
		Config:   cfgList,
	}
	if err := d.Store.Insert(handle, t); err != nil {
		return reply(out, pdu.TypeAuthResp, cloud.ResultErrorUnknown)
	}

	return reply(out, pdu.TypeAuthResp, cloud.ResultSuccess)
}

func mustLookup(s *trust.Store, handle uint64) *trust.Trust {
	t, _ := s.Lookup(handle)
	return t
}

func (d *Dispatcher) handleSchema(ctx context.Context, handle uint64, decoded pdu.Decoded, eof bool, out []byte) int {
	respType := pdu.TypeSchemaResp
	if eof {
		respType = pdu.TypeSchemaEndResp
	}

	t, ok := d.Store.Lookup(handle)
	if !ok {
		return reply(out, respType, cloud.ResultCredentialUnauthorized)
	}
	defer d.Store.Release(t)

	entry := decoded.Schema
	if entry == nil {
		return reply(out, respType, cloud.ResultErrorUnknown)
	}

	// Anti-clone protection: receiving any schema PDU proves the node
	// holds the cloud credentials it was just issued.
	t.Rollback = false

	t.StageSchema(trust.SchemaEntry{
		SensorID:  entry.SensorID,
		TypeID:    entry.TypeID,
		ValueType: entry.ValueType,
		Unit:      entry.Unit,
		Name:      entry.Name,
	})

	if !eof {
		return reply(out, respType, cloud.ResultSuccess)
	}

	staging := t.SchemaStaging
	result := d.Cloud.SubmitSchema(ctx, t.UUID, t.Token, staging)
	if result != cloud.ResultSuccess {
		t.SchemaStaging = nil
		return reply(out, respType, result)
	}

	t.Schema = staging
	t.SchemaStaging = nil
	d.notifySchemaCommitted(ctx, handle, t.DeviceID, t.UUID)
	return reply(out, respType, cloud.ResultSuccess)
}

func (d *Dispatcher) handleData(ctx context.Context, handle uint64, decoded pdu.Decoded, respType pdu.Type, out []byte) int {
	t, ok := d.Store.Lookup(handle)
	if !ok {
		return reply(out, respType, cloud.ResultCredentialUnauthorized)
	}
	defer d.Store.Release(t)

	body := decoded.Data
	if body == nil {
		return reply(out, respType, cloud.ResultInvalidData)
	}

	entry, ok := t.FindSchema(body.SensorID)
	if !ok {
		return reply(out, respType, cloud.ResultInvalidData)
	}

	if !d.Compat.Validate(entry.TypeID, entry.ValueType, entry.Unit) {
		return reply(out, respType, cloud.ResultInvalidData)
	}

	result := d.Cloud.PushData(ctx, t.UUID, t.Token, body.SensorID, entry.ValueType, body.Payload)
	if result == cloud.ResultSuccess {
		d.notifyDataAccepted(ctx, handle, t.UUID, body.SensorID, entry.ValueType, body.Payload)
	}

	// Best-effort fetch trigger; its outcome never affects the reply.
	d.Cloud.PullData(ctx, t.UUID, t.Token, body.SensorID)

	return reply(out, respType, result)
}

func (d *Dispatcher) handleDataResp(ctx context.Context, handle uint64, decoded pdu.Decoded, out []byte) int {
	t, ok := d.Store.Lookup(handle)
	if !ok {
		return 0
	}
	defer d.Store.Release(t)

	body := decoded.Data
	if body == nil {
		return 0
	}

	entry, ok := t.FindSchema(body.SensorID)
	if !ok {
		return 0
	}
	if !d.Compat.Validate(entry.TypeID, entry.ValueType, entry.Unit) {
		return 0
	}

	d.Cloud.AckSetData(ctx, t.UUID, t.Token, body.SensorID)
	d.Cloud.PushData(ctx, t.UUID, t.Token, body.SensorID, entry.ValueType, body.Payload)

	return 0
}

func (d *Dispatcher) handleConfigResp(_ context.Context, handle uint64, decoded pdu.Decoded) int {
	t, ok := d.Store.Lookup(handle)
	if !ok {
		return 0
	}
	defer d.Store.Release(t)

	if decoded.SensorID != nil {
		t.RemoveConfig(decoded.SensorID.SensorID)
	}
	return 0
}

func (d *Dispatcher) handleUnregister(ctx context.Context, handle uint64, out []byte) int {
	t, ok := d.Store.Lookup(handle)
	if !ok {
		return reply(out, pdu.TypeUnregisterResp, cloud.ResultCredentialUnauthorized)
	}
	defer d.Store.Release(t)

	deviceID, uuid := t.DeviceID, t.UUID

	result := d.Cloud.RmNode(ctx, t.UUID, t.Token)
	if result != cloud.ResultSuccess {
		return reply(out, pdu.TypeUnregisterResp, result)
	}

	if removed, ok := d.Store.Remove(handle); ok {
		d.Store.Release(removed)
	}

	d.notifyUnregistered(ctx, handle, deviceID, uuid)

	return reply(out, pdu.TypeUnregisterResp, cloud.ResultSuccess)
}
