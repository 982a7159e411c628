// Package pdu decodes and encodes KNOT protocol data units: a two-byte
// header (message type, payload length) followed by a type-specific,
// fixed-layout binary body. All multi-byte integers are little-endian;
// string fields are fixed-length and zero-padded, never null-terminated.
package pdu

import (
	"encoding/binary"
	"fmt"
)

// Message type identifiers, matching the wire protocol byte values.
type Type uint8

const (
	TypeRegisterReq    Type = 0x01
	TypeRegisterResp   Type = 0x02
	TypeUnregisterReq  Type = 0x03
	TypeUnregisterResp Type = 0x04
	TypeAuthReq        Type = 0x05
	TypeAuthResp       Type = 0x06
	TypeSchema         Type = 0x07
	TypeSchemaEnd      Type = 0x08
	TypeSchemaResp     Type = 0x09
	TypeSchemaEndResp  Type = 0x0A
	TypeData           Type = 0x0B
	TypeDataResp       Type = 0x0C
	TypeConfigResp     Type = 0x0D
)

// MaxSize is the smallest reply buffer the dispatcher accepts; it mirrors
// the wire protocol's fixed-size knot_msg union (header + largest body).
const MaxSize = 128

const (
	headerLen  = 2
	uuidLen    = 36
	tokenLen   = 40
	maxNameLen = 63
	maxSensorNameLen = 23
)

// Header is the two-byte preamble common to every PDU.
type Header struct {
	Type      Type
	PayloadLen uint8
}

// Decode errors — structural problems the codec can detect without any
// knowledge of session state. Dispatcher-level semantic errors are a
// separate concern (see the dispatcher package).
var (
	ErrInvalidLength  = fmt.Errorf("pdu: fewer than 2 bytes")
	ErrLengthMismatch = fmt.Errorf("pdu: total length does not match header payload length")
	ErrUnknownType    = fmt.Errorf("pdu: unknown message type")
	ErrBodyTooShort   = fmt.Errorf("pdu: body shorter than type requires")
)

// RegisterReq is the body of a REGISTER_REQ PDU.
type RegisterReq struct {
	DeviceID   uint64
	DeviceName string // up to 63 bytes, trimmed of trailing zero padding
}

// Credential is the body of a REGISTER_RESP (and reused for AUTH_REQ).
type Credential struct {
	UUID  string // exactly 36 bytes on the wire
	Token string // exactly 40 bytes on the wire
}

// SchemaEntryBody is the body of a SCHEMA or SCHEMA_END PDU.
type SchemaEntryBody struct {
	SensorID  uint8
	TypeID    uint16
	ValueType uint8
	Unit      uint8
	Name      string // up to 23 bytes, trimmed of trailing zero padding
}

// DataBody is the body of a DATA or DATA_RESP PDU. Payload is the raw,
// still-undecoded variant value whose layout depends on the sensor's
// declared value_type; the dispatcher/schema packages interpret it.
type DataBody struct {
	SensorID uint8
	Payload  []byte
}

// SensorIDBody is the body of a CONFIG_RESP PDU.
type SensorIDBody struct {
	SensorID uint8
}

// ResultBody is the body of every plain result-only response.
type ResultBody struct {
	Result uint8
}

// Decoded is the tagged-sum result of Decode: the typed field selected by
// Header.Type is populated (none for UNREGISTER_REQ, which has no body).
// A one-byte DATA_RESP body populates both Data (sensor id, empty
// payload) and Result, since that type carries both node data and
// result-only replies.
type Decoded struct {
	Header Header

	RegisterReq *RegisterReq
	Credential  *Credential
	Schema      *SchemaEntryBody
	Data        *DataBody
	SensorID    *SensorIDBody
	Result      *ResultBody
}

// Decode parses a complete PDU off the wire. It performs only structural
// validation (length discipline, body-too-short for the declared type);
// semantic validation belongs to the dispatcher.
func Decode(in []byte) (Decoded, error) {
	if len(in) < headerLen {
		return Decoded{}, ErrInvalidLength
	}

	h := Header{Type: Type(in[0]), PayloadLen: in[1]}
	if len(in) != headerLen+int(h.PayloadLen) {
		return Decoded{}, ErrLengthMismatch
	}

	body := in[headerLen:]
	d := Decoded{Header: h}

	switch h.Type {
	case TypeRegisterReq:
		// A body of exactly 8 bytes (device_id, no name byte at all) is
		// structurally complete — it just names no device. That case is
		// left for the dispatcher to answer with REGISTER_INVALID_DEVICENAME
		// (see spec.md), not treated as a decode failure.
		if len(body) < 8 {
			return Decoded{}, ErrBodyTooShort
		}
		d.RegisterReq = &RegisterReq{
			DeviceID:   binary.LittleEndian.Uint64(body[0:8]),
			DeviceName: trimZero(body[8:]),
		}
	case TypeRegisterResp:
		// A failed register is answered with a result byte only; a
		// successful one carries the credential.
		if len(body) == 1 {
			d.Result = &ResultBody{Result: body[0]}
			break
		}
		c, err := decodeCredential(body)
		if err != nil {
			return Decoded{}, err
		}
		d.Credential = &c
	case TypeAuthReq:
		c, err := decodeCredential(body)
		if err != nil {
			return Decoded{}, err
		}
		d.Credential = &c
	case TypeSchema, TypeSchemaEnd:
		if len(body) < 5 {
			return Decoded{}, ErrBodyTooShort
		}
		d.Schema = &SchemaEntryBody{
			SensorID:  body[0],
			TypeID:    binary.LittleEndian.Uint16(body[1:3]),
			ValueType: body[3],
			Unit:      body[4],
			Name:      trimZero(body[5:]),
		}
	case TypeData, TypeDataResp:
		if len(body) < 1 {
			return Decoded{}, ErrBodyTooShort
		}
		payload := make([]byte, len(body)-1)
		copy(payload, body[1:])
		d.Data = &DataBody{SensorID: body[0], Payload: payload}
		if h.Type == TypeDataResp && len(body) == 1 {
			d.Result = &ResultBody{Result: body[0]}
		}
	case TypeConfigResp:
		if len(body) < 1 {
			return Decoded{}, ErrBodyTooShort
		}
		d.SensorID = &SensorIDBody{SensorID: body[0]}
	case TypeUnregisterReq:
		// no body
	case TypeUnregisterResp, TypeAuthResp, TypeSchemaResp, TypeSchemaEndResp:
		if len(body) < 1 {
			return Decoded{}, ErrBodyTooShort
		}
		d.Result = &ResultBody{Result: body[0]}
	default:
		// Header is still returned alongside the error: callers that
		// need to reply (see package dispatcher) must echo this type.
		return Decoded{Header: h}, ErrUnknownType
	}

	return d, nil
}

func decodeCredential(body []byte) (Credential, error) {
	if len(body) < uuidLen+tokenLen {
		return Credential{}, ErrBodyTooShort
	}
	return Credential{
		UUID:  trimZero(body[0:uuidLen]),
		Token: trimZero(body[uuidLen : uuidLen+tokenLen]),
	}, nil
}

// EncodeResult builds a result-only reply PDU: header type, single
// result byte, payload_len fixed at 1.
func EncodeResult(t Type, result uint8) []byte {
	out := make([]byte, headerLen+1)
	out[0] = byte(t)
	out[1] = 1
	out[2] = result
	return out
}

// EncodeCredential builds a REGISTER_RESP-shaped reply carrying uuid and
// token, zero-padded to their exact wire lengths.
func EncodeCredential(t Type, uuid, token string) []byte {
	out := make([]byte, headerLen+uuidLen+tokenLen)
	out[0] = byte(t)
	out[1] = uint8(uuidLen + tokenLen)
	copy(out[headerLen:headerLen+uuidLen], padZero(uuid, uuidLen))
	copy(out[headerLen+uuidLen:], padZero(token, tokenLen))
	return out
}

func trimZero(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

func padZero(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}
