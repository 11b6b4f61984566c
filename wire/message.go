package wire

import (
	"encoding/json"
	"fmt"
)

// Message is implemented by every wire message type. Type identifies the
// concrete struct so Decode can dispatch without a type switch on the
// caller's side.
type Message interface {
	Type() MessageType
}

// MessageType tags the leading byte of every encoded message, mirroring
// rpc/common.MessageType's role for the KV/lock protocol.
type MessageType uint8

const (
	MsgTUnknown MessageType = iota

	MsgTMaterializedViewAnnounce
	MsgTSubviewDidRequest
	MsgTSubviewDidResponse
	MsgTMaterializedUpdate
	MsgTAtomicReservationRequest
	MsgTAtomicReservationResponse
	MsgTReductionViewAnnounce
	MsgTReductionUpdate
	MsgTCompositeViewAnnounce
	MsgTFillViewAnnounce
	MsgTAck
)

// String returns the lower-camel wire name of t, matching
// rpc/common.MessageType's naming convention.
func (t MessageType) String() string {
	switch t {
	case MsgTMaterializedViewAnnounce:
		return "materializedViewAnnounce"
	case MsgTSubviewDidRequest:
		return "subviewDidRequest"
	case MsgTSubviewDidResponse:
		return "subviewDidResponse"
	case MsgTMaterializedUpdate:
		return "materializedUpdate"
	case MsgTAtomicReservationRequest:
		return "atomicReservationRequest"
	case MsgTAtomicReservationResponse:
		return "atomicReservationResponse"
	case MsgTReductionViewAnnounce:
		return "reductionViewAnnounce"
	case MsgTReductionUpdate:
		return "reductionUpdate"
	case MsgTCompositeViewAnnounce:
		return "compositeViewAnnounce"
	case MsgTFillViewAnnounce:
		return "fillViewAnnounce"
	case MsgTAck:
		return "ack"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler so MessageType serializes as its
// string name in logs and diagnostic output.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "materializedViewAnnounce":
		*t = MsgTMaterializedViewAnnounce
	case "subviewDidRequest":
		*t = MsgTSubviewDidRequest
	case "subviewDidResponse":
		*t = MsgTSubviewDidResponse
	case "materializedUpdate":
		*t = MsgTMaterializedUpdate
	case "atomicReservationRequest":
		*t = MsgTAtomicReservationRequest
	case "atomicReservationResponse":
		*t = MsgTAtomicReservationResponse
	case "reductionViewAnnounce":
		*t = MsgTReductionViewAnnounce
	case "reductionUpdate":
		*t = MsgTReductionUpdate
	case "compositeViewAnnounce":
		*t = MsgTCompositeViewAnnounce
	case "fillViewAnnounce":
		*t = MsgTFillViewAnnounce
	case "ack":
		*t = MsgTAck
	default:
		return fmt.Errorf("wire: unknown message type %q", s)
	}
	return nil
}
