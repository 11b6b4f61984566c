package wire

import "fmt"

// encodable is implemented by every concrete message type's encode
// method, kept package-private so callers only ever see the Message
// marker interface.
type encodable interface {
	Message
	encode(e *encoder)
}

// Encode serializes msg as MsgType byte followed by its type-specific
// body, matching rpc/serializer's "type byte, then payload" shape.
func Encode(msg Message) ([]byte, error) {
	em, ok := msg.(encodable)
	if !ok {
		return nil, fmt.Errorf("wire: %T does not implement encode", msg)
	}
	e := newEncoder()
	e.writeByte(byte(msg.Type()))
	em.encode(e)
	return e.bytes(), nil
}

// Decode reads the MsgType byte and dispatches to the matching
// message's decoder. Per spec.md §7, a short or malformed buffer is a
// fatal protocol error, not a tolerated edge case.
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("wire: empty message")
	}
	msgType := MessageType(data[0])
	d := newDecoder(data[1:])

	var msg Message
	switch msgType {
	case MsgTMaterializedViewAnnounce:
		msg = decodeMaterializedViewAnnounce(d)
	case MsgTSubviewDidRequest:
		msg = decodeSubviewDidRequest(d)
	case MsgTSubviewDidResponse:
		msg = decodeSubviewDidResponse(d)
	case MsgTMaterializedUpdate:
		msg = decodeMaterializedUpdate(d)
	case MsgTAtomicReservationRequest:
		msg = decodeAtomicReservationRequest(d)
	case MsgTAtomicReservationResponse:
		msg = decodeAtomicReservationResponse(d)
	case MsgTReductionViewAnnounce:
		msg = decodeReductionViewAnnounce(d)
	case MsgTReductionUpdate:
		msg = decodeReductionUpdate(d)
	case MsgTCompositeViewAnnounce:
		msg = decodeCompositeViewAnnounce(d)
	case MsgTFillViewAnnounce:
		msg = decodeFillViewAnnounce(d)
	case MsgTAck:
		msg = decodeAck(d)
	default:
		return nil, fmt.Errorf("wire: unknown message type %d", msgType)
	}

	if d.err != nil {
		return nil, d.err
	}
	return msg, nil
}
