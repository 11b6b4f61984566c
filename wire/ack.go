package wire

// Ack is the transport-level reply to a one-way Announce/Update message
// (MaterializedViewAnnounce, MaterializedUpdate, ReductionViewAnnounce,
// ReductionUpdate, CompositeViewAnnounce, FillViewAnnounce): none of
// those carry a domain response of their own, but the byte-framed
// transport (rpc/transport) still expects exactly one reply per request,
// so the server sends this back. Mirrors rpc/common.Message's
// MsgTError/Err field for carrying a failure across the same transport
// used for domain responses.
type Ack struct {
	Err string
}

func (*Ack) Type() MessageType { return MsgTAck }

func (m *Ack) encode(e *encoder) {
	e.writeBytes([]byte(m.Err))
}

func decodeAck(d *decoder) *Ack {
	return &Ack{Err: string(d.readBytes())}
}

// OK is the zero-value success Ack.
func OK() *Ack { return &Ack{} }

// ErrAck wraps err's message into a failure Ack.
func ErrAck(err error) *Ack { return &Ack{Err: err.Error()} }
