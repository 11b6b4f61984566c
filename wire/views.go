package wire

import (
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
)

// MaterializedViewAnnounce announces a newly created materialized view
// to its owner's replicas (spec.md §6).
type MaterializedViewAnnounce struct {
	DID            id.DID
	ManagerDID     id.DID
	ParentDID      id.DID // 0 means "no parent, this is a root"
	RegionHandle   uint64
	OwnerSpace     uint64
	OwnerContextID uint64
}

func (*MaterializedViewAnnounce) Type() MessageType { return MsgTMaterializedViewAnnounce }

func (m *MaterializedViewAnnounce) encode(e *encoder) {
	e.writeDID(m.DID)
	e.writeDID(m.ManagerDID)
	e.writeDID(m.ParentDID)
	e.writeUint64(m.RegionHandle)
	e.writeUint64(m.OwnerSpace)
	e.writeUint64(m.OwnerContextID)
}

func decodeMaterializedViewAnnounce(d *decoder) *MaterializedViewAnnounce {
	return &MaterializedViewAnnounce{
		DID:            d.readDID(),
		ManagerDID:     d.readDID(),
		ParentDID:      d.readDID(),
		RegionHandle:   d.readUint64(),
		OwnerSpace:     d.readUint64(),
		OwnerContextID: d.readUint64(),
	}
}

// SubviewDidRequest asks a view's owner for the DID of its subview at
// color, per spec.md §4.4's "non-owner miss" path.
type SubviewDidRequest struct {
	ParentDID       id.DID
	Color           region.ColorPoint
	ReplySlot       uint64
	CompletionEvent event.Event
}

func (*SubviewDidRequest) Type() MessageType { return MsgTSubviewDidRequest }

func (m *SubviewDidRequest) encode(e *encoder) {
	e.writeDID(m.ParentDID)
	e.writeColor(m.Color)
	e.writeUint64(m.ReplySlot)
	e.writeEvent(m.CompletionEvent)
}

func decodeSubviewDidRequest(d *decoder) *SubviewDidRequest {
	return &SubviewDidRequest{
		ParentDID:       d.readDID(),
		Color:           d.readColor(),
		ReplySlot:       d.readUint64(),
		CompletionEvent: d.readEvent(),
	}
}

// SubviewDidResponse answers a SubviewDidRequest.
type SubviewDidResponse struct {
	ChildDID        id.DID
	ReplySlot       uint64
	CompletionEvent event.Event
}

func (*SubviewDidResponse) Type() MessageType { return MsgTSubviewDidResponse }

func (m *SubviewDidResponse) encode(e *encoder) {
	e.writeDID(m.ChildDID)
	e.writeUint64(m.ReplySlot)
	e.writeEvent(m.CompletionEvent)
}

func decodeSubviewDidResponse(d *decoder) *SubviewDidResponse {
	return &SubviewDidResponse{
		ChildDID:        d.readDID(),
		ReplySlot:       d.readUint64(),
		CompletionEvent: d.readEvent(),
	}
}

// AtomicReservationRequest asks the root view's owner to mint or return
// the reservation handles for a batch of fields (spec.md §4.6).
type AtomicReservationRequest struct {
	DID             id.DID
	Fields          []int
	CompletionEvent event.Event
}

func (*AtomicReservationRequest) Type() MessageType { return MsgTAtomicReservationRequest }

func (m *AtomicReservationRequest) encode(e *encoder) {
	e.writeDID(m.DID)
	e.writeUint32(uint32(len(m.Fields)))
	for _, f := range m.Fields {
		e.writeInt32(int32(f))
	}
	e.writeEvent(m.CompletionEvent)
}

func decodeAtomicReservationRequest(d *decoder) *AtomicReservationRequest {
	m := &AtomicReservationRequest{DID: d.readDID()}
	n := d.readUint32()
	m.Fields = make([]int, n)
	for i := range m.Fields {
		m.Fields[i] = int(d.readInt32())
	}
	m.CompletionEvent = d.readEvent()
	return m
}

// ReservationEntry pairs a field with the opaque token identifying its
// reservation object, as minted by lib/reservation.
type ReservationEntry struct {
	Field       int
	Reservation []byte
}

// AtomicReservationResponse answers an AtomicReservationRequest.
type AtomicReservationResponse struct {
	DID             id.DID
	Reservations    []ReservationEntry
	CompletionEvent event.Event
}

func (*AtomicReservationResponse) Type() MessageType { return MsgTAtomicReservationResponse }

func (m *AtomicReservationResponse) encode(e *encoder) {
	e.writeDID(m.DID)
	e.writeUint32(uint32(len(m.Reservations)))
	for _, r := range m.Reservations {
		e.writeInt32(int32(r.Field))
		e.writeBytes(r.Reservation)
	}
	e.writeEvent(m.CompletionEvent)
}

func decodeAtomicReservationResponse(d *decoder) *AtomicReservationResponse {
	m := &AtomicReservationResponse{DID: d.readDID()}
	n := d.readUint32()
	m.Reservations = make([]ReservationEntry, n)
	for i := range m.Reservations {
		m.Reservations[i] = ReservationEntry{Field: int(d.readInt32()), Reservation: d.readBytes()}
	}
	m.CompletionEvent = d.readEvent()
	return m
}

// ReductionViewAnnounce announces a newly created reduction view,
// analogous to MaterializedViewAnnounce (spec.md §6).
type ReductionViewAnnounce struct {
	DID            id.DID
	Redop          region.RedopID
	OwnerSpace     uint64
	OwnerContextID uint64
}

func (*ReductionViewAnnounce) Type() MessageType { return MsgTReductionViewAnnounce }

func (m *ReductionViewAnnounce) encode(e *encoder) {
	e.writeDID(m.DID)
	e.writeUint32(uint32(m.Redop))
	e.writeUint64(m.OwnerSpace)
	e.writeUint64(m.OwnerContextID)
}

func decodeReductionViewAnnounce(d *decoder) *ReductionViewAnnounce {
	return &ReductionViewAnnounce{
		DID:            d.readDID(),
		Redop:          region.RedopID(d.readUint32()),
		OwnerSpace:     d.readUint64(),
		OwnerContextID: d.readUint64(),
	}
}

// FillViewAnnounce announces a newly created fill view and its constant
// payload (spec.md §6).
type FillViewAnnounce struct {
	DID        id.DID
	OwnerSpace uint64
	Handle     uint64
	ValueSize  uint32
	Value      []byte
}

func (*FillViewAnnounce) Type() MessageType { return MsgTFillViewAnnounce }

func (m *FillViewAnnounce) encode(e *encoder) {
	e.writeDID(m.DID)
	e.writeUint64(m.OwnerSpace)
	e.writeUint64(m.Handle)
	e.writeUint32(m.ValueSize)
	e.writeBytes(m.Value)
}

func decodeFillViewAnnounce(d *decoder) *FillViewAnnounce {
	return &FillViewAnnounce{
		DID:        d.readDID(),
		OwnerSpace: d.readUint64(),
		Handle:     d.readUint64(),
		ValueSize:  d.readUint32(),
		Value:      d.readBytes(),
	}
}
