package wire

import (
	"fmt"
	"testing"

	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Type() != msg.Type() {
		t.Fatalf("type mismatch: got %v, want %v", out.Type(), msg.Type())
	}
	return out
}

func TestMaterializedViewAnnounceRoundTrip(t *testing.T) {
	msg := &MaterializedViewAnnounce{
		DID:            id.DID(7),
		ManagerDID:     id.DID(2),
		ParentDID:      id.DID(0),
		RegionHandle:   0xabc,
		OwnerSpace:     3,
		OwnerContextID: 9,
	}
	out := roundTrip(t, msg).(*MaterializedViewAnnounce)
	if *out != *msg {
		t.Fatalf("got %+v, want %+v", out, msg)
	}
}

func TestSubviewDidRequestResponseRoundTrip(t *testing.T) {
	src := event.NewSource()
	req := &SubviewDidRequest{
		ParentDID:       id.DID(1),
		Color:           region.NewColor(4),
		ReplySlot:       11,
		CompletionEvent: src.Event(),
	}
	out := roundTrip(t, req).(*SubviewDidRequest)
	if out.ParentDID != req.ParentDID || out.ReplySlot != req.ReplySlot {
		t.Fatalf("got %+v, want %+v", out, req)
	}
	if !region.SameColor(out.Color, req.Color) {
		t.Fatalf("color mismatch: got %v, want %v", out.Color, req.Color)
	}
	if out.CompletionEvent.ID() != req.CompletionEvent.ID() {
		t.Fatalf("event id mismatch: got %d, want %d", out.CompletionEvent.ID(), req.CompletionEvent.ID())
	}

	resp := &SubviewDidResponse{ChildDID: id.DID(5), ReplySlot: 11, CompletionEvent: src.Event()}
	roundTrip(t, resp)
}

func TestSubviewDidRequestNoColorRoundTrip(t *testing.T) {
	req := &SubviewDidRequest{ParentDID: id.DID(1), Color: region.NoColor}
	out := roundTrip(t, req).(*SubviewDidRequest)
	if out.Color.IsValid() {
		t.Fatalf("expected NoColor to round-trip as invalid")
	}
}

func TestAtomicReservationRoundTrip(t *testing.T) {
	req := &AtomicReservationRequest{DID: id.DID(1), Fields: []int{0, 3, 5}}
	out := roundTrip(t, req).(*AtomicReservationRequest)
	if len(out.Fields) != 3 || out.Fields[1] != 3 {
		t.Fatalf("got %v, want %v", out.Fields, req.Fields)
	}

	resp := &AtomicReservationResponse{
		DID: id.DID(1),
		Reservations: []ReservationEntry{
			{Field: 0, Reservation: []byte("tok0")},
			{Field: 3, Reservation: []byte("tok3")},
		},
	}
	outResp := roundTrip(t, resp).(*AtomicReservationResponse)
	if len(outResp.Reservations) != 2 || string(outResp.Reservations[1].Reservation) != "tok3" {
		t.Fatalf("got %+v, want %+v", outResp.Reservations, resp.Reservations)
	}
}

func TestReductionViewAnnounceRoundTrip(t *testing.T) {
	msg := &ReductionViewAnnounce{DID: id.DID(9), Redop: region.RedopID(2), OwnerSpace: 1, OwnerContextID: 2}
	out := roundTrip(t, msg).(*ReductionViewAnnounce)
	if *out != *msg {
		t.Fatalf("got %+v, want %+v", out, msg)
	}
}

func TestFillViewAnnounceRoundTrip(t *testing.T) {
	msg := &FillViewAnnounce{DID: id.DID(4), OwnerSpace: 1, Handle: 2, ValueSize: 3, Value: []byte{1, 2, 3}}
	out := roundTrip(t, msg).(*FillViewAnnounce)
	if out.DID != msg.DID || out.ValueSize != msg.ValueSize || string(out.Value) != string(msg.Value) {
		t.Fatalf("got %+v, want %+v", out, msg)
	}
}

func TestMaterializedUpdateRoundTripSingleAndMultiUserBlocks(t *testing.T) {
	e1 := event.NewSource().Event()
	e2 := event.NewSource().Event()

	msg := &MaterializedUpdate{
		IsRegion: true,
		Handle:   0x42,
		DID:      id.DID(3),
		UserTable: []UserEntry{
			{Privilege: 1, Coherence: 0, Redop: 0, Child: region.NewColor(1), Versions: map[int]uint64{0: 7}},
			{Privilege: 2, Coherence: 1, Redop: 5, Child: region.NoColor, Versions: nil},
		},
		CurrentBlock: []EpochEntry{
			{Event: e1, Users: []EpochUserRef{{UserIndex: 0, Mask: fieldmask.FromBits(0)}}},
			{Event: e2, Users: []EpochUserRef{
				{UserIndex: 0, Mask: fieldmask.FromBits(0)},
				{UserIndex: 1, Mask: fieldmask.FromBits(1)},
			}},
		},
		PreviousBlock: nil,
	}

	out := roundTrip(t, msg).(*MaterializedUpdate)
	if out.IsRegion != msg.IsRegion || out.Handle != msg.Handle || out.DID != msg.DID {
		t.Fatalf("header mismatch: got %+v", out)
	}
	if len(out.UserTable) != 2 || out.UserTable[0].Versions[0] != 7 {
		t.Fatalf("user table mismatch: got %+v", out.UserTable)
	}
	if len(out.CurrentBlock) != 2 {
		t.Fatalf("expected 2 current-epoch entries, got %d", len(out.CurrentBlock))
	}
	if len(out.CurrentBlock[0].Users) != 1 {
		t.Fatalf("expected single-user block, got %d users", len(out.CurrentBlock[0].Users))
	}
	if len(out.CurrentBlock[1].Users) != 2 {
		t.Fatalf("expected multi-user block with 2 users, got %d", len(out.CurrentBlock[1].Users))
	}
	if out.CurrentBlock[1].Users[1].UserIndex != 1 {
		t.Fatalf("expected second user index 1, got %d", out.CurrentBlock[1].Users[1].UserIndex)
	}
	if len(out.PreviousBlock) != 0 {
		t.Fatalf("expected empty previous block, got %d", len(out.PreviousBlock))
	}
}

func TestReductionUpdateRoundTrip(t *testing.T) {
	e1 := event.NewSource().Event()
	e2 := event.NewSource().Event()
	msg := &ReductionUpdate{
		DID:      id.DID(6),
		Readers:  []EventMaskEntry{{Event: e1, Mask: fieldmask.FromBits(0, 1)}},
		Reducers: []EventMaskEntry{{Event: e2, Mask: fieldmask.FromBits(2)}},
	}
	out := roundTrip(t, msg).(*ReductionUpdate)
	if len(out.Readers) != 1 || len(out.Reducers) != 1 {
		t.Fatalf("got %+v", out)
	}
	if !fieldmask.Equal(out.Readers[0].Mask, msg.Readers[0].Mask) {
		t.Fatalf("reader mask mismatch")
	}
}

func TestCompositeViewAnnounceRoundTrip(t *testing.T) {
	leaf := &CompositeTreeNode{
		DirtyMask: fieldmask.FromBits(0),
		Views:     []CompositeTreeView{{DID: id.DID(10), Mask: fieldmask.FromBits(0)}},
	}
	root := &CompositeTreeNode{
		DirtyMask:     fieldmask.FromBits(0, 1),
		ReductionMask: fieldmask.FromBits(1),
		Reductions:    []CompositeTreeView{{DID: id.DID(11), Mask: fieldmask.FromBits(1)}},
		Children: []CompositeTreeChild{
			{Color: region.NewColor(0), Mask: fieldmask.FromBits(0), Node: leaf},
		},
	}
	msg := &CompositeViewAnnounce{
		DID:             id.DID(1),
		Owner:           2,
		IsRegion:        true,
		Handle:          3,
		VersionInfoBlob: []byte("v1"),
		Tree:            root,
	}
	out := roundTrip(t, msg).(*CompositeViewAnnounce)
	if out.DID != msg.DID || string(out.VersionInfoBlob) != "v1" {
		t.Fatalf("header mismatch: got %+v", out)
	}
	if len(out.Tree.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(out.Tree.Children))
	}
	if len(out.Tree.Children[0].Node.Views) != 1 || out.Tree.Children[0].Node.Views[0].DID != id.DID(10) {
		t.Fatalf("leaf view mismatch: got %+v", out.Tree.Children[0].Node)
	}
	if len(out.Tree.Reductions) != 1 || out.Tree.Reductions[0].DID != id.DID(11) {
		t.Fatalf("root reduction mismatch: got %+v", out.Tree.Reductions)
	}
}

func TestAckRoundTrip(t *testing.T) {
	out := roundTrip(t, OK()).(*Ack)
	if out.Err != "" {
		t.Fatalf("expected empty Err on success ack, got %q", out.Err)
	}

	out2 := roundTrip(t, ErrAck(fmt.Errorf("boom"))).(*Ack)
	if out2.Err != "boom" {
		t.Fatalf("expected Err %q, got %q", "boom", out2.Err)
	}
}

func TestDecodeUnknownMessageType(t *testing.T) {
	if _, err := Decode([]byte{255}); err == nil {
		t.Fatalf("expected error for unknown message type")
	}
}

func TestDecodeTruncatedMessageIsFatal(t *testing.T) {
	msg := &MaterializedViewAnnounce{DID: id.DID(1)}
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(data[:len(data)-2]); err == nil {
		t.Fatalf("expected truncated message to fail decoding")
	}
}
