package server

import (
	"testing"

	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/gc"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/registry"
	"github.com/vkolb/viewmesh/lib/views"
	"github.com/vkolb/viewmesh/wire"
)

func newTestViewsHandler(t *testing.T) (func(uint64, []byte) []byte, *id.Allocator) {
	t.Helper()
	alloc_ := id.NewAllocator(1)
	eng := views.NewEngine(region.NewConservativeTree(), alloc.NewInMemory(), gc.NewScheduler(), registry.New(1))
	return NewViewsTransportHandler(eng, alloc_), alloc_
}

func TestViewsTransportHandlerFillAnnounceAck(t *testing.T) {
	handle, alloc_ := newTestViewsHandler(t)

	did, err := alloc_.New(id.KindFill)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req, err := wire.Encode(&wire.FillViewAnnounce{DID: did, Value: []byte{9}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	respBytes := handle(0, req)
	resp, err := wire.Decode(respBytes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ack, ok := resp.(*wire.Ack)
	if !ok {
		t.Fatalf("expected *wire.Ack, got %T", resp)
	}
	if ack.Err != "" {
		t.Fatalf("unexpected ack error: %s", ack.Err)
	}
}

func TestViewsTransportHandlerUnknownDIDReturnsErrAck(t *testing.T) {
	handle, _ := newTestViewsHandler(t)

	req, err := wire.Encode(&wire.MaterializedUpdate{DID: id.DID(12345)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	respBytes := handle(0, req)
	resp, err := wire.Decode(respBytes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ack, ok := resp.(*wire.Ack)
	if !ok {
		t.Fatalf("expected *wire.Ack, got %T", resp)
	}
	if ack.Err == "" {
		t.Fatalf("expected a non-empty ack error for an unknown DID")
	}
}

func TestViewsTransportHandlerMalformedRequest(t *testing.T) {
	handle, _ := newTestViewsHandler(t)

	resp, err := wire.Decode(handle(0, []byte{255}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ack, ok := resp.(*wire.Ack)
	if !ok || ack.Err == "" {
		t.Fatalf("expected a failure ack for a malformed request, got %+v", resp)
	}
}
