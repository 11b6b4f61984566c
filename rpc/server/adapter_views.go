package server

import (
	"fmt"

	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/views"
	"github.com/vkolb/viewmesh/rpc/transport"
	"github.com/vkolb/viewmesh/wire"
)

// NewViewsTransportHandler builds the view-engine's RPC surface: unlike
// the KV/lock shards above, which route through IRPCServerAdapter and a
// store.IStore, wire messages carry their own typed payloads and have no
// store to dispatch against, so this talks directly to a lib/views.Engine
// over the transport layer's raw byte handler (spec.md §6's message set).
// alloc_ mints DIDs for subviews created to satisfy a remote
// subview_did_request on this node's behalf.
func NewViewsTransportHandler(eng *views.Engine, alloc_ *id.Allocator) transport.ServerHandleFunc {
	return func(_ uint64, req []byte) []byte {
		msg, err := wire.Decode(req)
		if err != nil {
			return mustEncode(wire.ErrAck(err))
		}

		switch m := msg.(type) {
		case *wire.MaterializedViewAnnounce:
			return mustEncode(ackOf(eng.HandleMaterializedViewAnnounce(m)))
		case *wire.SubviewDidRequest:
			resp, err := eng.HandleSubviewDidRequest(m, alloc_)
			if err != nil {
				return mustEncode(wire.ErrAck(err))
			}
			return mustEncode(resp)
		case *wire.MaterializedUpdate:
			return mustEncode(ackOf(eng.HandleMaterializedUpdate(m)))
		case *wire.AtomicReservationRequest:
			resp, err := eng.HandleAtomicReservationRequest(m)
			if err != nil {
				return mustEncode(wire.ErrAck(err))
			}
			return mustEncode(resp)
		case *wire.ReductionViewAnnounce:
			return mustEncode(ackOf(eng.HandleReductionViewAnnounce(m)))
		case *wire.ReductionUpdate:
			return mustEncode(ackOf(eng.HandleReductionUpdate(m)))
		case *wire.CompositeViewAnnounce:
			return mustEncode(ackOf(eng.HandleCompositeViewAnnounce(m)))
		case *wire.FillViewAnnounce:
			return mustEncode(ackOf(eng.HandleFillViewAnnounce(m)))
		default:
			return mustEncode(wire.ErrAck(fmt.Errorf("unexpected message type %T on views transport", m)))
		}
	}
}

func ackOf(err error) *wire.Ack {
	if err != nil {
		return wire.ErrAck(err)
	}
	return wire.OK()
}

// mustEncode encodes a well-formed outgoing wire.Message. Every type
// handled above implements encode, so the only way Encode fails is a
// programmer error introducing a new Message without it — which a test
// covering every case here would catch, not a runtime condition to
// surface to the caller as a real Ack error.
func mustEncode(msg wire.Message) []byte {
	b, err := wire.Encode(msg)
	if err != nil {
		panic(fmt.Sprintf("views transport: %v", err))
	}
	return b
}
