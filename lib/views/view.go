package views

import (
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/registry"
)

// LogicalView is the header every view variant shares: a stable DID and
// the kind tag a remote peer can dispatch on before the object behind
// the DID has been materialized locally (spec.md §3 "LogicalView").
type LogicalView interface {
	registry.Object
	Kind() id.Kind
}

var (
	_ LogicalView = (*MaterializedView)(nil)
	_ LogicalView = (*ReductionView)(nil)
	_ LogicalView = (*CompositeView)(nil)
	_ LogicalView = (*FillView)(nil)
)
