package wire

import (
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
)

// CompositeTreeView is one (did, mask) entry in a CompositeTreeNode's
// valid-source or reduction list.
type CompositeTreeView struct {
	DID  id.DID
	Mask fieldmask.FieldMask
}

// CompositeTreeChild is one (color, mask, subtree) entry in a
// CompositeTreeNode's child list.
type CompositeTreeChild struct {
	Color region.ColorPoint
	Mask  fieldmask.FieldMask
	Node  *CompositeTreeNode
}

// CompositeTreeNode is the wire form of one lib/views.CompositeNode,
// preorder-encoded exactly as spec.md §6 describes: dirty_mask,
// reduction_mask, num_views, [did,mask]..., num_reductions, [did,mask]...,
// num_children, [color,mask,<subtree>]...
type CompositeTreeNode struct {
	DirtyMask     fieldmask.FieldMask
	ReductionMask fieldmask.FieldMask
	Views         []CompositeTreeView
	Reductions    []CompositeTreeView
	Children      []CompositeTreeChild
}

func encodeCompositeTree(e *encoder, n *CompositeTreeNode) {
	e.writeFieldMask(n.DirtyMask)
	e.writeFieldMask(n.ReductionMask)

	e.writeUint32(uint32(len(n.Views)))
	for _, v := range n.Views {
		e.writeDID(v.DID)
		e.writeFieldMask(v.Mask)
	}

	e.writeUint32(uint32(len(n.Reductions)))
	for _, r := range n.Reductions {
		e.writeDID(r.DID)
		e.writeFieldMask(r.Mask)
	}

	e.writeUint32(uint32(len(n.Children)))
	for _, c := range n.Children {
		e.writeColor(c.Color)
		e.writeFieldMask(c.Mask)
		encodeCompositeTree(e, c.Node)
	}
}

func decodeCompositeTree(d *decoder) *CompositeTreeNode {
	n := &CompositeTreeNode{
		DirtyMask:     d.readFieldMask(),
		ReductionMask: d.readFieldMask(),
	}

	numViews := d.readUint32()
	n.Views = make([]CompositeTreeView, numViews)
	for i := range n.Views {
		n.Views[i] = CompositeTreeView{DID: d.readDID(), Mask: d.readFieldMask()}
	}

	numReductions := d.readUint32()
	n.Reductions = make([]CompositeTreeView, numReductions)
	for i := range n.Reductions {
		n.Reductions[i] = CompositeTreeView{DID: d.readDID(), Mask: d.readFieldMask()}
	}

	numChildren := d.readUint32()
	n.Children = make([]CompositeTreeChild, numChildren)
	for i := range n.Children {
		color := d.readColor()
		mask := d.readFieldMask()
		if d.err != nil {
			continue
		}
		n.Children[i] = CompositeTreeChild{Color: color, Mask: mask, Node: decodeCompositeTree(d)}
	}

	return n
}

// CompositeViewAnnounce announces a newly created composite view and its
// entire immutable snapshot tree (spec.md §6).
type CompositeViewAnnounce struct {
	DID             id.DID
	Owner           uint64
	IsRegion        bool
	Handle          uint64
	VersionInfoBlob []byte
	Tree            *CompositeTreeNode
}

func (*CompositeViewAnnounce) Type() MessageType { return MsgTCompositeViewAnnounce }

func (m *CompositeViewAnnounce) encode(e *encoder) {
	e.writeDID(m.DID)
	e.writeUint64(m.Owner)
	e.writeBool(m.IsRegion)
	e.writeUint64(m.Handle)
	e.writeBytes(m.VersionInfoBlob)
	encodeCompositeTree(e, m.Tree)
}

func decodeCompositeViewAnnounce(d *decoder) *CompositeViewAnnounce {
	return &CompositeViewAnnounce{
		DID:             d.readDID(),
		Owner:           d.readUint64(),
		IsRegion:        d.readBool(),
		Handle:          d.readUint64(),
		VersionInfoBlob: d.readBytes(),
		Tree:            decodeCompositeTree(d),
	}
}
