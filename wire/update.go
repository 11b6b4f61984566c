package wire

import (
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/versions"
)

// UserEntry is one row of a MaterializedUpdate's deduplication table: the
// wire form of an epoch.PhysicalUser (spec.md §4.5 step 3). The sender
// builds the table once per update and every EpochEntry below refers
// into it by index rather than repeating the payload per event.
type UserEntry struct {
	Privilege int32
	Coherence int32
	Redop     uint32
	Child     region.ColorPoint
	Versions  map[int]uint64
}

func encodeUserEntry(e *encoder, u UserEntry) {
	e.writeInt32(u.Privilege)
	e.writeInt32(u.Coherence)
	e.writeUint32(u.Redop)
	e.writeColor(u.Child)
	e.writeUint32(uint32(len(u.Versions)))
	for field, v := range u.Versions {
		e.writeInt32(int32(field))
		e.writeUint64(v)
	}
}

func decodeUserEntry(d *decoder) UserEntry {
	u := UserEntry{
		Privilege: d.readInt32(),
		Coherence: d.readInt32(),
		Redop:     d.readUint32(),
		Child:     d.readColor(),
	}
	n := d.readUint32()
	if n > 0 {
		u.Versions = make(map[int]uint64, n)
	}
	for i := uint32(0); i < n; i++ {
		field := int(d.readInt32())
		u.Versions[field] = d.readUint64()
	}
	return u
}

// VersionsMap adapts u.Versions back into the versions.FieldVersions the
// rest of the engine consumes.
func (u UserEntry) VersionsMap() versions.Map { return versions.Map(u.Versions) }

// EpochUserRef is one (user-table-index, mask) pair contributing to an
// EpochEntry.
type EpochUserRef struct {
	UserIndex int32
	Mask      fieldmask.FieldMask
}

// EpochEntry is one event's bucket within a current_epoch or
// previous_epoch block (spec.md §4.5 step 1/2). Users has length 1 for
// the common single-user bucket and length >1 once a second distinct
// user shares the event, mirroring epoch.EventUsers' single/multi split.
type EpochEntry struct {
	Event event.Event
	Users []EpochUserRef
}

func encodeEpochBlock(e *encoder, block []EpochEntry) {
	e.writeUint32(uint32(len(block)))
	for _, entry := range block {
		e.writeEvent(entry.Event)
		if len(entry.Users) == 1 {
			e.writeInt32(entry.Users[0].UserIndex)
			e.writeFieldMask(entry.Users[0].Mask)
			continue
		}
		// Negative count = multi-user block. The original packer writes
		// -(n+1) and its reader consumes |count|-1 entries (spec.md §9's
		// documented as-observed quirk); reproduced exactly so a block
		// built by this encoder and one built by the original agree
		// byte-for-byte on how many user slots follow.
		n := len(entry.Users)
		e.writeInt32(-(int32(n) + 1))
		for _, u := range entry.Users {
			e.writeInt32(u.UserIndex)
			e.writeFieldMask(u.Mask)
		}
	}
}

func decodeEpochBlock(d *decoder) []EpochEntry {
	n := d.readUint32()
	block := make([]EpochEntry, n)
	for i := range block {
		ev := d.readEvent()
		code := d.readInt32()
		if code >= 0 {
			block[i] = EpochEntry{Event: ev, Users: []EpochUserRef{{UserIndex: code, Mask: d.readFieldMask()}}}
			continue
		}
		count := int(-code) - 1
		users := make([]EpochUserRef, count)
		for j := range users {
			users[j] = EpochUserRef{UserIndex: d.readInt32(), Mask: d.readFieldMask()}
		}
		block[i] = EpochEntry{Event: ev, Users: users}
	}
	return block
}

// MaterializedUpdate ships a materialized view's epoch table to a remote
// replica (spec.md §4.5). UserTable is the dedup table built during the
// same walk that produced CurrentBlock/PreviousBlock; EpochUserRef.UserIndex
// indexes into it.
type MaterializedUpdate struct {
	IsRegion      bool
	Handle        uint64
	DID           id.DID
	UserTable     []UserEntry
	CurrentBlock  []EpochEntry
	PreviousBlock []EpochEntry
}

func (*MaterializedUpdate) Type() MessageType { return MsgTMaterializedUpdate }

func (m *MaterializedUpdate) encode(e *encoder) {
	e.writeBool(m.IsRegion)
	e.writeUint64(m.Handle)
	e.writeDID(m.DID)
	e.writeUint32(uint32(len(m.UserTable)))
	for _, u := range m.UserTable {
		encodeUserEntry(e, u)
	}
	encodeEpochBlock(e, m.CurrentBlock)
	encodeEpochBlock(e, m.PreviousBlock)
}

func decodeMaterializedUpdate(d *decoder) *MaterializedUpdate {
	m := &MaterializedUpdate{
		IsRegion: d.readBool(),
		Handle:   d.readUint64(),
		DID:      d.readDID(),
	}
	n := d.readUint32()
	m.UserTable = make([]UserEntry, n)
	for i := range m.UserTable {
		m.UserTable[i] = decodeUserEntry(d)
	}
	m.CurrentBlock = decodeEpochBlock(d)
	m.PreviousBlock = decodeEpochBlock(d)
	return m
}

// EventMaskEntry pairs an event with the field mask it covers, used by
// ReductionUpdate's flat reader/reducer blocks (spec.md §4.8 has no
// current/previous split, so no dedup table or multi-user encoding is
// needed here).
type EventMaskEntry struct {
	Event event.Event
	Mask  fieldmask.FieldMask
}

func encodeEventMaskBlock(e *encoder, block []EventMaskEntry) {
	e.writeUint32(uint32(len(block)))
	for _, entry := range block {
		e.writeEvent(entry.Event)
		e.writeFieldMask(entry.Mask)
	}
}

func decodeEventMaskBlock(d *decoder) []EventMaskEntry {
	n := d.readUint32()
	block := make([]EventMaskEntry, n)
	for i := range block {
		block[i] = EventMaskEntry{Event: d.readEvent(), Mask: d.readFieldMask()}
	}
	return block
}

// ReductionUpdate ships a reduction view's reader/reducer tables to a
// remote replica, analogous to MaterializedUpdate (spec.md §6).
type ReductionUpdate struct {
	DID      id.DID
	Readers  []EventMaskEntry
	Reducers []EventMaskEntry
}

func (*ReductionUpdate) Type() MessageType { return MsgTReductionUpdate }

func (m *ReductionUpdate) encode(e *encoder) {
	e.writeDID(m.DID)
	encodeEventMaskBlock(e, m.Readers)
	encodeEventMaskBlock(e, m.Reducers)
}

func decodeReductionUpdate(d *decoder) *ReductionUpdate {
	return &ReductionUpdate{
		DID:      d.readDID(),
		Readers:  decodeEventMaskBlock(d),
		Reducers: decodeEventMaskBlock(d),
	}
}
