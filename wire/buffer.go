package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
)

// encoder accumulates a message body using the same big-endian,
// length-prefixed field discipline as rpc/serializer's binary codec, but
// over a growable buffer instead of a single precomputed-size
// allocation — the composite tree blob is recursive and unbounded, so
// there is no fixed sizeBytes to compute up front.
type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) writeByte(b byte) { e.buf.WriteByte(b) }

func (e *encoder) writeBool(b bool) {
	if b {
		e.writeByte(1)
	} else {
		e.writeByte(0)
	}
}

func (e *encoder) writeUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf.Write(tmp[:])
}

func (e *encoder) writeInt32(v int32) { e.writeUint32(uint32(v)) }

func (e *encoder) writeUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf.Write(tmp[:])
}

func (e *encoder) writeBytes(b []byte) {
	e.writeUint32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) writeString(s string) { e.writeBytes([]byte(s)) }

func (e *encoder) writeDID(d id.DID) { e.writeUint64(uint64(d)) }

func (e *encoder) writeEvent(ev event.Event) { e.writeUint64(ev.ID()) }

func (e *encoder) writeColor(c region.ColorPoint) {
	e.writeBool(c.IsValid())
	e.writeUint64(c.Value())
}

func (e *encoder) writeFieldMask(m fieldmask.FieldMask) {
	words := m.Words()
	e.writeUint32(uint32(len(words)))
	for _, w := range words {
		e.writeUint64(w)
	}
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

// decoder reads a message body written by encoder, failing fast (and
// permanently — per spec.md §7 "mismatch is fatal") the first time a
// length marker runs past the end of the buffer.
type decoder struct {
	data []byte
	pos  int
	err  error
}

func newDecoder(data []byte) *decoder { return &decoder{data: data} }

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.pos+n > len(d.data) {
		d.fail("wire: need %d bytes at offset %d, have %d", n, d.pos, len(d.data))
		return false
	}
	return true
}

func (d *decoder) readByte() byte {
	if !d.need(1) {
		return 0
	}
	b := d.data[d.pos]
	d.pos++
	return b
}

func (d *decoder) readBool() bool { return d.readByte() != 0 }

func (d *decoder) readUint32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.data[d.pos : d.pos+4])
	d.pos += 4
	return v
}

func (d *decoder) readInt32() int32 { return int32(d.readUint32()) }

func (d *decoder) readUint64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.data[d.pos : d.pos+8])
	d.pos += 8
	return v
}

func (d *decoder) readBytes() []byte {
	n := d.readUint32()
	if !d.need(int(n)) {
		return nil
	}
	b := make([]byte, n)
	copy(b, d.data[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return b
}

func (d *decoder) readString() string { return string(d.readBytes()) }

func (d *decoder) readDID() id.DID { return id.DID(d.readUint64()) }

func (d *decoder) readEvent() event.Event { return event.FromID(d.readUint64()) }

func (d *decoder) readColor() region.ColorPoint {
	valid := d.readBool()
	value := d.readUint64()
	if !valid {
		return region.NoColor
	}
	return region.NewColor(value)
}

func (d *decoder) readFieldMask() fieldmask.FieldMask {
	n := d.readUint32()
	if !d.need(int(n) * 8) {
		return fieldmask.FieldMask{}
	}
	words := make([]uint64, n)
	for i := range words {
		words[i] = d.readUint64()
	}
	return fieldmask.FromWords(words)
}
