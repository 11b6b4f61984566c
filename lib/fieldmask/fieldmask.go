package fieldmask

import (
	"fmt"
	"math/bits"
	"strings"
)

const wordBits = 64

// FieldMask is a bitset over a field space. The zero value is the empty
// mask and is ready to use; masks of different bit-widths compare and
// combine safely (the shorter operand is treated as zero-extended).
type FieldMask struct {
	words []uint64
}

// New returns an empty mask with room for at least numFields bits.
func New(numFields int) FieldMask {
	if numFields <= 0 {
		return FieldMask{}
	}
	return FieldMask{words: make([]uint64, (numFields+wordBits-1)/wordBits)}
}

// FromBits returns a mask with exactly the given field ids set.
func FromBits(fields ...int) FieldMask {
	var m FieldMask
	for _, f := range fields {
		m.Set(f)
	}
	return m
}

func wordIndex(field int) (word int, bit uint) {
	return field / wordBits, uint(field % wordBits)
}

func (m *FieldMask) ensure(word int) {
	if word < len(m.words) {
		return
	}
	grown := make([]uint64, word+1)
	copy(grown, m.words)
	m.words = grown
}

// Set marks field as present in the mask.
func (m *FieldMask) Set(field int) {
	w, b := wordIndex(field)
	m.ensure(w)
	m.words[w] |= 1 << b
}

// Clear removes field from the mask.
func (m *FieldMask) Clear(field int) {
	w, _ := wordIndex(field)
	if w >= len(m.words) {
		return
	}
	_, b := wordIndex(field)
	m.words[w] &^= 1 << b
}

// Test reports whether field is present in the mask.
func (m FieldMask) Test(field int) bool {
	w, b := wordIndex(field)
	if w >= len(m.words) {
		return false
	}
	return m.words[w]&(1<<b) != 0
}

// IsEmpty reports whether the mask has no bits set (the "!mask" test in
// the spec).
func (m FieldMask) IsEmpty() bool {
	for _, w := range m.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// PopCount returns the number of set bits.
func (m FieldMask) PopCount() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

func maxLen(a, b []uint64) int {
	if len(a) > len(b) {
		return len(a)
	}
	return len(b)
}

func wordAt(words []uint64, i int) uint64 {
	if i >= len(words) {
		return 0
	}
	return words[i]
}

// Union returns a & b's bitwise OR.
func Union(a, b FieldMask) FieldMask {
	n := maxLen(a.words, b.words)
	if n == 0 {
		return FieldMask{}
	}
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = wordAt(a.words, i) | wordAt(b.words, i)
	}
	return FieldMask{words: out}
}

// Intersect returns the bitwise AND of a and b.
func Intersect(a, b FieldMask) FieldMask {
	n := maxLen(a.words, b.words)
	if n == 0 {
		return FieldMask{}
	}
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = wordAt(a.words, i) & wordAt(b.words, i)
	}
	return FieldMask{words: out}
}

// Subtract returns a with every bit in b cleared (a - b).
func Subtract(a, b FieldMask) FieldMask {
	n := len(a.words)
	if n == 0 {
		return FieldMask{}
	}
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = wordAt(a.words, i) &^ wordAt(b.words, i)
	}
	return FieldMask{words: out}
}

// Disjoint reports whether a and b share no bit (the "a * b" test in the
// spec, read as "no overlap").
func Disjoint(a, b FieldMask) bool {
	n := maxLen(a.words, b.words)
	for i := 0; i < n; i++ {
		if wordAt(a.words, i)&wordAt(b.words, i) != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether a and b have exactly the same bits set.
func Equal(a, b FieldMask) bool {
	n := maxLen(a.words, b.words)
	for i := 0; i < n; i++ {
		if wordAt(a.words, i) != wordAt(b.words, i) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of m.
func (m FieldMask) Clone() FieldMask {
	if len(m.words) == 0 {
		return FieldMask{}
	}
	out := make([]uint64, len(m.words))
	copy(out, m.words)
	return FieldMask{words: out}
}

// Fields returns the sorted list of set field ids. Intended for tests and
// debug output; not on any hot path.
func (m FieldMask) Fields() []int {
	var out []int
	for wi, w := range m.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, wi*wordBits+b)
			w &^= 1 << b
		}
	}
	return out
}

func (m FieldMask) String() string {
	fields := m.Fields()
	strs := make([]string, len(fields))
	for i, f := range fields {
		strs[i] = fmt.Sprintf("%d", f)
	}
	return "{" + strings.Join(strs, ",") + "}"
}

// Words exposes the backing words for codecs (wire encoding) that need a
// stable, length-prefixed representation. Callers must not mutate the
// returned slice.
func (m FieldMask) Words() []uint64 {
	return m.words
}

// FromWords reconstructs a mask from words previously returned by Words.
func FromWords(words []uint64) FieldMask {
	if len(words) == 0 {
		return FieldMask{}
	}
	out := make([]uint64, len(words))
	copy(out, words)
	return FieldMask{words: out}
}
