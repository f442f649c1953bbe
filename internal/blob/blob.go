// Package blob defines the immutable byte-sequence type shared by every
// container reader, transform, and writer in the core.
package blob

// Blob is an immutable byte sequence with a known length. It is cheap to
// share: Slice creates a view without copying the backing array. Once
// constructed, a Blob's bytes are never mutated in place — transforms that
// need to edit bytes build a new Blob instead.
type Blob struct {
	data []byte
}

// New wraps data as a Blob. The caller must not mutate data afterwards.
func New(data []byte) Blob {
	return Blob{data: data}
}

// Bytes returns the underlying bytes. Callers must treat the result as
// read-only.
func (b Blob) Bytes() []byte {
	return b.data
}

// Len returns the blob length in bytes.
func (b Blob) Len() int {
	return len(b.data)
}

// IsEmpty reports whether the blob holds no bytes at all (distinct from a
// tile that is absent — callers use (Blob, bool) or pointer returns for
// "no tile").
func (b Blob) IsEmpty() bool {
	return len(b.data) == 0
}

// Slice returns a sub-view [from:to) without copying.
func (b Blob) Slice(from, to int) Blob {
	return Blob{data: b.data[from:to]}
}

// Clone returns a Blob backed by a private copy of the bytes, for callers
// that must hold a reference past the lifetime of a borrowed buffer.
func (b Blob) Clone() Blob {
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return Blob{data: cp}
}
