// Package bufvec defines the IO buffer and vector model shared between
// the dsal façade and the storage backends.
//
// A Buf is a single contiguous byte range targeted at an offset within
// an object. A Vec batches several of them as parallel slices of payload
// buffers and extents. The memory behind a buffer always belongs to the
// caller: finalizing a buffer or a vector releases only the descriptor
// arrays, never the bytes they point at.
package bufvec

import (
	"fmt"
	"syscall"
)

// Flags describe what a vector carries.
type Flags uint8

const (
	// FlagData marks a payload-bearing vector (READ/WRITE ops). A vector
	// without it describes extents only (FREE/trim-style ops).
	FlagData Flags = 1 << iota
)

// Extent is an (offset, size) pair within an object.
type Extent struct {
	Off int64
	Len int64
}

// Buf is a single user buffer bound to an object offset. The bytes are
// borrowed from the caller for the lifetime of any operation using it.
type Buf struct {
	Data []byte
	Off  int64
}

// NewBuf builds a buffer descriptor from caller memory.
// The offset must be non-negative and the buffer non-empty.
func NewBuf(data []byte, off int64) (*Buf, error) {
	if len(data) == 0 || off < 0 {
		return nil, fmt.Errorf("bufvec: bad buffer (len=%d off=%d): %w",
			len(data), off, syscall.EINVAL)
	}
	return &Buf{Data: data, Off: off}, nil
}

// Fini releases the descriptor. The underlying bytes are untouched.
func (b *Buf) Fini() {
	b.Data = nil
	b.Off = 0
}

// Vec is a batched IO: parallel payload buffers and extents plus flags.
// For a data vector, Exts[i].Len == len(Bufs[i]) for every element.
type Vec struct {
	Bufs  [][]byte
	Exts  []Extent
	Flags Flags
}

// FromBuf transforms a one-buffer IO into a single-element vector.
// The vector borrows the buffer's memory; the Buf descriptor stays valid
// and must be finalized separately by the caller.
func FromBuf(b *Buf) (*Vec, error) {
	if b == nil || len(b.Data) == 0 {
		return nil, fmt.Errorf("bufvec: empty buffer: %w", syscall.EINVAL)
	}
	return &Vec{
		Bufs:  [][]byte{b.Data},
		Exts:  []Extent{{Off: b.Off, Len: int64(len(b.Data))}},
		Flags: FlagData,
	}, nil
}

// FromExtents builds a data-less vector for FREE-style operations.
func FromExtents(exts []Extent) (*Vec, error) {
	if len(exts) == 0 {
		return nil, fmt.Errorf("bufvec: empty extent list: %w", syscall.EINVAL)
	}
	for _, e := range exts {
		if e.Off < 0 || e.Len <= 0 {
			return nil, fmt.Errorf("bufvec: bad extent (off=%d len=%d): %w",
				e.Off, e.Len, syscall.EINVAL)
		}
	}
	v := &Vec{Exts: make([]Extent, len(exts))}
	copy(v.Exts, exts)
	return v, nil
}

// Nr returns the number of elements in the vector.
func (v *Vec) Nr() int {
	return len(v.Exts)
}

// HasData reports whether the vector carries payload buffers.
func (v *Vec) HasData() bool {
	return v.Flags&FlagData != 0
}

// Move transfers ownership of the descriptor arrays from src into v,
// zeroing src. It is used to hand buffers from a user-visible vector
// into a backend-private record that must not separately release them.
// The underlying byte storage is not copied or re-owned; it still
// belongs to the user.
func (v *Vec) Move(src *Vec) {
	v.Bufs = src.Bufs
	v.Exts = src.Exts
	v.Flags = src.Flags
	src.Bufs = nil
	src.Exts = nil
	src.Flags = 0
}

// Fini releases the descriptor arrays. User buffers are untouched.
func (v *Vec) Fini() {
	v.Bufs = nil
	v.Exts = nil
	v.Flags = 0
}

// Invariant reports whether the vector is well-formed: at least one
// element, positive sizes, non-negative offsets, and matching parallel
// arrays for data vectors. Intended for debug assertions.
func (v *Vec) Invariant() bool {
	if v == nil || len(v.Exts) == 0 {
		return false
	}
	for _, e := range v.Exts {
		if e.Off < 0 || e.Len <= 0 {
			return false
		}
	}
	if v.HasData() {
		if len(v.Bufs) != len(v.Exts) {
			return false
		}
		for i, b := range v.Bufs {
			if int64(len(b)) != v.Exts[i].Len {
				return false
			}
		}
	}
	return true
}
