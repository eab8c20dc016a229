package dsal

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// OID is a 128-bit object identifier. It is opaque to the core: the only
// contracts are equality comparison and serialization as two 64-bit
// halves. No ordering is defined.
type OID struct {
	Hi uint64
	Lo uint64
}

// NewOID generates a fresh random identifier. Backends without their own
// id-allocation service use this for obj_get_id.
func NewOID() OID {
	u := uuid.New()
	return OID{
		Hi: binary.BigEndian.Uint64(u[0:8]),
		Lo: binary.BigEndian.Uint64(u[8:16]),
	}
}

// String renders the identifier as the two halves in hex, the form used
// in log lines and backend key spaces.
func (o OID) String() string {
	return fmt.Sprintf("%016x:%016x", o.Hi, o.Lo)
}

// Bytes serializes the identifier as two big-endian 64-bit halves.
func (o OID) Bytes() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], o.Hi)
	binary.BigEndian.PutUint64(b[8:16], o.Lo)
	return b
}

// OIDFromBytes deserializes an identifier produced by Bytes.
func OIDFromBytes(b []byte) (OID, error) {
	if len(b) != 16 {
		return OID{}, NewError("oid_from_bytes", ErrCodeInvalidArgument,
			fmt.Sprintf("want 16 bytes, got %d", len(b)))
	}
	return OID{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// ParseOID parses the String form back into an identifier.
func ParseOID(s string) (OID, error) {
	var o OID
	if _, err := fmt.Sscanf(s, "%16x:%16x", &o.Hi, &o.Lo); err != nil {
		return OID{}, NewError("parse_oid", ErrCodeInvalidArgument,
			fmt.Sprintf("malformed oid %q", s))
	}
	return o, nil
}
