package dsal

import "testing"

func TestOIDRoundtrip(t *testing.T) {
	oid := NewOID()

	b := oid.Bytes()
	if len(b) != 16 {
		t.Fatalf("Bytes() length = %d, want 16", len(b))
	}

	back, err := OIDFromBytes(b)
	if err != nil {
		t.Fatalf("OIDFromBytes failed: %v", err)
	}
	if back != oid {
		t.Errorf("bytes roundtrip: got %s, want %s", back, oid)
	}

	parsed, err := ParseOID(oid.String())
	if err != nil {
		t.Fatalf("ParseOID(%q) failed: %v", oid, err)
	}
	if parsed != oid {
		t.Errorf("string roundtrip: got %s, want %s", parsed, oid)
	}
}

func TestOIDFromBytesBadLength(t *testing.T) {
	if _, err := OIDFromBytes(make([]byte, 8)); !IsCode(err, ErrCodeInvalidArgument) {
		t.Errorf("short input error = %v, want invalid argument", err)
	}
}

func TestParseOIDMalformed(t *testing.T) {
	for _, s := range []string{"", "zzz", "123"} {
		if _, err := ParseOID(s); err == nil {
			t.Errorf("ParseOID(%q) accepted malformed input", s)
		}
	}
}

func TestNewOIDUnique(t *testing.T) {
	seen := make(map[OID]bool)
	for i := 0; i < 1000; i++ {
		oid := NewOID()
		if seen[oid] {
			t.Fatalf("duplicate oid %s", oid)
		}
		seen[oid] = true
	}
}
