package types

import "testing"

func TestParseID(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if parsed != id {
		t.Errorf("Expected %s, got %s", id, parsed)
	}

	if _, err := ParseID("not-a-uuid"); err == nil {
		t.Error("Expected error for malformed id")
	}
}

func TestIDScan(t *testing.T) {
	var id ID
	if err := id.Scan(nil); err != nil || !id.IsZero() {
		t.Errorf("Expected zero id from NULL, got %q (%v)", id, err)
	}

	raw := [16]byte{0x6b, 0xa7, 0xb8, 0x10, 0x9d, 0xad, 0x11, 0xd1, 0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8}
	if err := id.Scan(raw); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("unexpected id %s", id)
	}

	if err := id.Scan(42); err == nil {
		t.Error("Expected error scanning int")
	}
}

func TestPtr(t *testing.T) {
	if ID("").Ptr() != nil {
		t.Error("Expected nil pointer for zero id")
	}
	id := NewID()
	if p := id.Ptr(); p == nil || *p != id {
		t.Error("Expected pointer to id")
	}
}
