package eventstore

import "testing"

func TestCursorRoundTrip(t *testing.T) {
	c := encodeCursor(42, "0xabc:3")
	got, err := decodeCursor(c)
	if err != nil {
		t.Fatalf("decodeCursor: %v", err)
	}
	if got.primary != 42 || got.id != "0xabc:3" {
		t.Fatalf("got %+v", got)
	}
}

func TestCursorRejectsMalformed(t *testing.T) {
	if _, err := decodeCursor("not-base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}
