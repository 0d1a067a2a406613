package tokenbox

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testKey() []byte { return bytes.Repeat([]byte{7}, 32) }

func TestSealOpen(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sealed, err := box.Seal("ya29.access-token")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "ya29") {
		t.Fatalf("Seal() = %q, want opaque sealed value", sealed)
	}

	again, _ := box.Seal("ya29.access-token")
	if again == sealed {
		t.Error("expected a fresh nonce per seal")
	}

	plain, err := box.Open(sealed)
	if err != nil || plain != "ya29.access-token" {
		t.Fatalf("Open() = %q, %v", plain, err)
	}
}

func TestOpenPlaintextPassthrough(t *testing.T) {
	box, _ := New(testKey())
	got, err := box.Open("legacy-token")
	if err != nil || got != "legacy-token" {
		t.Fatalf("Open() = %q, %v", got, err)
	}
}

func TestNilBox(t *testing.T) {
	box, err := New(nil)
	if err != nil || box != nil {
		t.Fatalf("New(nil) = %v, %v", box, err)
	}
	sealed, err := box.Seal("token")
	if err != nil || sealed != "token" {
		t.Fatalf("nil Seal() = %q, %v", sealed, err)
	}
	if _, err := box.Open(sealedPrefix + "abc"); err == nil {
		t.Fatal("expected error opening sealed value without key")
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	box, _ := New(testKey())
	other, _ := New(bytes.Repeat([]byte{9}, 32))

	sealed, _ := box.Seal("refresh")
	if _, err := other.Open(sealed); err == nil {
		t.Error("expected wrong key to fail")
	}
	if _, err := box.Open(sealedPrefix + "AAAA"); !errors.Is(err, ErrMalformed) {
		t.Errorf("short value error = %v, want ErrMalformed", err)
	}
	if _, err := box.Open(sealedPrefix + "!!!"); !errors.Is(err, ErrMalformed) {
		t.Errorf("bad base64 error = %v, want ErrMalformed", err)
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Fatal("expected key length error")
	}
}

func TestSealEmpty(t *testing.T) {
	box, _ := New(testKey())
	got, err := box.Seal("")
	if err != nil || got != "" {
		t.Fatalf("Seal(\"\") = %q, %v", got, err)
	}
}
