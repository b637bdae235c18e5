package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func testKey(seed byte) []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	box, err := New(testKey(1))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	msg := []byte("client_id=web&scope=openid profile ✓")
	ct, err := box.Seal(msg, []byte("authorize"))
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	pt, err := box.Open(ct, []byte("authorize"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if string(pt) != string(msg) {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestOpen_DetectsTamper(t *testing.T) {
	t.Parallel()
	box, _ := New(testKey(200))

	ct, err := box.Seal([]byte("top secret"), nil)
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	raw, _ := base64.RawURLEncoding.DecodeString(ct)
	raw[len(raw)-1] ^= 0xFF
	if _, err := box.Open(base64.RawURLEncoding.EncodeToString(raw), nil); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestOpen_WrongAAD(t *testing.T) {
	t.Parallel()
	box, _ := New(testKey(3))
	ct, _ := box.Seal([]byte("x"), []byte("a"))
	if _, err := box.Open(ct, []byte("b")); err == nil {
		t.Fatal("expected error with different aad")
	}
}

func TestParseKey_Formats(t *testing.T) {
	t.Parallel()
	raw := testKey(7)
	for name, in := range map[string]string{
		"base64": base64.StdEncoding.EncodeToString(raw),
		"raw64":  base64.RawStdEncoding.EncodeToString(raw),
		"hex":    hex.EncodeToString(raw),
	} {
		got, err := ParseKey(in)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if string(got) != string(raw) {
			t.Fatalf("%s: key mismatch", name)
		}
	}
	if _, err := ParseKey("short"); err == nil {
		t.Fatal("expected error for short key")
	}
}
