package codec

import (
	"bytes"
	"testing"
)

func TestRoundTripAllBytes(t *testing.T) {
	for b := 0; b < 256; b++ {
		s := []byte{byte(b), 'a', byte(b)}
		enc := Encode(s)
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("byte %d: decode failed: %v", b, err)
		}
		if !bytes.Equal(dec, s) {
			t.Fatalf("byte %d: round trip mismatch: got %q want %q", b, dec, s)
		}
	}
}

func TestEncodeNeverEmitsRawControlBytes(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	enc := Encode(all)
	for i := 0; i < len(enc); i++ {
		c := enc[i]
		if c == '\\' {
			i++ // skip escaped payload
			continue
		}
		if c < 32 || c == 127 {
			t.Fatalf("encoded output contains raw control byte %d at %d", c, i)
		}
	}
}

func TestEncodeFixture(t *testing.T) {
	got := Encode([]byte{0, 8, 9, 10, 13, '\\', 'a'})
	want := `\0\b\t\n\r\\a`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDecodeBadEscape(t *testing.T) {
	if _, err := Decode(`\q`); err != ErrBadEscape {
		t.Fatalf("expected ErrBadEscape, got %v", err)
	}
}

func TestDecodeBadHex(t *testing.T) {
	if _, err := Decode(`\xgg`); err != ErrBadHex {
		t.Fatalf("expected ErrBadHex, got %v", err)
	}
}

func TestDecodeTrailingBackslash(t *testing.T) {
	if _, err := Decode(`abc\`); err == nil {
		t.Fatal("expected error for trailing backslash")
	}
}
