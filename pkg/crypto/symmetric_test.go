package crypto

import (
	"bytes"
	"testing"
)

func TestSealOpen(t *testing.T) {
	key, err := NewSessionKey()
	if err != nil {
		t.Fatalf("NewSessionKey() error = %v", err)
	}
	plaintext := []byte("shared document state")

	iv, ciphertext, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if len(iv) != IVSize {
		t.Errorf("iv length = %d, want %d", len(iv), IVSize)
	}

	got, err := Open(key, iv, ciphertext)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open() = %q, want %q", got, plaintext)
	}
}

func TestOpenTampered(t *testing.T) {
	key, _ := NewSessionKey()
	iv, ciphertext, err := Seal(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	ciphertext[0] ^= 0xff

	if _, err := Open(key, iv, ciphertext); err != ErrDecryptionFailed {
		t.Errorf("Open() error = %v, want ErrDecryptionFailed", err)
	}
}

func TestSealRejectsShortKey(t *testing.T) {
	if _, _, err := Seal([]byte("short"), []byte("x")); err == nil {
		t.Error("Seal() expected error for short key")
	}
}
