package crypto

import (
	"bytes"
	"crypto/ed25519"
	"path/filepath"
	"testing"
)

func TestSigningKeyPEMRoundTrip(t *testing.T) {
	key, err := GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey() error = %v", err)
	}

	encoded, err := ExportSigningKeyPEM(key)
	if err != nil {
		t.Fatalf("ExportSigningKeyPEM() error = %v", err)
	}
	decoded, err := ImportSigningKeyPEM(encoded)
	if err != nil {
		t.Fatalf("ImportSigningKeyPEM() error = %v", err)
	}
	if !bytes.Equal(key, decoded) {
		t.Error("ImportSigningKeyPEM() key mismatch")
	}

	sig := ed25519.Sign(decoded, []byte("claim"))
	if !ed25519.Verify(key.Public().(ed25519.PublicKey), []byte("claim"), sig) {
		t.Error("signature from decoded key did not verify")
	}
}

func TestLoadOrCreateSigningKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.pem")

	first, err := LoadOrCreateSigningKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateSigningKey() error = %v", err)
	}
	second, err := LoadOrCreateSigningKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateSigningKey() reload error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("LoadOrCreateSigningKey() did not reuse the stored key")
	}

	ephemeral, err := LoadOrCreateSigningKey("")
	if err != nil {
		t.Fatalf("LoadOrCreateSigningKey(\"\") error = %v", err)
	}
	if len(ephemeral) != ed25519.PrivateKeySize {
		t.Errorf("ephemeral key size = %d", len(ephemeral))
	}
}
