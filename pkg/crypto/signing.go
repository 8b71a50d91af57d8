package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// GenerateSigningKey returns a new Ed25519 key used to sign session claims
func GenerateSigningKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	return priv, err
}

// ExportSigningKeyPEM encodes an Ed25519 key as a PKCS#8 PEM block
func ExportSigningKeyPEM(key ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ImportSigningKeyPEM parses the output of ExportSigningKeyPEM
func ImportSigningKeyPEM(pemData []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, ErrInvalidKey
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// LoadOrCreateSigningKey reads the signing key at path. A missing file is
// created with a fresh key; an empty path yields an ephemeral key.
func LoadOrCreateSigningKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		return GenerateSigningKey()
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return ImportSigningKeyPEM(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err := GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	encoded, err := ExportSigningKeyPEM(key)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, encoded, 0600); err != nil {
		return nil, err
	}
	return key, nil
}
