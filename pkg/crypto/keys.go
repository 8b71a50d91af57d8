package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// DefaultRSABits is the modulus size of generated peer keys
const DefaultRSABits = 2048

var (
	ErrInvalidKey       = errors.New("invalid key")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// GenerateRSAKeyPair generates a new RSA-2048 key pair
func GenerateRSAKeyPair() (*rsa.PrivateKey, error) {
	return GenerateRSAKeyPairBits(DefaultRSABits)
}

// GenerateRSAKeyPairBits generates an RSA key pair with the given modulus size
func GenerateRSAKeyPairBits(bits int) (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, bits)
}

// ExportPrivateKeyPEM exports private key to PEM format
func ExportPrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// ImportPrivateKeyPEM imports private key from PEM format
func ImportPrivateKeyPEM(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, ErrInvalidKey
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// EncodePublicKey serializes a public key as base64 PKIX DER, the form peers
// exchange in handshakes and peer records
func EncodePublicKey(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePublicKey parses the output of EncodePublicKey
func DecodePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return rsaPub, nil
}

// LoadOrGenerateRSA reads a PEM private key from path, creating one when the
// file does not exist
func LoadOrGenerateRSA(path string, bits int) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return ImportPrivateKeyPEM(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err := GenerateRSAKeyPairBits(bits)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, ExportPrivateKeyPEM(key), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// WrapKey encrypts a symmetric key for publicKey using RSA-OAEP with SHA-256
func WrapKey(key []byte, publicKey *rsa.PublicKey) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, key, nil)
	if err != nil {
		return nil, ErrEncryptionFailed
	}
	return wrapped, nil
}

// UnwrapKey reverses WrapKey
func UnwrapKey(wrapped []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, wrapped, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return key, nil
}
