package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	// SessionKeySize is the AES-256 key length
	SessionKeySize = 32

	// IVSize is the AES-GCM nonce length
	IVSize = 12
)

// NewSessionKey returns a random AES-256 key
func NewSessionKey() ([]byte, error) {
	return GenerateNonce(SessionKeySize)
}

// Seal encrypts plaintext with AES-256-GCM under a fresh IV. The returned
// ciphertext carries the authentication tag.
func Seal(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	iv, err = GenerateNonce(IVSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate iv: %w", err)
	}
	return iv, gcm.Seal(nil, iv, plaintext, nil), nil
}

// Open decrypts and authenticates ciphertext produced by Seal
func Open(key, iv, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv length %d", ErrDecryptionFailed, len(iv))
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != SessionKeySize {
		return nil, fmt.Errorf("%w: session key length %d", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
