package crypto

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the BLAKE2b-256 digest of data
func Hash(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// Fingerprint returns the hex BLAKE2b-256 digest of data. Key caches use it
// to index wrapped keys and public keys.
func Fingerprint(data []byte) string {
	return hex.EncodeToString(Hash(data))
}

// GenerateNonce generates a random nonce
func GenerateNonce(size int) ([]byte, error) {
	nonce := make([]byte, size)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}
