package crypto

import (
	"encoding/hex"
	"testing"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string // BLAKE2b-256 hash in hex
	}{
		{
			name:     "empty input",
			input:    []byte{},
			expected: "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8",
		},
		{
			name:     "simple string",
			input:    []byte("hello world"),
			expected: "256c83b297114d201b30179f3f0ef0cace9783622da5974326b436178aeef610",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := Hash(tt.input)
			if len(hash) != 32 {
				t.Errorf("Hash() length = %d, want 32", len(hash))
			}
			if got := hex.EncodeToString(hash); got != tt.expected {
				t.Errorf("Hash() = %s, want %s", got, tt.expected)
			}
			if got := Fingerprint(tt.input); got != tt.expected {
				t.Errorf("Fingerprint() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestFingerprintDistinct(t *testing.T) {
	if Fingerprint([]byte("a")) == Fingerprint([]byte("b")) {
		t.Error("Fingerprint() collided for distinct inputs")
	}
}

func TestGenerateNonce(t *testing.T) {
	a, err := GenerateNonce(IVSize)
	if err != nil {
		t.Fatalf("GenerateNonce() error = %v", err)
	}
	b, _ := GenerateNonce(IVSize)
	if len(a) != IVSize {
		t.Errorf("GenerateNonce() length = %d, want %d", len(a), IVSize)
	}
	if hex.EncodeToString(a) == hex.EncodeToString(b) {
		t.Error("GenerateNonce() returned identical nonces")
	}
}
