// Package e2ee encrypts message content end to end between room members.
//
// A Cipher belongs to one connection. It generates its AES-256 session key on
// first use and keeps it until the connection is torn down. For each message
// the content is serialized with the message's content codec, compressed with
// an algorithm every recipient accepts, sealed under a fresh IV, and the
// session key is wrapped once per recipient with RSA-OAEP. Wrapped keys are
// cached per recipient; unwrapped keys are cached per wrapped-key digest.
package e2ee

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/compression"
	"github.com/ZentaChain/zentalk-collab/pkg/crypto"
	"github.com/ZentaChain/zentalk-collab/pkg/encoding"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// DefaultCacheSlack is added to the peer count to bound both key caches
const DefaultCacheSlack = 16

var (
	ErrNoRecipients = errors.New("no recipients to encrypt for")
	ErrKeyCount     = errors.New("encrypted message must carry exactly one wrapped key")
	ErrNotEncrypted = errors.New("message is not encrypted")
	ErrNoContent    = errors.New("message has no content")
)

// Recipient is a peer a message is encrypted for
type Recipient struct {
	ID          string
	PublicKey   string // base64 PKIX DER
	Compression []string
}

// Options tunes a Cipher
type Options struct {
	// PeerCount reports the number of peers currently known to the connection.
	// Cache bounds follow it.
	PeerCount func() int

	// CacheSlack is added to the peer count before a cache is reset
	CacheSlack int

	// MaxContentSize bounds decompressed content. Zero means
	// compression.MaxDecompressedSize.
	MaxContentSize int

	Logger *zap.Logger
}

type wrappedEntry struct {
	fingerprint string
	wrapped     []byte
}

// Cipher holds one connection's key material
type Cipher struct {
	private *rsa.PrivateKey
	opts    Options
	log     *zap.Logger

	mu         sync.Mutex
	sessionKey []byte
	encCache   map[string]wrappedEntry // by recipient id
	decCache   map[string][]byte       // by wrapped key digest
}

// NewCipher creates a cipher that decrypts with private
func NewCipher(private *rsa.PrivateKey, opts Options) *Cipher {
	if opts.CacheSlack <= 0 {
		opts.CacheSlack = DefaultCacheSlack
	}
	if opts.PeerCount == nil {
		opts.PeerCount = func() int { return 0 }
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Cipher{
		private:  private,
		opts:     opts,
		log:      log.Named("e2ee"),
		encCache: make(map[string]wrappedEntry),
		decCache: make(map[string][]byte),
	}
}

// PublicKey returns the key remote peers wrap session keys for
func (c *Cipher) PublicKey() *rsa.PublicKey {
	return &c.private.PublicKey
}

// Encrypt returns a copy of msg whose content is replaced by ciphertext that
// each recipient can open with its own private key. msg is not modified.
func (c *Cipher) Encrypt(msg *protocol.Message, recipients []Recipient) (*protocol.Message, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if msg.Content == nil {
		return nil, ErrNoContent
	}

	codec, err := contentCodec(msg)
	if err != nil {
		return nil, err
	}
	plaintext, err := codec.Marshal(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}

	ranked := make([][]string, 0, len(recipients))
	for _, r := range recipients {
		ranked = append(ranked, r.Compression)
	}
	alg := compression.BestFit(ranked)
	if !compression.IsSupported(alg) {
		c.log.Debug("negotiated compression not available locally", zap.String("alg", alg))
		alg = compression.None
	}
	compressed, err := compression.Compress(alg, plaintext)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := c.sessionKeyLocked()
	if err != nil {
		return nil, err
	}
	iv, ciphertext, err := crypto.Seal(key, compressed)
	if err != nil {
		return nil, err
	}

	c.boundLocked(len(c.encCache), len(recipients), func() {
		c.encCache = make(map[string]wrappedEntry)
	})

	keys := make([]protocol.WrappedKey, 0, len(recipients))
	for _, r := range recipients {
		wrapped, err := c.wrapLocked(key, r)
		if err != nil {
			return nil, fmt.Errorf("failed to wrap key for %s: %w", r.ID, err)
		}
		keys = append(keys, protocol.WrappedKey{PeerID: r.ID, Key: wrapped, IV: iv})
	}

	out := msg.Clone()
	out.ContentEncoding = codec.Name()
	out.Content = nil
	out.Ciphertext = ciphertext
	out.Encryption = &protocol.Encryption{Keys: keys, Compression: alg}
	return out, nil
}

// Decrypt returns a plaintext copy of msg. The message must have been
// narrowed to exactly one wrapped key.
func (c *Cipher) Decrypt(msg *protocol.Message) (*protocol.Message, error) {
	if !msg.IsEncrypted() {
		return nil, ErrNotEncrypted
	}
	if n := len(msg.Encryption.Keys); n != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrKeyCount, n)
	}
	entry := msg.Encryption.Keys[0]

	key, err := c.unwrap(entry.Key)
	if err != nil {
		return nil, err
	}
	compressed, err := crypto.Open(key, entry.IV, msg.Ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext, err := compression.DecompressLimit(msg.Encryption.Compression, compressed, c.opts.MaxContentSize)
	if err != nil {
		return nil, err
	}

	codec, err := contentCodec(msg)
	if err != nil {
		return nil, err
	}
	var content protocol.Content
	if err := codec.Unmarshal(plaintext, &content); err != nil {
		return nil, fmt.Errorf("%w: content: %v", encoding.ErrDecode, err)
	}

	out := msg.Clone()
	out.Content = &content
	out.Ciphertext = nil
	out.Encryption = nil
	return out, nil
}

// CacheSizes reports the number of cached wrapped and unwrapped keys
func (c *Cipher) CacheSizes() (wrapped, unwrapped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encCache), len(c.decCache)
}

func (c *Cipher) sessionKeyLocked() ([]byte, error) {
	if c.sessionKey == nil {
		key, err := crypto.NewSessionKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
		c.sessionKey = key
	}
	return c.sessionKey, nil
}

func (c *Cipher) wrapLocked(key []byte, r Recipient) ([]byte, error) {
	fp := crypto.Fingerprint([]byte(r.PublicKey))
	if e, ok := c.encCache[r.ID]; ok && e.fingerprint == fp {
		return e.wrapped, nil
	}

	pub, err := crypto.DecodePublicKey(r.PublicKey)
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.WrapKey(key, pub)
	if err != nil {
		return nil, err
	}
	c.encCache[r.ID] = wrappedEntry{fingerprint: fp, wrapped: wrapped}
	return wrapped, nil
}

func (c *Cipher) unwrap(wrapped []byte) ([]byte, error) {
	digest := crypto.Fingerprint(wrapped)

	c.mu.Lock()
	if key, ok := c.decCache[digest]; ok {
		c.mu.Unlock()
		return key, nil
	}
	c.mu.Unlock()

	key, err := crypto.UnwrapKey(wrapped, c.private)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.boundLocked(len(c.decCache), 0, func() {
		c.decCache = make(map[string][]byte)
	})
	c.decCache[digest] = key
	c.mu.Unlock()
	return key, nil
}

// boundLocked resets a cache once it outgrows the known peers plus slack
func (c *Cipher) boundLocked(size, recipients int, reset func()) {
	limit := c.opts.PeerCount()
	if recipients > limit {
		limit = recipients
	}
	limit += c.opts.CacheSlack
	if size >= limit {
		c.log.Debug("resetting key cache", zap.Int("size", size), zap.Int("limit", limit))
		reset()
	}
}

func contentCodec(msg *protocol.Message) (encoding.Codec, error) {
	if msg.ContentEncoding == "" {
		return encoding.Lookup(encoding.JSONName)
	}
	return encoding.Lookup(msg.ContentEncoding)
}
