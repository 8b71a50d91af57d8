package e2ee

import (
	"crypto/rsa"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-collab/pkg/compression"
	"github.com/ZentaChain/zentalk-collab/pkg/crypto"
	"github.com/ZentaChain/zentalk-collab/pkg/encoding"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

type testPeer struct {
	id     string
	key    *rsa.PrivateKey
	cipher *Cipher
}

func newTestPeer(t *testing.T, id string) *testPeer {
	t.Helper()
	key, err := crypto.GenerateRSAKeyPairBits(1024)
	require.NoError(t, err)
	return &testPeer{id: id, key: key, cipher: NewCipher(key, Options{})}
}

func (p *testPeer) recipient(t *testing.T, algs ...string) Recipient {
	t.Helper()
	pub, err := crypto.EncodePublicKey(&p.key.PublicKey)
	require.NoError(t, err)
	if len(algs) == 0 {
		algs = []string{compression.None}
	}
	return Recipient{ID: p.id, PublicKey: pub, Compression: algs}
}

func TestEncryptDecryptSingleRecipient(t *testing.T) {
	alice := newTestPeer(t, "alice")
	bob := newTestPeer(t, "bob")

	msg := protocol.NewRequest("1", "alice", "bob", "doc/get", []byte(`{"path":"/a"}`))
	msg.ContentEncoding = encoding.JSONName

	sealed, err := alice.cipher.Encrypt(msg, []Recipient{bob.recipient(t, "gzip")})
	require.NoError(t, err)
	assert.Nil(t, sealed.Content)
	assert.NotEmpty(t, sealed.Ciphertext)
	assert.Equal(t, compression.Gzip, sealed.Encryption.Compression)
	require.Len(t, sealed.Encryption.Keys, 1)
	assert.Len(t, sealed.Encryption.Keys[0].IV, crypto.IVSize)

	// original is left untouched
	assert.Equal(t, "doc/get", msg.Method())

	opened, err := bob.cipher.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, opened.Content)
	assert.False(t, opened.IsEncrypted())
}

func TestEncryptDecryptManyRecipients(t *testing.T) {
	host := newTestPeer(t, "host")
	guests := []*testPeer{newTestPeer(t, "g1"), newTestPeer(t, "g2"), newTestPeer(t, "g3")}

	msg := protocol.NewBroadcast("host", "sync/update", []byte{0x00, 0x01, 0xfe})
	msg.ContentEncoding = encoding.MsgpackName

	var recipients []Recipient
	for _, g := range guests {
		recipients = append(recipients, g.recipient(t, "zstd", "gzip", "none"))
	}

	sealed, err := host.cipher.Encrypt(msg, recipients)
	require.NoError(t, err)
	require.Len(t, sealed.Encryption.Keys, 3)
	assert.Equal(t, compression.Zstd, sealed.Encryption.Compression)

	_, err = guests[0].cipher.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrKeyCount)

	for _, g := range guests {
		narrowed, ok := sealed.ForRecipient(g.id)
		require.True(t, ok)

		opened, err := g.cipher.Decrypt(narrowed)
		require.NoError(t, err, g.id)
		assert.Equal(t, msg.Content, opened.Content)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	alice := newTestPeer(t, "alice")
	bob := newTestPeer(t, "bob")
	mallory := newTestPeer(t, "mallory")

	msg := protocol.NewNotification("alice", "bob", "sync/update", []byte("secret"))
	sealed, err := alice.cipher.Encrypt(msg, []Recipient{bob.recipient(t)})
	require.NoError(t, err)

	_, err = mallory.cipher.Decrypt(sealed)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestEncryptNoRecipients(t *testing.T) {
	alice := newTestPeer(t, "alice")
	_, err := alice.cipher.Encrypt(protocol.NewBroadcast("alice", "x", nil), nil)
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestDecryptPlaintext(t *testing.T) {
	alice := newTestPeer(t, "alice")
	_, err := alice.cipher.Decrypt(protocol.NewBroadcast("bob", "x", nil))
	assert.ErrorIs(t, err, ErrNotEncrypted)
}

func TestSessionKeyReused(t *testing.T) {
	alice := newTestPeer(t, "alice")
	bob := newTestPeer(t, "bob")
	r := bob.recipient(t)

	first, err := alice.cipher.Encrypt(protocol.NewBroadcast("alice", "a", nil), []Recipient{r})
	require.NoError(t, err)
	second, err := alice.cipher.Encrypt(protocol.NewBroadcast("alice", "b", nil), []Recipient{r})
	require.NoError(t, err)

	// same wrapped key from the cache, fresh IV per message
	assert.Equal(t, first.Encryption.Keys[0].Key, second.Encryption.Keys[0].Key)
	assert.NotEqual(t, first.Encryption.Keys[0].IV, second.Encryption.Keys[0].IV)

	_, err = bob.cipher.Decrypt(first)
	require.NoError(t, err)
	_, err = bob.cipher.Decrypt(second)
	require.NoError(t, err)
	_, unwrapped := bob.cipher.CacheSizes()
	assert.Equal(t, 1, unwrapped)
}

func TestRecipientKeyChangeRewraps(t *testing.T) {
	alice := newTestPeer(t, "alice")
	bob := newTestPeer(t, "bob")
	bobAgain := newTestPeer(t, "bob")

	_, err := alice.cipher.Encrypt(protocol.NewBroadcast("alice", "a", nil), []Recipient{bob.recipient(t)})
	require.NoError(t, err)

	sealed, err := alice.cipher.Encrypt(protocol.NewBroadcast("alice", "a", nil), []Recipient{bobAgain.recipient(t)})
	require.NoError(t, err)

	_, err = bobAgain.cipher.Decrypt(sealed)
	assert.NoError(t, err)
}

func TestEncryptionCacheReset(t *testing.T) {
	key, err := crypto.GenerateRSAKeyPairBits(1024)
	require.NoError(t, err)
	c := NewCipher(key, Options{CacheSlack: 2, PeerCount: func() int { return 0 }})

	peers := make([]*testPeer, 4)
	for i := range peers {
		peers[i] = newTestPeer(t, fmt.Sprintf("p%d", i))
	}

	for i, p := range peers[:3] {
		_, err := c.Encrypt(protocol.NewBroadcast("me", "m", nil), []Recipient{p.recipient(t)})
		require.NoError(t, err)
		wrapped, _ := c.CacheSizes()
		assert.Equal(t, i+1, wrapped)
	}

	_, err = c.Encrypt(protocol.NewBroadcast("me", "m", nil), []Recipient{peers[3].recipient(t)})
	require.NoError(t, err)
	wrapped, _ := c.CacheSizes()
	assert.Equal(t, 1, wrapped)
}

func TestDecryptContentTooLarge(t *testing.T) {
	alice := newTestPeer(t, "alice")
	key, err := crypto.GenerateRSAKeyPairBits(1024)
	require.NoError(t, err)
	bob := &testPeer{id: "bob", key: key, cipher: NewCipher(key, Options{MaxContentSize: 512})}

	msg := protocol.NewBroadcast("alice", "sync/update", make([]byte, 4096))
	msg.ContentEncoding = encoding.JSONName
	sealed, err := alice.cipher.Encrypt(msg, []Recipient{bob.recipient(t, "zstd")})
	require.NoError(t, err)
	assert.Less(t, len(sealed.Ciphertext), 512)

	_, err = bob.cipher.Decrypt(sealed)
	assert.ErrorIs(t, err, compression.ErrTooLarge)
}
