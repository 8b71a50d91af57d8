package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-collab/pkg/connection"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

type fakeTarget struct {
	id  string
	err error

	mu   sync.Mutex
	got  []*protocol.Message
	sent chan *protocol.Message
}

func newFakeTarget(id string) *fakeTarget {
	return &fakeTarget{id: id, sent: make(chan *protocol.Message, 8)}
}

func (f *fakeTarget) ID() string { return f.id }

func (f *fakeTarget) Forward(msg *protocol.Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.got = append(f.got, msg)
	f.mu.Unlock()
	f.sent <- msg
	return nil
}

func (f *fakeTarget) messages() []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Message(nil), f.got...)
}

func encryptedRequest() *protocol.Message {
	return &protocol.Message{
		Version:    protocol.ProtocolVersion,
		Kind:       protocol.KindRequest,
		ID:         "7",
		Origin:     "a",
		Target:     "b",
		Ciphertext: []byte{0xde, 0xad, 0xbe, 0xef},
		Encryption: &protocol.Encryption{
			Keys:        []protocol.WrappedKey{{PeerID: "b", Key: []byte("k"), IV: []byte("iv")}},
			Compression: "gzip",
		},
	}
}

func TestRelayRequestIsOpaque(t *testing.T) {
	r := NewRelay(time.Second, nil, nil)
	b := newFakeTarget("b")
	req := encryptedRequest()

	done := make(chan *protocol.Message, 1)
	go func() {
		resp, err := r.SendRequest(context.Background(), b, req)
		assert.NoError(t, err)
		done <- resp
	}()

	fwd := recv(t, b.sent)
	assert.NotEqual(t, "7", fwd.ID)
	assert.Nil(t, fwd.Content)
	assert.Equal(t, req.Ciphertext, fwd.Ciphertext)
	assert.Equal(t, req.Encryption.Keys, fwd.Encryption.Keys)
	assert.Equal(t, "7", req.ID, "caller's message is left untouched")

	resp := &protocol.Message{
		Version:    protocol.ProtocolVersion,
		Kind:       protocol.KindResponse,
		ID:         fwd.ID,
		Ciphertext: []byte{1, 2, 3},
		Encryption: &protocol.Encryption{Keys: []protocol.WrappedKey{{PeerID: "a"}}},
	}
	assert.True(t, r.PushResponse("b", resp))

	got := recv(t, done)
	assert.Equal(t, []byte{1, 2, 3}, got.Ciphertext)
	assert.Equal(t, 0, r.PendingCount())
}

func TestRelayKeysAreDistinct(t *testing.T) {
	r := NewRelay(time.Second, nil, nil)
	b := newFakeTarget("b")

	for i := 0; i < 3; i++ {
		go func() { _, _ = r.SendRequest(context.Background(), b, encryptedRequest()) }()
	}
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		seen[recv(t, b.sent).ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestRelayTimeout(t *testing.T) {
	r := NewRelay(30*time.Millisecond, nil, nil)
	b := newFakeTarget("b")

	_, err := r.SendRequest(context.Background(), b, encryptedRequest())
	assert.ErrorIs(t, err, connection.ErrRequestTimeout)
	assert.Equal(t, 0, r.PendingCount())

	// a late answer is swallowed
	late := b.messages()[0]
	assert.True(t, r.PushResponse("b", &protocol.Message{Kind: protocol.KindResponse, ID: late.ID}))
}

func TestRelayContextCancel(t *testing.T) {
	r := NewRelay(time.Minute, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	b := newFakeTarget("b")

	go func() {
		<-b.sent
		cancel()
	}()
	_, err := r.SendRequest(ctx, b, encryptedRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.PendingCount())
}

func TestRelayForwardFailure(t *testing.T) {
	r := NewRelay(time.Minute, nil, nil)
	b := newFakeTarget("b")
	b.err = errors.New("gone")

	_, err := r.SendRequest(context.Background(), b, encryptedRequest())
	assert.EqualError(t, err, "gone")
	assert.Equal(t, 0, r.PendingCount())
}

func TestPushResponseOnlyFromTarget(t *testing.T) {
	r := NewRelay(time.Second, nil, nil)
	b := newFakeTarget("b")

	done := make(chan *protocol.Message, 1)
	go func() {
		resp, err := r.SendRequest(context.Background(), b, encryptedRequest())
		assert.NoError(t, err)
		done <- resp
	}()
	fwd := recv(t, b.sent)

	forged := protocol.NewResponseError(fwd.ID, "eve", "a", "forged")
	assert.True(t, r.PushResponse("eve", forged), "relay ids are still consumed")
	assert.Equal(t, 1, r.PendingCount(), "a response from another peer does not settle the request")

	real := &protocol.Message{Kind: protocol.KindResponse, ID: fwd.ID, Ciphertext: []byte{7}}
	assert.True(t, r.PushResponse("b", real))
	assert.Equal(t, []byte{7}, recv(t, done).Ciphertext)
}

func TestPushResponseIgnoresForeignIDs(t *testing.T) {
	r := NewRelay(time.Minute, nil, nil)
	assert.False(t, r.PushResponse("b", &protocol.Message{Kind: protocol.KindResponse, ID: "12"}))
}

func TestSendBroadcastNarrowsKeys(t *testing.T) {
	r := NewRelay(time.Minute, nil, nil)
	a, b, c, d := newFakeTarget("a"), newFakeTarget("b"), newFakeTarget("c"), newFakeTarget("d")

	msg := &protocol.Message{
		Version:    protocol.ProtocolVersion,
		Kind:       protocol.KindBroadcast,
		Origin:     "a",
		Ciphertext: []byte{9},
		Encryption: &protocol.Encryption{Keys: []protocol.WrappedKey{
			{PeerID: "b", Key: []byte("kb")},
			{PeerID: "c", Key: []byte("kc")},
		}},
	}

	sent := r.SendBroadcast("a", []Target{a, b, c, d}, msg)
	assert.Equal(t, 2, sent)

	assert.Empty(t, a.messages())
	assert.Empty(t, d.messages(), "peers without a wrapped key are skipped")

	gotB := b.messages()
	require.Len(t, gotB, 1)
	require.Len(t, gotB[0].Encryption.Keys, 1)
	assert.Equal(t, "b", gotB[0].Encryption.Keys[0].PeerID)

	gotC := c.messages()
	require.Len(t, gotC, 1)
	assert.Equal(t, []byte("kc"), gotC[0].Encryption.Keys[0].Key)

	assert.Len(t, msg.Encryption.Keys, 2, "original is not narrowed in place")
}

func TestSendBroadcastPlaintext(t *testing.T) {
	r := NewRelay(time.Minute, nil, nil)
	a, b := newFakeTarget("a"), newFakeTarget("b")
	msg := protocol.NewBroadcast("a", "sync/update", []byte("x"))

	assert.Equal(t, 1, r.SendBroadcast("a", []Target{a, b}, msg))
	assert.Equal(t, []byte("x"), b.messages()[0].Content.Params)
}
