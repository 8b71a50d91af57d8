package encoding

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

func sampleMessages() map[string]*protocol.Message {
	encrypted := protocol.NewRequest("7", "peer-a", "peer-b", "", nil)
	encrypted.Content = nil
	encrypted.ContentEncoding = MsgpackName
	encrypted.Ciphertext = []byte{0x00, 0xff, 0x10, 0x80, 0x7f, 0x00}
	encrypted.Encryption = &protocol.Encryption{
		Keys: []protocol.WrappedKey{
			{PeerID: "peer-b", Key: []byte{1, 2, 3, 0}, IV: []byte{9, 8, 7, 6, 5, 4, 3, 2, 1, 0, 11, 12}},
		},
		Compression: "gzip",
	}

	binaryParams := protocol.NewNotification("peer-a", "peer-b", "sync/update", []byte{0xde, 0xad, 0x00, 0xbe, 0xef})
	binaryParams.ContentEncoding = JSONName

	return map[string]*protocol.Message{
		"request":        protocol.NewRequest("1", "peer-a", "", "server/ping", []byte(`{}`)),
		"response":       protocol.NewResponse("1", "", "peer-a", []byte(`{"time":5}`)),
		"response error": protocol.NewResponseError("2", "peer-b", "peer-a", "boom"),
		"notification":   binaryParams,
		"broadcast":      protocol.NewBroadcast("peer-a", "sync/awareness", []byte{1, 2, 3}),
		"error":          protocol.NewError("", "bad handshake"),
		"encrypted":      encrypted,
	}
}

func TestRoundTripAllKinds(t *testing.T) {
	for _, c := range []Codec{JSON{}, NewMsgpack()} {
		for name, msg := range sampleMessages() {
			t.Run(c.Name()+"/"+name, func(t *testing.T) {
				data, err := Encode(c, msg)
				require.NoError(t, err)

				decoded, err := Decode(c, data)
				require.NoError(t, err)
				assert.Equal(t, msg, decoded)
			})
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		data  []byte
	}{
		{"empty json", JSON{}, nil},
		{"garbage json", JSON{}, []byte("{not json")},
		{"empty msgpack", NewMsgpack(), []byte{}},
		{"truncated msgpack", NewMsgpack(), []byte{0x85, 0xa1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.codec, tt.data)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Decode() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name    string
		client  []string
		want    string
		wantErr bool
	}{
		{"empty defaults to json", nil, JSONName, false},
		{"first supported wins", []string{"cbor", "msgpack", "json"}, MsgpackName, false},
		{"case insensitive", []string{"JSON"}, JSONName, false},
		{"nothing supported", []string{"cbor"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Negotiate(tt.client, Names())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCodec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name())
		})
	}
}

func TestLookup(t *testing.T) {
	c, err := Lookup("msgpack")
	require.NoError(t, err)
	assert.Equal(t, MsgpackName, c.Name())

	_, err = Lookup("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
