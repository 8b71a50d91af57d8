// Package encoding serializes protocol messages and parameter values.
//
// Two codecs are registered: "json" (goccy/go-json) and "msgpack"
// (ugorji/go/codec). A connection picks one by negotiation; the name is also
// recorded on each message as its content encoding so that a receiver using a
// different envelope codec can still read params, results and decrypted bodies.
package encoding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

var (
	ErrUnknownCodec = errors.New("unknown encoding")
	ErrDecode       = errors.New("decode failed")
)

// Codec converts messages and values to bytes and back
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Encode serializes a message with c
func Encode(c Codec, m *protocol.Message) ([]byte, error) {
	return c.Marshal(m)
}

// Decode parses a message with c. Only the structural shape is checked here;
// semantic validation belongs to the connection layer.
func Decode(c Codec, data []byte) (*protocol.Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty datagram", ErrDecode)
	}
	var m protocol.Message
	if err := c.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &m, nil
}

var registry = map[string]Codec{
	JSONName:    JSON{},
	MsgpackName: NewMsgpack(),
}

// Lookup returns the codec registered under name
func Lookup(name string) (Codec, error) {
	c, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names returns the registered codec names in server preference order
func Names() []string {
	return []string{MsgpackName, JSONName}
}

// Negotiate picks the first entry of the client's ranked list that is also in
// supported. An empty client list selects JSON.
func Negotiate(clientRanked []string, supported []string) (Codec, error) {
	if len(clientRanked) == 0 {
		return registry[JSONName], nil
	}
	allowed := make(map[string]bool, len(supported))
	for _, s := range supported {
		allowed[strings.ToLower(s)] = true
	}
	for _, name := range clientRanked {
		name = strings.ToLower(strings.TrimSpace(name))
		if !allowed[name] {
			continue
		}
		if c, ok := registry[name]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: none of %v supported", ErrUnknownCodec, clientRanked)
}
