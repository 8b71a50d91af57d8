package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidVersion = errors.New("unsupported protocol version")
	ErrInvalidKind    = errors.New("unknown message kind")
	ErrMissingField   = errors.New("missing required field")
)

// Message is the envelope exchanged over a transport. Content holds the plaintext
// body; once encrypted, Content is nil and Ciphertext plus Encryption carry it.
type Message struct {
	Version         uint8       `json:"v"`
	Kind            Kind        `json:"kind"`
	ID              string      `json:"id,omitempty"`
	Origin          string      `json:"origin,omitempty"`
	Target          string      `json:"target,omitempty"`
	ContentEncoding string      `json:"ce,omitempty"`
	Content         *Content    `json:"content,omitempty"`
	Ciphertext      []byte      `json:"ciphertext,omitempty"`
	Encryption      *Encryption `json:"enc,omitempty"`
}

// Content is the part of a message that gets encrypted. Params and Result are
// encoded with the codec named by Message.ContentEncoding.
type Content struct {
	Method string `json:"method,omitempty"`
	Params []byte `json:"params,omitempty"`
	Result []byte `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WrappedKey is the symmetric key wrapped for one recipient
type WrappedKey struct {
	PeerID string `json:"peer"`
	Key    []byte `json:"key"`
	IV     []byte `json:"iv"`
}

// Encryption is the plaintext metadata block of an encrypted message
type Encryption struct {
	Keys        []WrappedKey `json:"keys"`
	Compression string       `json:"alg"`
}

// NewRequest creates a request message
func NewRequest(id, origin, target, method string, params []byte) *Message {
	return &Message{
		Version: ProtocolVersion,
		Kind:    KindRequest,
		ID:      id,
		Origin:  origin,
		Target:  target,
		Content: &Content{Method: method, Params: params},
	}
}

// NewResponse creates a successful response to request id
func NewResponse(id, origin, target string, result []byte) *Message {
	return &Message{
		Version: ProtocolVersion,
		Kind:    KindResponse,
		ID:      id,
		Origin:  origin,
		Target:  target,
		Content: &Content{Result: result},
	}
}

// NewResponseError creates a failed response to request id
func NewResponseError(id, origin, target, errText string) *Message {
	return &Message{
		Version: ProtocolVersion,
		Kind:    KindResponseError,
		ID:      id,
		Origin:  origin,
		Target:  target,
		Content: &Content{Error: errText},
	}
}

// NewNotification creates a fire-and-forget message to a single target
func NewNotification(origin, target, method string, params []byte) *Message {
	return &Message{
		Version: ProtocolVersion,
		Kind:    KindNotification,
		Origin:  origin,
		Target:  target,
		Content: &Content{Method: method, Params: params},
	}
}

// NewBroadcast creates a message fanned out to every other room member
func NewBroadcast(origin, method string, params []byte) *Message {
	return &Message{
		Version: ProtocolVersion,
		Kind:    KindBroadcast,
		Origin:  origin,
		Content: &Content{Method: method, Params: params},
	}
}

// NewError creates a protocol level error not tied to a request
func NewError(origin, errText string) *Message {
	return &Message{
		Version: ProtocolVersion,
		Kind:    KindError,
		Origin:  origin,
		Content: &Content{Error: errText},
	}
}

// IsEncrypted reports whether the content has been replaced by ciphertext
func (m *Message) IsEncrypted() bool {
	return m.Encryption != nil
}

// Method returns the method name of a plaintext message
func (m *Message) Method() string {
	if m.Content == nil {
		return ""
	}
	return m.Content.Method
}

// Validate checks version compatibility and kind-specific field presence.
// Encrypted messages are only checked at the envelope level.
func (m *Message) Validate() error {
	if m.Version != ProtocolVersion {
		return fmt.Errorf("%w: %d", ErrInvalidVersion, m.Version)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, m.Kind)
	}

	switch m.Kind {
	case KindRequest, KindResponse, KindResponseError:
		if m.ID == "" {
			return fmt.Errorf("%w: id", ErrMissingField)
		}
	}

	if m.IsEncrypted() {
		if len(m.Ciphertext) == 0 {
			return fmt.Errorf("%w: ciphertext", ErrMissingField)
		}
		return nil
	}

	if m.Content == nil {
		return fmt.Errorf("%w: content", ErrMissingField)
	}
	switch m.Kind {
	case KindRequest, KindNotification, KindBroadcast:
		if m.Content.Method == "" {
			return fmt.Errorf("%w: method", ErrMissingField)
		}
	}
	return nil
}

// Clone returns a copy that can be modified without touching m. Byte slices
// are shared since they are never mutated in place.
func (m *Message) Clone() *Message {
	out := *m
	if m.Content != nil {
		c := *m.Content
		out.Content = &c
	}
	if m.Encryption != nil {
		e := *m.Encryption
		e.Keys = append([]WrappedKey(nil), m.Encryption.Keys...)
		out.Encryption = &e
	}
	return &out
}

// ForRecipient narrows a multi-recipient encrypted message down to the single
// wrapped-key entry for peerID. It returns false when the message carries no
// entry for that peer. Plaintext messages are returned as a plain copy.
func (m *Message) ForRecipient(peerID string) (*Message, bool) {
	out := m.Clone()
	if m.Encryption == nil {
		return out, true
	}
	for _, k := range m.Encryption.Keys {
		if k.PeerID == peerID {
			out.Encryption.Keys = []WrappedKey{k}
			return out, true
		}
	}
	return nil, false
}
