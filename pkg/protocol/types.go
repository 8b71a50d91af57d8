package protocol

import "strings"

// Protocol constants
const (
	// Protocol version carried by every message
	ProtocolVersion uint8 = 1

	// ServerAddress is the empty peer id. Messages targeting it are handled by the
	// relay itself and are never encrypted.
	ServerAddress = ""
)

// Kind discriminates the six message kinds
type Kind uint8

const (
	KindRequest       Kind = 0x01
	KindResponse      Kind = 0x02
	KindResponseError Kind = 0x03
	KindNotification  Kind = 0x04
	KindBroadcast     Kind = 0x05
	KindError         Kind = 0x06
)

// String returns the kind name used in logs and metric labels
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindResponseError:
		return "response_error"
	case KindNotification:
		return "notification"
	case KindBroadcast:
		return "broadcast"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	return k >= KindRequest && k <= KindError
}

// IsResponse reports whether k settles a pending request
func (k Kind) IsResponse() bool {
	return k == KindResponse || k == KindResponseError
}

// User identifies an authenticated person. Provider records which login flow
// produced the identity.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
}

// PeerInfo is the public view of a room member sent by the server
type PeerInfo struct {
	ID          string   `json:"id"`
	User        User     `json:"user"`
	Host        bool     `json:"host"`
	PublicKey   string   `json:"publicKey"`
	Compression []string `json:"compression,omitempty"`
	ClientID    string   `json:"clientId,omitempty"`
}

// ParseCompressionList parses the comma separated handshake value. Empty input
// yields ["none"].
func ParseCompressionList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return []string{"none"}
	}
	return out
}
