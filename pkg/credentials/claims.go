// Package credentials issues and checks the signed claims that admit peers to
// rooms, and runs the poll-until-result handshakes behind login and join.
//
// Claims are self-contained: the relay keeps no session table. A claim is a
// JSON payload and its Ed25519 signature, both base64url encoded and joined
// by a dot. Anyone presenting a valid claim is treated as its subject.
package credentials

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

var (
	ErrInvalidClaim = errors.New("invalid claim")
	ErrExpired      = errors.New("expired")
	ErrWrongType    = errors.New("claim has the wrong type")
)

// Claim types
const (
	TypeUser    = "user"
	TypeSession = "session"
)

// Session admits one user to one room. Clock distinguishes successive joins
// of the same user so that each join yields a distinct credential.
type Session struct {
	RoomID string        `json:"room"`
	User   protocol.User `json:"user"`
	Host   bool          `json:"host"`
	Clock  uint64        `json:"clock"`
}

type envelope struct {
	Type     string          `json:"typ"`
	IssuedAt int64           `json:"iat"`
	Nonce    []byte          `json:"nonce"`
	Body     json.RawMessage `json:"body"`
}

// Signer signs and verifies claims with the relay's key
type Signer struct {
	key ed25519.PrivateKey
	pub ed25519.PublicKey
	ttl time.Duration
	now func() time.Time
}

// NewSigner returns a signer. Claims older than ttl are rejected; a zero ttl
// disables the age check.
func NewSigner(key ed25519.PrivateKey, ttl time.Duration) *Signer {
	return &Signer{
		key: key,
		pub: key.Public().(ed25519.PublicKey),
		ttl: ttl,
		now: time.Now,
	}
}

// IssueUser signs a user identity claim
func (s *Signer) IssueUser(user protocol.User) (string, error) {
	return s.sign(TypeUser, user)
}

// VerifyUser checks a user claim and returns its subject
func (s *Signer) VerifyUser(token string) (*protocol.User, error) {
	var user protocol.User
	if err := s.verify(token, TypeUser, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// IssueSession signs a room session claim
func (s *Signer) IssueSession(sess Session) (string, error) {
	return s.sign(TypeSession, sess)
}

// VerifySession checks a session claim
func (s *Signer) VerifySession(token string) (*Session, error) {
	var sess Session
	if err := s.verify(token, TypeSession, &sess); err != nil {
		return nil, err
	}
	if sess.RoomID == "" || sess.User.ID == "" {
		return nil, fmt.Errorf("%w: incomplete session", ErrInvalidClaim)
	}
	return &sess, nil
}

func (s *Signer) sign(typ string, body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, 8)
	if _, err := randRead(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	payload, err := json.Marshal(envelope{
		Type:     typ,
		IssuedAt: s.now().Unix(),
		Nonce:    nonce,
		Body:     raw,
	})
	if err != nil {
		return "", err
	}

	sig := ed25519.Sign(s.key, payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(sig), nil
}

func (s *Signer) verify(token, typ string, body any) error {
	encPayload, encSig, ok := strings.Cut(token, ".")
	if !ok {
		return fmt.Errorf("%w: malformed", ErrInvalidClaim)
	}
	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return fmt.Errorf("%w: payload: %v", ErrInvalidClaim, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrInvalidClaim, err)
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(s.pub, payload, sig) {
		return fmt.Errorf("%w: bad signature", ErrInvalidClaim)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
	if env.Type != typ {
		return fmt.Errorf("%w: got %q, want %q", ErrWrongType, env.Type, typ)
	}
	if s.ttl > 0 && s.now().Sub(time.Unix(env.IssuedAt, 0)) > s.ttl {
		return fmt.Errorf("claim %w", ErrExpired)
	}
	if err := json.Unmarshal(env.Body, body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
	return nil
}
