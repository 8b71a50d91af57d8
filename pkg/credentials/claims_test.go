package credentials

import (
	"crypto/ed25519"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

func newTestSigner(t *testing.T, ttl time.Duration) *Signer {
	t.Helper()
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return NewSigner(key, ttl)
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestSigner(t, time.Hour)
	sess := Session{RoomID: "room-1", User: protocol.User{ID: "u1", Name: "Ada"}, Host: true, Clock: 3}

	token, err := s.IssueSession(sess)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(token, "."))

	got, err := s.VerifySession(token)
	require.NoError(t, err)
	assert.Equal(t, sess, *got)
}

func TestClaimsAreDistinctPerIssue(t *testing.T) {
	s := newTestSigner(t, 0)
	sess := Session{RoomID: "r", User: protocol.User{ID: "u"}}
	a, err := s.IssueSession(sess)
	require.NoError(t, err)
	b, err := s.IssueSession(sess)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := newTestSigner(t, time.Hour)
	token, err := s.IssueSession(Session{RoomID: "r", User: protocol.User{ID: "u"}})
	require.NoError(t, err)

	payload, sig, _ := strings.Cut(token, ".")
	forged := "f" + payload[1:] + "." + sig

	tests := map[string]string{
		"no separator":   "abc",
		"bad base64":     "!!!.???",
		"forged payload": forged,
		"truncated sig":  payload + "." + sig[:10],
		"other signer":   mustIssue(t, newTestSigner(t, time.Hour)),
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.VerifySession(tok)
			assert.ErrorIs(t, err, ErrInvalidClaim)
		})
	}
}

func mustIssue(t *testing.T, s *Signer) string {
	t.Helper()
	token, err := s.IssueSession(Session{RoomID: "r", User: protocol.User{ID: "u"}})
	require.NoError(t, err)
	return token
}

func TestVerifyRejectsWrongType(t *testing.T) {
	s := newTestSigner(t, time.Hour)
	token, err := s.IssueUser(protocol.User{ID: "u1", Name: "Ada"})
	require.NoError(t, err)

	_, err = s.VerifySession(token)
	assert.ErrorIs(t, err, ErrWrongType)

	user, err := s.VerifyUser(token)
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := newTestSigner(t, time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }
	token, err := s.IssueUser(protocol.User{ID: "u1"})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = s.VerifyUser(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifySessionRequiresRoom(t *testing.T) {
	s := newTestSigner(t, 0)
	token, err := s.IssueSession(Session{User: protocol.User{ID: "u"}})
	require.NoError(t, err)
	_, err = s.VerifySession(token)
	assert.ErrorIs(t, err, ErrInvalidClaim)
}
