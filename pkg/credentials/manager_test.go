package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

type fakeApprover struct {
	accept bool
	err    error
	clock  uint64
	seen   chan protocol.User
}

func (f *fakeApprover) RequestJoin(ctx context.Context, roomID string, user protocol.User) (uint64, bool, error) {
	if f.seen != nil {
		f.seen <- user
	}
	return f.clock, f.accept, f.err
}

func newTestManager(t *testing.T, approver JoinApprover) *Manager {
	t.Helper()
	m := NewManager(newTestSigner(t, time.Hour), approver, Options{PollWait: 2 * time.Second})
	t.Cleanup(m.Close)
	return m
}

func TestLoginFlow(t *testing.T) {
	m := newTestManager(t, nil)
	token, _ := m.StartAuth()

	_, err := m.logins.Wait(context.Background(), token, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrPending)

	user, err := m.ConfirmUser(token, "  Ada ", "simple")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
	assert.NotEmpty(t, user.ID)

	claim, err := m.GetAuth(context.Background(), token)
	require.NoError(t, err)

	verified, err := m.Signer().VerifyUser(claim)
	require.NoError(t, err)
	assert.Equal(t, *user, *verified)
}

func TestConfirmUserRequiresName(t *testing.T) {
	m := newTestManager(t, nil)
	token, _ := m.StartAuth()
	_, err := m.ConfirmUser(token, " ", "simple")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestCreateRoomIssuesHostClaim(t *testing.T) {
	m := newTestManager(t, nil)
	roomID, claim, err := m.CreateRoom(protocol.User{ID: "u1", Name: "Ada"})
	require.NoError(t, err)

	sess, err := m.Signer().VerifySession(claim)
	require.NoError(t, err)
	assert.Equal(t, roomID, sess.RoomID)
	assert.True(t, sess.Host)
}

func TestJoinAccepted(t *testing.T) {
	approver := &fakeApprover{accept: true, clock: 4, seen: make(chan protocol.User, 1)}
	m := newTestManager(t, approver)
	guest := protocol.User{ID: "g1", Name: "Grace"}

	token, err := m.StartJoin("room-1", guest)
	require.NoError(t, err)
	assert.Equal(t, guest, <-approver.seen)

	claim, err := m.GetJoin(context.Background(), "room-1", token)
	require.NoError(t, err)

	sess, err := m.Signer().VerifySession(claim)
	require.NoError(t, err)
	assert.Equal(t, "room-1", sess.RoomID)
	assert.False(t, sess.Host)
	assert.Equal(t, uint64(4), sess.Clock)
	assert.Equal(t, guest, sess.User)
}

func TestJoinRejected(t *testing.T) {
	m := newTestManager(t, &fakeApprover{accept: false})
	token, err := m.StartJoin("room-1", protocol.User{ID: "g1"})
	require.NoError(t, err)

	_, err = m.GetJoin(context.Background(), "room-1", token)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestJoinApproverFailure(t *testing.T) {
	boom := errors.New("host unreachable")
	m := newTestManager(t, &fakeApprover{err: boom})
	token, err := m.StartJoin("room-1", protocol.User{ID: "g1"})
	require.NoError(t, err)

	_, err = m.GetJoin(context.Background(), "room-1", token)
	assert.ErrorIs(t, err, boom)
}

func TestStartJoinWithoutApprover(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.StartJoin("room-1", protocol.User{ID: "g1"})
	assert.Error(t, err)
}

func TestJoinTokenBoundToRoom(t *testing.T) {
	m := newTestManager(t, &fakeApprover{accept: true})
	token, err := m.StartJoin("room-1", protocol.User{ID: "g1"})
	require.NoError(t, err)

	_, err = m.GetJoin(context.Background(), "room-2", token)
	assert.ErrorIs(t, err, ErrUnknownToken)

	claim, err := m.GetJoin(context.Background(), "room-1", token)
	require.NoError(t, err)
	sess, err := m.Signer().VerifySession(claim)
	require.NoError(t, err)
	assert.Equal(t, "room-1", sess.RoomID)
}
