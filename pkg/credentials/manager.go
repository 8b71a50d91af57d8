package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// Defaults for the poll handshakes
const (
	DefaultExpiry   = 5 * time.Minute
	DefaultPollWait = 30 * time.Second
)

var (
	ErrRejected  = errors.New("rejected")
	ErrEmptyName = errors.New("name is required")
)

// JoinApprover asks a room's host to admit a user. It returns the room clock
// to embed in the guest's claim.
type JoinApprover interface {
	RequestJoin(ctx context.Context, roomID string, user protocol.User) (clock uint64, accepted bool, err error)
}

// Options configures a Manager
type Options struct {
	Expiry   time.Duration
	PollWait time.Duration
	Logger   *zap.Logger
}

// Manager runs the login and join handshakes
type Manager struct {
	signer   *Signer
	approver JoinApprover
	logins   *Polls[string]
	joins    *Polls[string]
	expiry   time.Duration
	pollWait time.Duration
	log      *zap.Logger
}

// NewManager wires a signer to the poll tables. approver may be set later
// with SetApprover, before the first join.
func NewManager(signer *Signer, approver JoinApprover, opts Options) *Manager {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.PollWait <= 0 {
		opts.PollWait = DefaultPollWait
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		signer:   signer,
		approver: approver,
		logins:   NewPolls[string](opts.Expiry),
		joins:    NewPolls[string](opts.Expiry),
		expiry:   opts.Expiry,
		pollWait: opts.PollWait,
		log:      opts.Logger.Named("credentials"),
	}
}

func (m *Manager) SetApprover(a JoinApprover) {
	m.approver = a
}

func (m *Manager) Signer() *Signer {
	return m.signer
}

// StartAuth opens a login attempt. The token is handed to the out-of-band
// flow that later calls ConfirmUser.
func (m *Manager) StartAuth() (string, time.Time) {
	return m.logins.Open()
}

// ConfirmUser completes a login attempt with a verified identity
func (m *Manager) ConfirmUser(token string, name, provider string) (*protocol.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	user := protocol.User{ID: uuid.NewString(), Name: name, Provider: provider}
	claim, err := m.signer.IssueUser(user)
	if err != nil {
		return nil, err
	}
	if err := m.logins.Resolve(token, claim); err != nil {
		return nil, err
	}
	m.log.Info("user confirmed", zap.String("user", user.ID), zap.String("provider", provider))
	return &user, nil
}

// GetAuth waits one poll round for the user claim of a login attempt
func (m *Manager) GetAuth(ctx context.Context, token string) (string, error) {
	return m.logins.Wait(ctx, token, m.pollWait)
}

// CreateRoom allocates a room id and signs a host claim for it. The room
// goes live when the host connects.
func (m *Manager) CreateRoom(user protocol.User) (roomID, claim string, err error) {
	roomID = uuid.NewString()
	claim, err = m.signer.IssueSession(Session{RoomID: roomID, User: user, Host: true})
	if err != nil {
		return "", "", err
	}
	m.log.Info("room allocated", zap.String("room", roomID), zap.String("user", user.ID))
	return roomID, claim, nil
}

// StartJoin relays a join request to the room's host and returns the token
// the guest polls with GetJoin
func (m *Manager) StartJoin(roomID string, user protocol.User) (string, error) {
	if m.approver == nil {
		return "", fmt.Errorf("no join approver configured")
	}
	token, _ := m.joins.OpenScoped(roomID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.expiry)
		defer cancel()

		clock, accepted, err := m.approver.RequestJoin(ctx, roomID, user)
		log := m.log.With(zap.String("room", roomID), zap.String("user", user.ID))
		switch {
		case err != nil:
			log.Info("join request failed", zap.Error(err))
			_ = m.joins.Reject(token, err)
		case !accepted:
			log.Info("join rejected by host")
			_ = m.joins.Reject(token, ErrRejected)
		default:
			claim, err := m.signer.IssueSession(Session{RoomID: roomID, User: user, Clock: clock})
			if err != nil {
				_ = m.joins.Reject(token, err)
				return
			}
			log.Info("join accepted", zap.Uint64("clock", clock))
			_ = m.joins.Resolve(token, claim)
		}
	}()
	return token, nil
}

// GetJoin waits one poll round for the session claim of a join attempt. The
// token is only valid for the room it was issued for.
func (m *Manager) GetJoin(ctx context.Context, roomID, token string) (string, error) {
	return m.joins.WaitScoped(ctx, token, roomID, m.pollWait)
}

// Close drops all outstanding attempts
func (m *Manager) Close() {
	m.logins.Close()
	m.joins.Close()
}
