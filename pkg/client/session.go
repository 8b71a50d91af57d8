package client

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/connection"
	"github.com/ZentaChain/zentalk-collab/pkg/crypto"
	"github.com/ZentaChain/zentalk-collab/pkg/e2ee"
	"github.com/ZentaChain/zentalk-collab/pkg/encoding"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
	"github.com/ZentaChain/zentalk-collab/pkg/server"
	"github.com/ZentaChain/zentalk-collab/pkg/transport"
)

var ErrRoomClosed = errors.New("room closed")

// Events are optional callbacks for room membership changes
type Events struct {
	PeerJoined  func(info protocol.PeerInfo)
	PeerLeft    func(id string)
	RoomClosed  func(reason string)
	Reconnected func(welcome protocol.Welcome)
	Disconnect  func(err error, reconnecting bool)
}

// SessionOptions configures a room session
type SessionOptions struct {
	// Claim is the session claim from CreateRoom or Join
	Claim string
	Key   *rsa.PrivateKey

	Compression []string
	Encodings   []string
	ClientID    string

	RequestTimeout time.Duration

	// OnJoinRequest decides join requests when this session hosts the room.
	// Nil rejects everyone.
	OnJoinRequest func(ctx context.Context, user protocol.User) bool

	Events    Events
	Transport transport.ClientOptions
	Logger    *zap.Logger
}

func (o *SessionOptions) handshake() (http.Header, error) {
	if o.Claim == "" {
		return nil, errors.New("session claim is required")
	}
	if o.Key == nil {
		return nil, errors.New("private key is required")
	}
	pub, err := crypto.EncodePublicKey(&o.Key.PublicKey)
	if err != nil {
		return nil, err
	}
	if len(o.Compression) == 0 {
		o.Compression = []string{"zstd", "brotli", "gzip", "deflate", "none"}
	}
	if len(o.Encodings) == 0 {
		o.Encodings = encoding.Names()
	}

	h := http.Header{}
	h.Set(server.HeaderClaim, o.Claim)
	h.Set(server.HeaderPublicKey, pub)
	h.Set(server.HeaderCompression, strings.Join(o.Compression, ","))
	h.Set(server.HeaderEncoding, strings.Join(o.Encodings, ","))
	if o.ClientID != "" {
		h.Set(server.HeaderClientID, o.ClientID)
	}
	return h, nil
}

// Session is one peer's membership in a room
type Session struct {
	opts   SessionOptions
	conn   *connection.Connection
	dir    *connection.Directory
	cipher *e2ee.Cipher
	log    *zap.Logger

	mu      sync.RWMutex
	welcome protocol.Welcome

	welcomed    chan struct{}
	welcomeOnce sync.Once
	closed      chan struct{}
	closeOnce   sync.Once
	closeReason string
}

// Connect dials the relay websocket at wsURL and waits for the welcome
func Connect(ctx context.Context, wsURL string, opts SessionOptions) (*Session, error) {
	header, err := opts.handshake()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	topts := opts.Transport
	topts.Binary = opts.Encodings[0] != encoding.JSONName
	if topts.Logger == nil {
		topts.Logger = opts.Logger
	}
	ws, resp, err := transport.Dial(ctx, wsURL, header, topts)
	if err != nil {
		if resp != nil {
			return nil, &StatusError{Method: http.MethodGet, Path: wsURL, Status: resp.StatusCode, Body: err.Error()}
		}
		return nil, err
	}

	codec, err := encoding.Lookup(resp.Header.Get(server.HeaderEncoding))
	if err != nil {
		codec = encoding.JSON{}
	}

	s, err := Open(ctx, ws, codec, opts)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	return s, nil
}

// Open runs a session over an established transport
func Open(ctx context.Context, t transport.Transport, codec encoding.Codec, opts SessionOptions) (*Session, error) {
	if opts.Key == nil {
		return nil, errors.New("private key is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Session{
		opts:     opts,
		dir:      connection.NewDirectory(),
		log:      opts.Logger.Named("session"),
		welcomed: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	s.cipher = e2ee.NewCipher(opts.Key, e2ee.Options{PeerCount: s.dir.Len, Logger: opts.Logger})
	s.conn = connection.New(t, connection.Options{
		Codec:          codec,
		Cipher:         s.cipher,
		Directory:      s.dir,
		RequestTimeout: opts.RequestTimeout,
		Events: connection.Events{
			Disconnect: func(err error, reconnecting bool) {
				if opts.Events.Disconnect != nil {
					opts.Events.Disconnect(err, reconnecting)
				}
				if !reconnecting {
					s.markClosed("disconnected")
				}
			},
		},
		Logger: opts.Logger,
	})
	s.registerHandlers()
	s.conn.Start()

	select {
	case <-s.welcomed:
		return s, nil
	case <-s.closed:
		_ = s.conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrRoomClosed, s.CloseReason())
	case <-ctx.Done():
		_ = s.conn.Close()
		return nil, ctx.Err()
	}
}

func (s *Session) registerHandlers() {
	c := s.conn

	connection.HandleNotification(c, protocol.WelcomeNotification, func(ctx context.Context, origin string, w protocol.Welcome) error {
		if origin != protocol.ServerAddress {
			return fmt.Errorf("welcome from peer %s", origin)
		}
		s.mu.Lock()
		s.welcome = w
		s.mu.Unlock()
		c.SetSelf(w.You.ID)
		s.dir.Reset(w.Peers)

		first := false
		s.welcomeOnce.Do(func() {
			first = true
			c.MarkReady()
			close(s.welcomed)
		})
		if !first && s.opts.Events.Reconnected != nil {
			s.opts.Events.Reconnected(w)
		}
		s.log.Debug("welcome", zap.String("room", w.RoomID), zap.String("peer", w.You.ID), zap.Int("peers", len(w.Peers)))
		return nil
	})

	connection.HandleNotification(c, protocol.PeerJoinedNotification, func(ctx context.Context, origin string, info protocol.PeerInfo) error {
		if origin != protocol.ServerAddress {
			return fmt.Errorf("peer announcement from %s", origin)
		}
		s.dir.Put(info)
		if s.opts.Events.PeerJoined != nil {
			s.opts.Events.PeerJoined(info)
		}
		return nil
	})

	connection.HandleNotification(c, protocol.PeerLeftNotification, func(ctx context.Context, origin string, left protocol.PeerLeft) error {
		if origin != protocol.ServerAddress {
			return fmt.Errorf("peer departure from %s", origin)
		}
		s.dir.Remove(left.ID)
		if s.opts.Events.PeerLeft != nil {
			s.opts.Events.PeerLeft(left.ID)
		}
		return nil
	})

	connection.HandleNotification(c, protocol.RoomClosedNotification, func(ctx context.Context, origin string, rc protocol.RoomClosed) error {
		if origin != protocol.ServerAddress {
			return fmt.Errorf("room close from %s", origin)
		}
		s.markClosed(rc.Reason)
		return nil
	})

	connection.HandleRequest(c, protocol.JoinRequest, func(ctx context.Context, origin string, p protocol.JoinParams) (protocol.JoinResult, error) {
		if origin != protocol.ServerAddress {
			return protocol.JoinResult{}, fmt.Errorf("join request from peer %s", origin)
		}
		accepted := s.opts.OnJoinRequest != nil && s.opts.OnJoinRequest(ctx, p.User)
		s.log.Info("join request", zap.String("user", p.User.ID), zap.Bool("accepted", accepted))
		return protocol.JoinResult{Accepted: accepted}, nil
	})
}

func (s *Session) markClosed(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeReason = reason
		s.mu.Unlock()
		close(s.closed)
		if s.opts.Events.RoomClosed != nil {
			s.opts.Events.RoomClosed(reason)
		}
	})
}

// Conn exposes the underlying connection for custom methods
func (s *Session) Conn() *connection.Connection { return s.conn }

// Self is this peer's public record
func (s *Session) Self() protocol.PeerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.welcome.You
}

func (s *Session) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.welcome.RoomID
}

func (s *Session) HostID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.welcome.HostID
}

func (s *Session) IsHost() bool {
	return s.Self().ID == s.HostID()
}

// Peers lists the room members this session knows, itself included
func (s *Session) Peers() []protocol.PeerInfo {
	return s.dir.List()
}

// Closed is closed when the room is gone or the link is lost for good
func (s *Session) Closed() <-chan struct{} { return s.closed }

func (s *Session) CloseReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closeReason
}

// Ping measures a round trip to the relay
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := connection.SendRequest(ctx, s.conn, protocol.PingRequest, protocol.ServerAddress, protocol.Empty{}); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// RefreshPeers replaces the directory with the relay's current view
func (s *Session) RefreshPeers(ctx context.Context) ([]protocol.PeerInfo, error) {
	peers, err := connection.SendRequest(ctx, s.conn, protocol.PeersRequest, protocol.ServerAddress, protocol.Empty{})
	if err != nil {
		return nil, err
	}
	s.dir.Reset(peers)
	return peers, nil
}

// CloseRoom ends the room for everyone. Host only.
func (s *Session) CloseRoom(ctx context.Context) error {
	_, err := connection.SendRequest(ctx, s.conn, protocol.CloseRoomRequest, protocol.ServerAddress, protocol.Empty{})
	return err
}

// Kick removes a guest. Host only.
func (s *Session) Kick(ctx context.Context, peerID string) error {
	_, err := connection.SendRequest(ctx, s.conn, protocol.KickRequest, protocol.ServerAddress, protocol.KickParams{ID: peerID})
	return err
}

// Close leaves the room
func (s *Session) Close() error {
	s.markClosed("left")
	return s.conn.Close()
}
