// Package server is the relay: it admits peers into rooms, routes their
// messages and answers the requests addressed to the relay itself.
//
// Peer-to-peer content is never decrypted here. The relay only reads the
// plaintext envelope (kind, id, origin, target and the wrapped-key list) to
// route a message, and it only writes plaintext for the messages it
// originates: welcome, join, leave and close notifications, and responses
// to server requests.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/connection"
	"github.com/ZentaChain/zentalk-collab/pkg/credentials"
	"github.com/ZentaChain/zentalk-collab/pkg/crypto"
	"github.com/ZentaChain/zentalk-collab/pkg/encoding"
	"github.com/ZentaChain/zentalk-collab/pkg/metrics"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
	"github.com/ZentaChain/zentalk-collab/pkg/storage"
	"github.com/ZentaChain/zentalk-collab/pkg/transport"
)

// Handshake header names. Each has a query parameter fallback for clients
// that cannot set headers on a websocket upgrade.
const (
	HeaderClaim       = "X-Session-Claim"
	HeaderPublicKey   = "X-Public-Key"
	HeaderCompression = "X-Compression"
	HeaderEncoding    = "X-Encoding"
	HeaderClientID    = "X-Client-Id"
)

// Defaults
const (
	DefaultJoinTimeout = 5 * time.Minute

	// closeLinger lets a host's close-room response reach it before the
	// relay drops the link
	closeLinger = 250 * time.Millisecond
)

// Auditor records room lifecycle events
type Auditor interface {
	Record(ctx context.Context, e storage.Event) error
}

// Options configures a Server
type Options struct {
	Signer *credentials.Signer

	// Encodings the relay accepts, most preferred first
	Encodings []string

	RequestTimeout time.Duration
	RelayTimeout   time.Duration
	JoinTimeout    time.Duration

	// ReconnectGrace is how long a dropped peer keeps its place in the room
	ReconnectGrace time.Duration

	CheckOrigin func(r *http.Request) bool

	Audit   Auditor
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Server owns the room and peer registries
type Server struct {
	opts     Options
	rooms    *RoomRegistry
	peers    *PeerManager
	relay    *Relay
	upgrader websocket.Upgrader
	log      *zap.Logger

	// admit serializes registration so two handshakes for the same claim
	// or room cannot interleave
	admit  sync.Mutex
	closed bool
}

// New creates a relay server
func New(opts Options) *Server {
	if len(opts.Encodings) == 0 {
		opts.Encodings = encoding.Names()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = connection.DefaultRequestTimeout
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = DefaultJoinTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.Named("server")

	s := &Server{
		opts:  opts,
		rooms: NewRoomRegistry(),
		peers: NewPeerManager(),
		relay: NewRelay(opts.RelayTimeout, opts.Logger, opts.Metrics),
		log:   log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     opts.CheckOrigin,
	}
	if s.upgrader.CheckOrigin == nil {
		s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return s
}

func (s *Server) Rooms() *RoomRegistry { return s.rooms }
func (s *Server) Peers() *PeerManager  { return s.peers }
func (s *Server) Relay() *Relay        { return s.relay }

// Handshake carries the per-connection fields a peer presents
type Handshake struct {
	Claim       string
	PublicKey   string
	Compression []string
	Encodings   []string
	ClientID    string
}

// ParseHandshake reads handshake fields from headers, falling back to query
// parameters
func ParseHandshake(r *http.Request) Handshake {
	q := r.URL.Query()
	get := func(header, param string) string {
		if v := r.Header.Get(header); v != "" {
			return v
		}
		return q.Get(param)
	}

	var encodings []string
	for _, e := range strings.Split(get(HeaderEncoding, "encoding"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			encodings = append(encodings, e)
		}
	}
	return Handshake{
		Claim:       get(HeaderClaim, "claim"),
		PublicKey:   get(HeaderPublicKey, "publicKey"),
		Compression: protocol.ParseCompressionList(get(HeaderCompression, "compression")),
		Encodings:   encodings,
		ClientID:    get(HeaderClientID, "clientId"),
	}
}

// admission is a checked handshake ready for registration
type admission struct {
	hs      Handshake
	session *credentials.Session
	codec   encoding.Codec
	resume  *Peer
	room    *Room
}

// check validates a handshake without registering anything
func (s *Server) check(hs Handshake) (*admission, error) {
	if s.closed {
		return nil, ErrServerClosed
	}
	if hs.Claim == "" {
		return nil, ErrMissingClaim
	}
	if hs.PublicKey == "" {
		return nil, ErrMissingKey
	}
	if _, err := crypto.DecodePublicKey(hs.PublicKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	sess, err := s.opts.Signer.VerifySession(hs.Claim)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClaimRejected, err)
	}

	codec, err := encoding.Negotiate(hs.Encodings, s.opts.Encodings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	a := &admission{hs: hs, session: sess, codec: codec}

	if existing := s.peers.Get(hs.Claim); existing != nil && !existing.Disposed() {
		if existing.publicKey != hs.PublicKey {
			return nil, ErrKeyMismatch
		}
		a.resume = existing
		return a, nil
	}

	if s.rooms.IsClosed(sess.RoomID) {
		return nil, ErrRoomClosed
	}
	room := s.rooms.Get(sess.RoomID)
	if sess.Host {
		if room != nil {
			return nil, ErrRoomExists
		}
		return a, nil
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	a.room = room
	return a, nil
}

// ServeHTTP upgrades a websocket after validating the handshake. Invalid
// handshakes are refused with an HTTP error before any state is created.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hs := ParseHandshake(r)

	s.admit.Lock()
	a, err := s.check(hs)
	s.admit.Unlock()
	if err != nil {
		s.reject(w, err, r)
		return
	}

	header := http.Header{}
	header.Set(HeaderEncoding, a.codec.Name())
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ws := transport.NewWebSocket(conn, transport.WebSocketOptions{
		Binary: a.codec.Name() != encoding.JSONName,
		Logger: s.opts.Logger,
	})
	if _, err := s.Attach(ws, hs); err != nil {
		s.log.Info("registration failed after upgrade", zap.Error(err))
		_ = ws.Close()
	}
}

func (s *Server) reject(w http.ResponseWriter, err error, r *http.Request) {
	code := StatusCode(err)
	if s.opts.Metrics != nil {
		s.opts.Metrics.HandshakesRejected.WithLabelValues(http.StatusText(code)).Inc()
	}
	s.log.Info("handshake rejected",
		zap.Error(err),
		zap.Int("status", code),
		zap.String("remote", r.RemoteAddr),
	)
	http.Error(w, err.Error(), code)
}

// Attach registers a peer over an already established transport. A claim
// that belongs to a live peer resumes that peer on t.
func (s *Server) Attach(t transport.Transport, hs Handshake) (*Peer, error) {
	s.admit.Lock()
	defer s.admit.Unlock()

	a, err := s.check(hs)
	if err != nil {
		return nil, err
	}
	if a.resume != nil {
		if ok := s.resume(a.resume, t); ok {
			return a.resume, nil
		}
		a, err = s.check(hs)
		if err != nil {
			return nil, err
		}
	}
	return s.register(a, t)
}

func (s *Server) resume(p *Peer, t transport.Transport) bool {
	old, ok := p.resume(t)
	if !ok {
		return false
	}
	p.conn.Reattach(t)
	if old != nil && old != t {
		_ = old.Close()
	}

	log := s.log.With(zap.String("peer", p.id), zap.String("room", p.room.ID()))
	log.Info("peer reconnected")
	if s.opts.Metrics != nil {
		s.opts.Metrics.Reconnects.Inc()
	}
	s.audit(storage.Event{RoomID: p.room.ID(), PeerID: p.id, UserID: p.user.ID, Type: storage.EventPeerReconnected})
	s.welcome(p)
	return true
}

func (s *Server) register(a *admission, t transport.Transport) (*Peer, error) {
	sess := a.session
	p := &Peer{
		id:          uuid.NewString(),
		claim:       a.hs.Claim,
		user:        sess.User,
		host:        sess.Host,
		publicKey:   a.hs.PublicKey,
		compression: a.hs.Compression,
		clientID:    a.hs.ClientID,
		transport:   t,
		joinedAt:    time.Now(),
	}

	log := s.log.With(zap.String("peer", p.id), zap.String("room", sess.RoomID))
	p.conn = connection.New(t, connection.Options{
		Codec:          a.codec,
		RequestTimeout: s.opts.RequestTimeout,
		Interceptor:    s.route(p),
		Events: connection.Events{
			Disconnect: func(err error, reconnecting bool) {
				s.onDisconnect(p, err)
			},
		},
		Logger: log,
	})
	s.registerHandlers(p)

	if sess.Host {
		room, err := s.rooms.open(sess.RoomID, p)
		if err != nil {
			return nil, err
		}
		p.room = room
		s.audit(storage.Event{RoomID: room.ID(), PeerID: p.id, UserID: p.user.ID, Type: storage.EventRoomCreated})
	} else {
		if err := a.room.addGuest(p); err != nil {
			return nil, err
		}
		p.room = a.room
	}
	s.peers.put(p)
	s.updateGauges()

	p.conn.Start()
	p.conn.MarkReady()

	log.Info("peer registered",
		zap.Bool("host", p.host),
		zap.String("user", p.user.ID),
		zap.String("client", p.clientID),
		zap.String("encoding", a.codec.Name()),
	)
	s.audit(storage.Event{RoomID: p.room.ID(), PeerID: p.id, UserID: p.user.ID, Type: storage.EventPeerJoined})

	// others learn the new key before the newcomer can address them
	if !p.host {
		info := p.Info()
		for _, other := range p.room.Others(p.id) {
			notifyPeer(s, other, protocol.PeerJoinedNotification, info)
		}
	}
	s.welcome(p)
	return p, nil
}

func (s *Server) welcome(p *Peer) {
	room := p.room
	host := room.Host()
	notifyPeer(s, p, protocol.WelcomeNotification, protocol.Welcome{
		You:    p.Info(),
		RoomID: room.ID(),
		HostID: host.ID(),
		Peers:  room.Infos(),
	})
}

// notifyPeer sends a plaintext server notification to p
func notifyPeer[P any](s *Server, p *Peer, t protocol.NotificationType[P], params P) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := connection.SendNotification(ctx, p.conn, t, p.id, params); err != nil {
		s.log.Debug("server notification failed",
			zap.String("peer", p.id),
			zap.String("method", t.Method),
			zap.Error(err),
		)
	}
}

func (s *Server) audit(e storage.Event) {
	if s.opts.Audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.opts.Audit.Record(ctx, e); err != nil {
		s.log.Warn("audit record failed", zap.Error(err), zap.String("type", string(e.Type)))
	}
}

func (s *Server) updateGauges() {
	if s.opts.Metrics == nil {
		return
	}
	s.opts.Metrics.RoomsActive.Set(float64(s.rooms.Len()))
	s.opts.Metrics.PeersConnected.Set(float64(s.peers.Len()))
}

// Close disposes every room and peer
func (s *Server) Close() error {
	s.admit.Lock()
	s.closed = true
	s.admit.Unlock()

	var err error
	for _, room := range s.rooms.List() {
		if host := room.Host(); host != nil {
			s.dispose(host, "server shutting down", false)
		}
	}
	for _, p := range s.peers.List() {
		if p.markDisposed() {
			s.peers.remove(p)
			err = multierr.Append(err, p.conn.Close())
		}
	}
	s.updateGauges()
	return err
}
