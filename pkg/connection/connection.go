// Package connection implements the message layer shared by peers and the relay.
//
// A Connection wraps one Transport. It correlates requests with responses,
// dispatches inbound messages to handlers registered by method name and
// encrypts traffic addressed to other peers. Traffic to or from the relay
// itself (the empty peer id) stays in the clear.
//
// Sends block until the connection is marked ready. The gate opens once and
// stays open for the lifetime of the Connection, across transport reconnects.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/e2ee"
	"github.com/ZentaChain/zentalk-collab/pkg/encoding"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
	"github.com/ZentaChain/zentalk-collab/pkg/transport"
)

// DefaultRequestTimeout is the deadline applied to requests without an override
const DefaultRequestTimeout = 60 * time.Second

var (
	ErrRequestTimeout = errors.New("request timed out")
	ErrClosed         = errors.New("connection closed")
	ErrUnknownPeer    = errors.New("unknown peer")
	ErrUnknownMethod  = errors.New("unknown method")
)

// RemoteError is returned when the remote handler answered with a ResponseError
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Method == "" {
		return "remote error: " + e.Message
	}
	return fmt.Sprintf("remote error from %s: %s", e.Method, e.Message)
}

// Interceptor sees every decoded inbound message before dispatch. Returning
// true consumes the message.
type Interceptor func(msg *protocol.Message) bool

// Events are optional lifecycle callbacks
type Events struct {
	Disconnect func(err error, reconnecting bool)
	Reconnect  func()
	Error      func(msg *protocol.Message)
}

// Options configures a Connection
type Options struct {
	// Codec encodes envelopes on this transport and the content of messages
	// this side creates
	Codec encoding.Codec

	// Cipher encrypts peer-addressed traffic. Without one everything is sent
	// in the clear, which is what the relay does.
	Cipher *e2ee.Cipher

	// Directory lists the peers this side can encrypt for
	Directory *Directory

	// Self is the local peer id; it can be set later with SetSelf
	Self string

	RequestTimeout time.Duration
	Interceptor    Interceptor
	Events         Events
	Logger         *zap.Logger
}

// Connection is one side of a protocol session
type Connection struct {
	codec     encoding.Codec
	cipher    *e2ee.Cipher
	directory *Directory
	timeout   time.Duration
	intercept Interceptor
	events    Events
	log       *zap.Logger

	self  atomic.Value // string
	state atomic.Int32

	mu        sync.RWMutex
	transport transport.Transport

	pending  *pendingRequests
	handlers *registry

	readyOnce sync.Once
	ready     chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a connection over t. Call Start to begin reading.
func New(t transport.Transport, opts Options) *Connection {
	if opts.Codec == nil {
		opts.Codec = encoding.JSON{}
	}
	if opts.Directory == nil {
		opts.Directory = NewDirectory()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Connection{
		codec:     opts.Codec,
		cipher:    opts.Cipher,
		directory: opts.Directory,
		timeout:   opts.RequestTimeout,
		intercept: opts.Interceptor,
		events:    opts.Events,
		log:       opts.Logger.Named("conn"),
		transport: t,
		pending:   newPendingRequests(),
		handlers:  newRegistry(),
		ready:     make(chan struct{}),
		closed:    make(chan struct{}),
	}
	c.self.Store(opts.Self)
	c.state.Store(int32(StateConnecting))
	return c
}

// Start begins reading from the transport
func (c *Connection) Start() {
	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()
	t.Start(&binding{c: c, t: t})
}

// Reattach swaps in a new transport and starts reading from it. The pending
// map, handlers and key material are kept. The caller closes the old one.
func (c *Connection) Reattach(t transport.Transport) {
	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()
	if c.isReady() {
		c.state.Store(int32(StateReady))
	}
	t.Start(&binding{c: c, t: t})
}

// MarkReady opens the send gate
func (c *Connection) MarkReady() {
	c.readyOnce.Do(func() {
		c.state.Store(int32(StateReady))
		close(c.ready)
	})
}

// Ready is closed once the connection is ready
func (c *Connection) Ready() <-chan struct{} {
	return c.ready
}

// Closed is closed once Close has been called
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

func (c *Connection) isReady() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) Self() string {
	return c.self.Load().(string)
}

func (c *Connection) SetSelf(id string) {
	c.self.Store(id)
}

func (c *Connection) Directory() *Directory {
	return c.directory
}

func (c *Connection) Codec() encoding.Codec {
	return c.codec
}

// PendingCount reports the number of requests awaiting a response
func (c *Connection) PendingCount() int {
	return c.pending.len()
}

// Close tears down the transport. Pending requests run out their deadlines.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.closed)
		c.mu.RLock()
		t := c.transport
		c.mu.RUnlock()
		err = t.Close()
	})
	return err
}

// ===== OUTGOING =====

// RequestOption adjusts a single request
type RequestOption func(*requestConfig)

type requestConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the request deadline
func WithTimeout(d time.Duration) RequestOption {
	return func(rc *requestConfig) { rc.timeout = d }
}

// Request sends a request and waits for its response. The returned message
// has plaintext content. A ResponseError is returned as *RemoteError.
func (c *Connection) Request(ctx context.Context, target, method string, params []byte, opts ...RequestOption) (*protocol.Message, error) {
	rc := requestConfig{timeout: c.timeout}
	for _, opt := range opts {
		opt(&rc)
	}

	if err := c.waitReady(ctx); err != nil {
		return nil, err
	}

	id, rec := c.pending.open(rc.timeout)
	msg := protocol.NewRequest(id, c.Self(), target, method, params)
	if err := c.send(msg); err != nil {
		c.pending.settle(id, outcome{err: err})
		<-rec.done
		return nil, err
	}

	var res outcome
	select {
	case res = <-rec.done:
	case <-ctx.Done():
		c.pending.settle(id, outcome{err: ctx.Err()})
		res = <-rec.done
	}
	if res.err != nil {
		if errors.Is(res.err, ErrRequestTimeout) {
			c.log.Debug("request timed out", zap.String("method", method), zap.String("id", id), zap.String("target", target))
		}
		return nil, res.err
	}

	resp, err := c.open(res.msg)
	if err != nil {
		return nil, err
	}
	if resp.Kind == protocol.KindResponseError {
		return nil, &RemoteError{Method: method, Message: resp.Content.Error}
	}
	return resp, nil
}

// Notify sends a fire-and-forget message to one target
func (c *Connection) Notify(ctx context.Context, target, method string, params []byte) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	return c.send(protocol.NewNotification(c.Self(), target, method, params))
}

// Broadcast sends a message to every other room member. Nothing is sent when
// the directory has no one to encrypt for.
func (c *Connection) Broadcast(ctx context.Context, method string, params []byte) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	return c.send(protocol.NewBroadcast(c.Self(), method, params))
}

// SendMessage writes a message created elsewhere, applying the same
// encryption rules as the dedicated send methods
func (c *Connection) SendMessage(ctx context.Context, msg *protocol.Message) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	return c.send(msg)
}

// Forward writes msg as-is. Encrypted content is passed through untouched.
func (c *Connection) Forward(msg *protocol.Message) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	return c.write(msg)
}

func (c *Connection) waitReady(ctx context.Context) error {
	select {
	case <-c.ready:
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
		return nil
	}
}

// send stamps the content encoding, encrypts when required and writes
func (c *Connection) send(msg *protocol.Message) error {
	if msg.Content != nil && msg.ContentEncoding == "" {
		msg.ContentEncoding = c.codec.Name()
	}

	out, skip, err := c.seal(msg)
	if err != nil {
		return err
	}
	if skip {
		c.log.Debug("no recipients, broadcast skipped", zap.String("method", msg.Method()))
		return nil
	}
	return c.write(out)
}

func (c *Connection) seal(msg *protocol.Message) (*protocol.Message, bool, error) {
	if c.cipher == nil || msg.IsEncrypted() {
		return msg, false, nil
	}

	switch msg.Kind {
	case protocol.KindBroadcast:
		recipients := c.directory.Recipients(c.Self())
		if len(recipients) == 0 {
			return nil, true, nil
		}
		out, err := c.cipher.Encrypt(msg, recipients)
		return out, false, err

	case protocol.KindRequest, protocol.KindNotification, protocol.KindResponse, protocol.KindResponseError:
		if msg.Target == protocol.ServerAddress {
			return msg, false, nil
		}
		peer, ok := c.directory.Get(msg.Target)
		if !ok {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownPeer, msg.Target)
		}
		out, err := c.cipher.Encrypt(msg, []e2ee.Recipient{recipient(peer)})
		return out, false, err

	default:
		return msg, false, nil
	}
}

func (c *Connection) write(msg *protocol.Message) error {
	data, err := encoding.Encode(c.codec, msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()
	return t.Write(data)
}

// open returns msg with plaintext content
func (c *Connection) open(msg *protocol.Message) (*protocol.Message, error) {
	if !msg.IsEncrypted() {
		return msg, nil
	}
	if c.cipher == nil {
		return nil, fmt.Errorf("encrypted %s without a cipher", msg.Kind)
	}
	return c.cipher.Decrypt(msg)
}

// ===== INCOMING =====

// binding ties transport events to the connection. Disconnects reported by
// a transport that has since been replaced are ignored.
type binding struct {
	c *Connection
	t transport.Transport
}

func (b *binding) current() bool {
	b.c.mu.RLock()
	defer b.c.mu.RUnlock()
	return b.c.transport == b.t
}

func (b *binding) HandleMessage(data []byte) {
	b.c.receive(data)
}

func (b *binding) HandleDisconnect(err error, reconnecting bool) {
	if !b.current() {
		return
	}
	c := b.c
	if c.State() != StateClosed {
		if reconnecting {
			c.state.Store(int32(StateReconnectPending))
		} else {
			c.state.Store(int32(StateDisconnected))
		}
	}
	c.log.Debug("transport disconnected", zap.Error(err), zap.Bool("reconnecting", reconnecting))
	if c.events.Disconnect != nil {
		c.events.Disconnect(err, reconnecting)
	}
}

func (b *binding) HandleReconnect() {
	if !b.current() {
		return
	}
	c := b.c
	if c.isReady() {
		c.state.Store(int32(StateReady))
	} else {
		c.state.Store(int32(StateConnecting))
	}
	if c.events.Reconnect != nil {
		c.events.Reconnect()
	}
}

func (c *Connection) receive(data []byte) {
	msg, err := encoding.Decode(c.codec, data)
	if err != nil {
		c.log.Warn("dropping undecodable message", zap.Error(err), zap.Int("size", len(data)))
		return
	}
	if err := msg.Validate(); err != nil {
		c.log.Warn("dropping invalid message", zap.Error(err), zap.Stringer("kind", msg.Kind))
		return
	}

	if c.intercept != nil && c.intercept(msg) {
		return
	}
	c.Dispatch(msg)
}

// Dispatch handles a decoded message as if it had arrived on the transport
func (c *Connection) Dispatch(msg *protocol.Message) {
	switch msg.Kind {
	case protocol.KindResponse, protocol.KindResponseError:
		if !c.pending.settle(msg.ID, outcome{msg: msg}) {
			c.log.Debug("response for unknown request", zap.String("id", msg.ID))
		}

	case protocol.KindRequest:
		go c.serve(msg)

	case protocol.KindNotification, protocol.KindBroadcast:
		c.deliver(msg)

	case protocol.KindError:
		text := ""
		if msg.Content != nil {
			text = msg.Content.Error
		}
		c.log.Warn("error message received", zap.String("origin", msg.Origin), zap.String("error", text))
		if c.events.Error != nil {
			c.events.Error(msg)
		}
	}
}

func (c *Connection) serve(msg *protocol.Message) {
	ctx := context.Background()
	if err := c.waitReady(ctx); err != nil {
		return
	}

	req, err := c.open(msg)
	if err != nil {
		c.log.Warn("dropping request", zap.Error(err), zap.String("origin", msg.Origin))
		return
	}

	var resp *protocol.Message
	handler := c.handlers.request(req.Method())
	if handler == nil {
		resp = protocol.NewResponseError(req.ID, c.Self(), req.Origin,
			fmt.Sprintf("%v: %s", ErrUnknownMethod, req.Method()))
	} else {
		result, err := handler(ctx, req)
		if err != nil {
			resp = protocol.NewResponseError(req.ID, c.Self(), req.Origin, err.Error())
		} else {
			resp = protocol.NewResponse(req.ID, c.Self(), req.Origin, result)
		}
	}

	if err := c.send(resp); err != nil {
		c.log.Warn("failed to send response", zap.Error(err), zap.String("method", req.Method()))
		if errors.Is(err, ErrUnknownPeer) {
			_ = c.write(protocol.NewResponseError(req.ID, c.Self(), req.Origin, err.Error()))
		}
	}
}

func (c *Connection) deliver(msg *protocol.Message) {
	m, err := c.open(msg)
	if err != nil {
		c.log.Warn("dropping message", zap.Error(err), zap.Stringer("kind", msg.Kind), zap.String("origin", msg.Origin))
		return
	}

	var handler MessageHandler
	if m.Kind == protocol.KindBroadcast {
		handler = c.handlers.broadcast(m.Method())
	} else {
		handler = c.handlers.notification(m.Method())
	}
	if handler == nil {
		c.log.Debug("no handler", zap.Stringer("kind", m.Kind), zap.String("method", m.Method()))
		return
	}
	if err := handler(context.Background(), m); err != nil {
		c.log.Warn("handler failed", zap.Error(err), zap.Stringer("kind", m.Kind), zap.String("method", m.Method()))
	}
}
