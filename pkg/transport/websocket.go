package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize bounds a single inbound frame
	DefaultMaxMessageSize = 4 << 20
)

// WebSocketOptions tunes a websocket transport
type WebSocketOptions struct {
	// Binary selects binary frames; text frames are used otherwise
	Binary bool

	MaxMessageSize int64

	Logger *zap.Logger
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o WebSocketOptions) frameType() int {
	if o.Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// wsLink wraps one *websocket.Conn with a serialized writer and keepalive
type wsLink struct {
	conn      *websocket.Conn
	frameType int

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newLink(conn *websocket.Conn, opts WebSocketOptions) *wsLink {
	conn.SetReadLimit(opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsLink{
		conn:      conn,
		frameType: opts.frameType(),
		done:      make(chan struct{}),
	}
}

func (l *wsLink) write(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteMessage(l.frameType, data)
}

func (l *wsLink) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.writeMu.Lock()
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := l.conn.WriteMessage(websocket.PingMessage, nil)
			l.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readLoop delivers frames until the connection fails
func (l *wsLink) readLoop(onMessage func([]byte)) error {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			return err
		}
		onMessage(data)
	}
}

func (l *wsLink) close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		l.writeMu.Lock()
		_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = l.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.writeMu.Unlock()
		err = l.conn.Close()
	})
	return err
}

// WebSocket is the relay side of an accepted websocket. It never reconnects;
// a dropped link is final and the peer is expected to dial again.
type WebSocket struct {
	link *wsLink
	log  *zap.Logger
}

// NewWebSocket wraps an upgraded connection
func NewWebSocket(conn *websocket.Conn, opts WebSocketOptions) *WebSocket {
	opts = opts.withDefaults()
	return &WebSocket{
		link: newLink(conn, opts),
		log:  opts.Logger.Named("ws").With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

func (w *WebSocket) Start(h Handler) {
	go w.link.pingLoop()
	go func() {
		err := w.link.readLoop(h.HandleMessage)
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			w.log.Debug("websocket read error", zap.Error(err))
		}
		_ = w.link.close()
		h.HandleDisconnect(err, false)
	}()
}

func (w *WebSocket) Write(data []byte) error {
	return w.link.write(data)
}

func (w *WebSocket) Close() error {
	return w.link.close()
}
