package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Backoff bounds between redial attempts
const (
	MinBackoff = time.Second
	MaxBackoff = 30 * time.Second
)

// ClientOptions tunes a ClientWebSocket
type ClientOptions struct {
	WebSocketOptions

	MinBackoff time.Duration
	MaxBackoff time.Duration

	Dialer *websocket.Dialer
}

// ClientWebSocket is a peer side websocket that redials with exponential
// backoff until it is closed. Writes made while the link is down fail with
// ErrNotConnected.
type ClientWebSocket struct {
	url    string
	header http.Header
	opts   ClientOptions
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	link *wsLink
}

// Dial opens the first connection synchronously. Handshake failures are
// returned together with the server response so callers can inspect the
// status code.
func Dial(ctx context.Context, url string, header http.Header, opts ClientOptions) (*ClientWebSocket, *http.Response, error) {
	opts.WebSocketOptions = opts.WebSocketOptions.withDefaults()
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = MinBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = MaxBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	c := &ClientWebSocket{
		url:    url,
		header: header.Clone(),
		opts:   opts,
		log:    opts.Logger.Named("ws-client"),
	}

	conn, resp, err := opts.Dialer.DialContext(ctx, url, c.header)
	if err != nil {
		if resp != nil {
			return nil, resp, fmt.Errorf("websocket handshake failed (%s): %w", resp.Status, err)
		}
		return nil, nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	c.link = newLink(conn, opts.WebSocketOptions)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, resp, nil
}

// Start runs the receive loop with automatic reconnection
func (c *ClientWebSocket) Start(h Handler) {
	go c.run(h)
}

func (c *ClientWebSocket) run(h Handler) {
	backoff := c.opts.MinBackoff

	for {
		link := c.current()
		go link.pingLoop()
		err := link.readLoop(h.HandleMessage)
		_ = link.close()

		if c.ctx.Err() != nil {
			h.HandleDisconnect(ErrClosed, false)
			return
		}

		c.setLink(nil)
		c.log.Info("connection lost, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
		h.HandleDisconnect(err, true)

		for {
			select {
			case <-c.ctx.Done():
				h.HandleDisconnect(ErrClosed, false)
				return
			case <-time.After(backoff):
			}

			conn, _, err := c.opts.Dialer.DialContext(c.ctx, c.url, c.header)
			if err != nil {
				c.log.Warn("reconnection failed", zap.Error(err))
				backoff *= 2
				if backoff > c.opts.MaxBackoff {
					backoff = c.opts.MaxBackoff
				}
				continue
			}

			c.log.Info("reconnected")
			backoff = c.opts.MinBackoff
			c.setLink(newLink(conn, c.opts.WebSocketOptions))
			if c.ctx.Err() != nil {
				_ = c.current().close()
				h.HandleDisconnect(ErrClosed, false)
				return
			}
			h.HandleReconnect()
			break
		}
	}
}

func (c *ClientWebSocket) current() *wsLink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.link
}

func (c *ClientWebSocket) setLink(l *wsLink) {
	c.mu.Lock()
	c.link = l
	c.mu.Unlock()
}

func (c *ClientWebSocket) Write(data []byte) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	link := c.current()
	if link == nil {
		return ErrNotConnected
	}
	return link.write(data)
}

// Close stops reconnecting and closes the active link
func (c *ClientWebSocket) Close() error {
	c.cancel()
	if link := c.current(); link != nil {
		return link.close()
	}
	return nil
}

// Drop closes the active link without stopping the reconnect loop
func (c *ClientWebSocket) Drop() {
	if link := c.current(); link != nil {
		_ = link.conn.Close()
	}
}
