package connection

import (
	"context"
	"sync"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// RequestHandler answers a request. The returned bytes become the response
// result and must be encoded with the connection codec.
type RequestHandler func(ctx context.Context, msg *protocol.Message) ([]byte, error)

// MessageHandler consumes a notification or broadcast
type MessageHandler func(ctx context.Context, msg *protocol.Message) error

// registry maps method names to handlers, one table per kind. The last
// registration for a name wins.
type registry struct {
	mu            sync.RWMutex
	requests      map[string]RequestHandler
	notifications map[string]MessageHandler
	broadcasts    map[string]MessageHandler
}

func newRegistry() *registry {
	return &registry{
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]MessageHandler),
		broadcasts:    make(map[string]MessageHandler),
	}
}

func (r *registry) request(method string) RequestHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.requests[method]
}

func (r *registry) notification(method string) MessageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notifications[method]
}

func (r *registry) broadcast(method string) MessageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broadcasts[method]
}

// OnRequest registers the handler for a request method
func (c *Connection) OnRequest(method string, h RequestHandler) {
	c.handlers.mu.Lock()
	c.handlers.requests[method] = h
	c.handlers.mu.Unlock()
}

// OnNotification registers the handler for a notification method
func (c *Connection) OnNotification(method string, h MessageHandler) {
	c.handlers.mu.Lock()
	c.handlers.notifications[method] = h
	c.handlers.mu.Unlock()
}

// OnBroadcast registers the handler for a broadcast method
func (c *Connection) OnBroadcast(method string, h MessageHandler) {
	c.handlers.mu.Lock()
	c.handlers.broadcasts[method] = h
	c.handlers.mu.Unlock()
}
