// Package transport carries encoded messages between a peer and the relay.
//
// A Transport is message oriented and push based: Start hands it a Handler
// that receives every inbound datagram in order, plus disconnect and
// reconnect events. Implementations are interchangeable; the relay uses
// websockets, tests use Pipe.
package transport

import "errors"

var (
	ErrClosed       = errors.New("transport closed")
	ErrNotConnected = errors.New("transport not connected")
)

// Handler receives transport events. Calls are made from a single goroutine
// per transport, in arrival order.
type Handler interface {
	HandleMessage(data []byte)

	// HandleDisconnect reports a lost link. reconnecting is true when the
	// transport will try to restore it on its own.
	HandleDisconnect(err error, reconnecting bool)

	HandleReconnect()
}

// Transport is a bidirectional datagram channel
type Transport interface {
	// Start begins delivering events to h. It must be called once.
	Start(h Handler)

	Write(data []byte) error

	Close() error
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Message    func(data []byte)
	Disconnect func(err error, reconnecting bool)
	Reconnect  func()
}

func (f HandlerFuncs) HandleMessage(data []byte) {
	if f.Message != nil {
		f.Message(data)
	}
}

func (f HandlerFuncs) HandleDisconnect(err error, reconnecting bool) {
	if f.Disconnect != nil {
		f.Disconnect(err, reconnecting)
	}
}

func (f HandlerFuncs) HandleReconnect() {
	if f.Reconnect != nil {
		f.Reconnect()
	}
}
