package transport

import (
	"sync"
)

// PipeEnd is one side of an in-memory transport pair. Datagrams written to one
// end are delivered to the other end's handler in order.
type PipeEnd struct {
	peer *PipeEnd

	mu      sync.Mutex
	queue   [][]byte
	wake    chan struct{}
	started bool
	closed  bool
	done    chan struct{}
	once    sync.Once
	handler Handler
}

// Pipe returns two connected ends
func Pipe() (*PipeEnd, *PipeEnd) {
	a := newPipeEnd()
	b := newPipeEnd()
	a.peer, b.peer = b, a
	return a, b
}

func newPipeEnd() *PipeEnd {
	return &PipeEnd{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (p *PipeEnd) Start(h Handler) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.handler = h
	p.mu.Unlock()
	go p.deliver()
}

func (p *PipeEnd) deliver() {
	for {
		p.mu.Lock()
		for len(p.queue) > 0 {
			data := p.queue[0]
			p.queue = p.queue[1:]
			h := p.handler
			p.mu.Unlock()
			h.HandleMessage(data)
			p.mu.Lock()
		}
		closed := p.closed
		p.mu.Unlock()

		if closed {
			p.handler.HandleDisconnect(ErrClosed, false)
			return
		}
		<-p.wake
	}
}

func (p *PipeEnd) push(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.queue = append(p.queue, data)
	p.signal()
	return true
}

func (p *PipeEnd) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *PipeEnd) Write(data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	buf := append([]byte(nil), data...)
	if !p.peer.push(buf) {
		return ErrClosed
	}
	return nil
}

// Close shuts both ends. Each started end sees HandleDisconnect after its
// queued datagrams drain.
func (p *PipeEnd) Close() error {
	p.shutdown()
	p.peer.shutdown()
	return nil
}

func (p *PipeEnd) shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.signal()
		p.mu.Unlock()
		close(p.done)
	})
}

// Done is closed once this end has been shut down
func (p *PipeEnd) Done() <-chan struct{} {
	return p.done
}
