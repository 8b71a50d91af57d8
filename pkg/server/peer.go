package server

import (
	"sync"
	"time"

	"github.com/ZentaChain/zentalk-collab/pkg/connection"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
	"github.com/ZentaChain/zentalk-collab/pkg/transport"
)

// Peer is one room member as seen by the relay. The same Peer survives
// transport reconnects; only its channel is swapped.
type Peer struct {
	id          string
	claim       string
	user        protocol.User
	host        bool
	publicKey   string
	compression []string
	clientID    string

	room *Room
	conn *connection.Connection

	mu           sync.Mutex
	transport    transport.Transport
	disposeTimer *time.Timer
	disposeGen   uint64
	disposed     bool
	joinedAt     time.Time
}

func (p *Peer) ID() string          { return p.id }
func (p *Peer) User() protocol.User { return p.user }
func (p *Peer) IsHost() bool        { return p.host }
func (p *Peer) Room() *Room         { return p.room }
func (p *Peer) ClientID() string    { return p.clientID }

// Conn returns the relay's connection to the peer
func (p *Peer) Conn() *connection.Connection { return p.conn }

// Info is the public record other peers encrypt against
func (p *Peer) Info() protocol.PeerInfo {
	return protocol.PeerInfo{
		ID:          p.id,
		User:        p.user,
		Host:        p.host,
		PublicKey:   p.publicKey,
		Compression: p.compression,
		ClientID:    p.clientID,
	}
}

// Forward writes msg to the peer without touching its content
func (p *Peer) Forward(msg *protocol.Message) error {
	return p.conn.Forward(msg)
}

// Disposed reports whether the peer has been removed
func (p *Peer) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// scheduleDispose arms a disposal that fires after grace. When it fires and
// skip reports false, the peer is marked disposed and fn runs. A resume or a
// newer schedule in the meantime cancels it, even once the timer has fired.
// A non-positive grace fires immediately.
func (p *Peer) scheduleDispose(grace time.Duration, skip func() bool, fn func()) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	if p.disposeTimer != nil {
		p.disposeTimer.Stop()
		p.disposeTimer = nil
	}
	p.disposeGen++
	gen := p.disposeGen
	fire := func() {
		if skip != nil && skip() {
			return
		}
		if p.expire(gen) {
			fn()
		}
	}
	if grace <= 0 {
		p.mu.Unlock()
		fire()
		return
	}
	p.disposeTimer = time.AfterFunc(grace, fire)
	p.mu.Unlock()
}

// expire marks the peer disposed if the disposal armed as gen is still the
// current one
func (p *Peer) expire(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || p.disposeGen != gen {
		return false
	}
	p.disposed = true
	p.disposeTimer = nil
	return true
}

// resume cancels a pending disposal and swaps in t. It returns false when
// the peer is already gone.
func (p *Peer) resume(t transport.Transport) (old transport.Transport, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil, false
	}
	if p.disposeTimer != nil {
		p.disposeTimer.Stop()
		p.disposeTimer = nil
	}
	p.disposeGen++
	old = p.transport
	p.transport = t
	return old, true
}

// markDisposed flips the peer to disposed exactly once
func (p *Peer) markDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return false
	}
	p.disposed = true
	if p.disposeTimer != nil {
		p.disposeTimer.Stop()
		p.disposeTimer = nil
	}
	return true
}
