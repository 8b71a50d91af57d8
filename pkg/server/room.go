package server

import (
	"sync"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// Room is a host and its guests in join order
type Room struct {
	id string

	mu     sync.RWMutex
	host   *Peer
	guests []*Peer
	clock  uint64
	closed bool
}

func newRoom(id string, host *Peer) *Room {
	return &Room{id: id, host: host}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Host() *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.host
}

// Guests returns a snapshot of the guest list
func (r *Room) Guests() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Peer(nil), r.guests...)
}

// Peers returns the host followed by the guests
func (r *Room) Peers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.guests)+1)
	if r.host != nil {
		out = append(out, r.host)
	}
	return append(out, r.guests...)
}

// GetPeer finds a member by peer id
func (r *Room) GetPeer(id string) *Peer {
	for _, p := range r.Peers() {
		if p.id == id {
			return p
		}
	}
	return nil
}

// Others returns every member except the one with id exclude
func (r *Room) Others(exclude string) []*Peer {
	var out []*Peer
	for _, p := range r.Peers() {
		if p.id != exclude {
			out = append(out, p)
		}
	}
	return out
}

// Infos returns the public records of all members
func (r *Room) Infos() []protocol.PeerInfo {
	peers := r.Peers()
	out := make([]protocol.PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Info())
	}
	return out
}

func (r *Room) addGuest(p *Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	r.guests = append(r.guests, p)
	return nil
}

// removeGuest drops the guest with the given id
func (r *Room) removeGuest(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, g := range r.guests {
		if g.id == id {
			r.guests = append(r.guests[:i], r.guests[i+1:]...)
			return true
		}
	}
	return false
}

// NextClock advances the room clock carried by guest claims
func (r *Room) NextClock() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	return r.clock
}

func (r *Room) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// markClosed closes the room once and returns its guests at that moment
func (r *Room) markClosed() ([]*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	r.closed = true
	guests := r.guests
	r.guests = nil
	return guests, true
}
