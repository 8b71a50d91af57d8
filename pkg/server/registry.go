package server

import (
	"sync"
)

// RoomRegistry maps room ids to live rooms. Closed ids are remembered so
// they are never reopened.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	closed map[string]struct{}
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]*Room),
		closed: make(map[string]struct{}),
	}
}

// open registers a new room for host
func (rr *RoomRegistry) open(id string, host *Peer) (*Room, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if _, gone := rr.closed[id]; gone {
		return nil, ErrRoomClosed
	}
	if _, ok := rr.rooms[id]; ok {
		return nil, ErrRoomExists
	}
	room := newRoom(id, host)
	rr.rooms[id] = room
	return room, nil
}

func (rr *RoomRegistry) Get(id string) *Room {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.rooms[id]
}

// IsClosed reports whether id belonged to a room that has been closed
func (rr *RoomRegistry) IsClosed(id string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	_, ok := rr.closed[id]
	return ok
}

func (rr *RoomRegistry) remove(id string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.rooms, id)
	rr.closed[id] = struct{}{}
}

func (rr *RoomRegistry) Len() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.rooms)
}

func (rr *RoomRegistry) List() []*Room {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	out := make([]*Room, 0, len(rr.rooms))
	for _, r := range rr.rooms {
		out = append(out, r)
	}
	return out
}

// PeerManager maps raw session claims to live peers so a reconnect with the
// same claim finds its Peer again
type PeerManager struct {
	mu      sync.RWMutex
	byClaim map[string]*Peer
}

func NewPeerManager() *PeerManager {
	return &PeerManager{byClaim: make(map[string]*Peer)}
}

func (pm *PeerManager) Get(claim string) *Peer {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.byClaim[claim]
}

func (pm *PeerManager) put(p *Peer) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.byClaim[p.claim] = p
}

// remove drops p if it still owns its claim
func (pm *PeerManager) remove(p *Peer) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.byClaim[p.claim] == p {
		delete(pm.byClaim, p.claim)
	}
}

func (pm *PeerManager) Len() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.byClaim)
}

func (pm *PeerManager) List() []*Peer {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make([]*Peer, 0, len(pm.byClaim))
	for _, p := range pm.byClaim {
		out = append(out, p)
	}
	return out
}
