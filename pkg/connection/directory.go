package connection

import (
	"sync"

	"github.com/ZentaChain/zentalk-collab/pkg/e2ee"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// Directory tracks the room members a connection can encrypt for, in join
// order
type Directory struct {
	mu    sync.RWMutex
	peers map[string]protocol.PeerInfo
	order []string
}

func NewDirectory() *Directory {
	return &Directory{peers: make(map[string]protocol.PeerInfo)}
}

// Put adds or replaces a peer. Replacing keeps its position.
func (d *Directory) Put(info protocol.PeerInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[info.ID]; !ok {
		d.order = append(d.order, info.ID)
	}
	d.peers[info.ID] = info
}

func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[id]; !ok {
		return
	}
	delete(d.peers, id)
	for i, pid := range d.order {
		if pid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Reset replaces the whole membership
func (d *Directory) Reset(peers []protocol.PeerInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers = make(map[string]protocol.PeerInfo, len(peers))
	d.order = d.order[:0]
	for _, p := range peers {
		if _, ok := d.peers[p.ID]; !ok {
			d.order = append(d.order, p.ID)
		}
		d.peers[p.ID] = p
	}
}

func (d *Directory) Get(id string) (protocol.PeerInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[id]
	return p, ok
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// List returns the peers in join order
func (d *Directory) List() []protocol.PeerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]protocol.PeerInfo, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.peers[id])
	}
	return out
}

// Recipients returns every peer except exclude as encryption recipients
func (d *Directory) Recipients(exclude string) []e2ee.Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []e2ee.Recipient
	for _, id := range d.order {
		if id == exclude {
			continue
		}
		out = append(out, recipient(d.peers[id]))
	}
	return out
}

func recipient(p protocol.PeerInfo) e2ee.Recipient {
	return e2ee.Recipient{ID: p.ID, PublicKey: p.PublicKey, Compression: p.Compression}
}
