package connection

import (
	"strconv"
	"sync"
	"time"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

type outcome struct {
	msg *protocol.Message
	err error
}

type pendingRequest struct {
	done  chan outcome
	timer *time.Timer
}

// pendingRequests correlates outgoing request ids with their responses. A
// record is removed by whichever of response, timeout or cancellation gets
// to it first; the others find nothing and return false.
type pendingRequests struct {
	mu      sync.Mutex
	records map[string]*pendingRequest
	nextID  uint64
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{records: make(map[string]*pendingRequest)}
}

// open allocates the next id and arms its deadline
func (p *pendingRequests) open(timeout time.Duration) (string, *pendingRequest) {
	p.mu.Lock()
	p.nextID++
	id := strconv.FormatUint(p.nextID, 10)
	rec := &pendingRequest{done: make(chan outcome, 1)}
	rec.timer = time.AfterFunc(timeout, func() {
		p.settle(id, outcome{err: ErrRequestTimeout})
	})
	p.records[id] = rec
	p.mu.Unlock()
	return id, rec
}

// settle resolves the record for id exactly once
func (p *pendingRequests) settle(id string, o outcome) bool {
	p.mu.Lock()
	rec, ok := p.records[id]
	if ok {
		delete(p.records, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	rec.timer.Stop()
	rec.done <- o
	return true
}

func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}
