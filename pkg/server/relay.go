package server

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/connection"
	"github.com/ZentaChain/zentalk-collab/pkg/metrics"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// DefaultRelayTimeout bounds how long a relayed request waits for its target
const DefaultRelayTimeout = 5 * time.Minute

const relayKeyPrefix = "relay:"

// Target is anything the relay can write a message to
type Target interface {
	ID() string
	Forward(msg *protocol.Message) error
}

type relayResult struct {
	msg *protocol.Message
	err error
}

type relayedRequest struct {
	target string
	done   chan relayResult
	timer  *time.Timer
}

// Relay forwards peer traffic between room members. It never decrypts:
// encrypted content and its key metadata pass through as opaque bytes.
// Relayed requests get a relay-local id so that independently numbered
// peer connections cannot collide.
type Relay struct {
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*relayedRequest
	next    uint64
}

// NewRelay creates a relay. m may be nil.
func NewRelay(timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *Relay {
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		timeout: timeout,
		log:     log.Named("relay"),
		metrics: m,
		pending: make(map[string]*relayedRequest),
	}
}

// SendRequest forwards req to target under a fresh correlation key and waits
// for the matching response pushed through PushResponse. The returned
// response still carries the correlation key; the caller restores the
// original id.
func (r *Relay) SendRequest(ctx context.Context, target Target, req *protocol.Message) (*protocol.Message, error) {
	key, rec := r.open(target.ID())

	fwd := req.Clone()
	fwd.ID = key
	if err := target.Forward(fwd); err != nil {
		r.settle(key, relayResult{err: err})
		<-rec.done
		return nil, err
	}

	var res relayResult
	select {
	case res = <-rec.done:
	case <-ctx.Done():
		r.settle(key, relayResult{err: ctx.Err()})
		res = <-rec.done
	}
	return res.msg, res.err
}

func (r *Relay) open(target string) (string, *relayedRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	key := relayKeyPrefix + strconv.FormatUint(r.next, 10)
	rec := &relayedRequest{target: target, done: make(chan relayResult, 1)}
	rec.timer = time.AfterFunc(r.timeout, func() {
		if r.settle(key, relayResult{err: connection.ErrRequestTimeout}) {
			r.log.Debug("relayed request timed out", zap.String("key", key))
			if r.metrics != nil {
				r.metrics.RequestTimeouts.Inc()
			}
		}
	})
	r.pending[key] = rec
	return key, rec
}

func (r *Relay) settle(key string, res relayResult) bool {
	return r.settleFrom(key, "", res)
}

// settleFrom completes the request under key. A non-empty from must be the
// peer the request was forwarded to.
func (r *Relay) settleFrom(key, from string, res relayResult) bool {
	r.mu.Lock()
	rec, ok := r.pending[key]
	if ok && from != "" && rec.target != from {
		ok = false
	}
	if ok {
		delete(r.pending, key)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	rec.timer.Stop()
	rec.done <- res
	return true
}

// PushResponse completes the relayed request the response belongs to. Only
// the peer the request was forwarded to can answer it; responses from anyone
// else are dropped. It returns false for ids the relay did not issue.
func (r *Relay) PushResponse(from string, resp *protocol.Message) bool {
	if !strings.HasPrefix(resp.ID, relayKeyPrefix) {
		return false
	}
	if !r.settleFrom(resp.ID, from, relayResult{msg: resp}) {
		r.log.Debug("unmatched relayed response dropped", zap.String("key", resp.ID), zap.String("from", from))
	}
	return true
}

// SendNotification forwards msg to target
func (r *Relay) SendNotification(target Target, msg *protocol.Message) error {
	return target.Forward(msg)
}

// SendBroadcast forwards msg to every target except origin. Encrypted
// broadcasts are narrowed to the recipient's own wrapped key; targets the
// sender did not encrypt for are skipped. It returns the number of targets
// written to.
func (r *Relay) SendBroadcast(origin string, targets []Target, msg *protocol.Message) int {
	sent := 0
	for _, t := range targets {
		if t.ID() == origin {
			continue
		}
		out, ok := msg.ForRecipient(t.ID())
		if !ok {
			r.log.Debug("broadcast not encrypted for peer", zap.String("peer", t.ID()), zap.String("origin", origin))
			continue
		}
		if err := t.Forward(out); err != nil {
			r.log.Debug("broadcast forward failed", zap.String("peer", t.ID()), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// PendingCount reports how many relayed requests await a response
func (r *Relay) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
