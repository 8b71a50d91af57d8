package credentials

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPending      = errors.New("result not ready")
	ErrUnknownToken = errors.New("unknown or expired token")
	ErrSettled      = errors.New("already settled")
)

var randRead = rand.Read

type slot[T any] struct {
	scope   string
	done    chan struct{}
	value   T
	err     error
	settled bool
	expires time.Time
	timer   *time.Timer
}

// Polls is a table of one-shot result slots addressed by random tokens. A
// producer settles a slot once; a consumer waits on it in bounded rounds.
// Slots vanish on first delivery or when they expire.
type Polls[T any] struct {
	mu     sync.Mutex
	slots  map[string]*slot[T]
	expiry time.Duration
}

// NewPolls creates a table whose slots live for expiry
func NewPolls[T any](expiry time.Duration) *Polls[T] {
	return &Polls[T]{
		slots:  make(map[string]*slot[T]),
		expiry: expiry,
	}
}

// Open allocates a slot and returns its token and expiry time
func (p *Polls[T]) Open() (string, time.Time) {
	return p.OpenScoped("")
}

// OpenScoped allocates a slot that only WaitScoped with the same scope can
// reach
func (p *Polls[T]) OpenScoped(scope string) (string, time.Time) {
	token := uuid.NewString()
	s := &slot[T]{
		scope:   scope,
		done:    make(chan struct{}),
		expires: time.Now().Add(p.expiry),
	}

	p.mu.Lock()
	s.timer = time.AfterFunc(p.expiry, func() { p.expire(token) })
	p.slots[token] = s
	p.mu.Unlock()
	return token, s.expires
}

func (p *Polls[T]) expire(token string) {
	p.mu.Lock()
	s, ok := p.slots[token]
	if ok {
		delete(p.slots, token)
		if !s.settled {
			s.settled = true
			s.err = ErrExpired
			close(s.done)
		}
	}
	p.mu.Unlock()
}

// Resolve settles the slot with a value
func (p *Polls[T]) Resolve(token string, value T) error {
	return p.settle(token, value, nil)
}

// Reject settles the slot with an error
func (p *Polls[T]) Reject(token string, err error) error {
	var zero T
	return p.settle(token, zero, err)
}

func (p *Polls[T]) settle(token string, value T, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[token]
	if !ok {
		return ErrUnknownToken
	}
	if s.settled {
		return ErrSettled
	}
	s.settled = true
	s.value = value
	s.err = err
	close(s.done)
	return nil
}

// Wait blocks for up to maxWait for the slot to settle. It returns ErrPending
// when the round ends first, so the caller can poll again.
func (p *Polls[T]) Wait(ctx context.Context, token string, maxWait time.Duration) (T, error) {
	return p.WaitScoped(ctx, token, "", maxWait)
}

// WaitScoped is Wait for a slot opened with OpenScoped. A token presented
// under another scope is unknown.
func (p *Polls[T]) WaitScoped(ctx context.Context, token, scope string, maxWait time.Duration) (T, error) {
	var zero T

	p.mu.Lock()
	s, ok := p.slots[token]
	p.mu.Unlock()
	if !ok || s.scope != scope {
		return zero, ErrUnknownToken
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
		return zero, ErrPending
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	p.mu.Lock()
	if cur, ok := p.slots[token]; ok && cur == s {
		delete(p.slots, token)
		s.timer.Stop()
	}
	p.mu.Unlock()

	return s.value, s.err
}

// Len reports the number of live slots
func (p *Polls[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Close drops every slot
func (p *Polls[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for token, s := range p.slots {
		s.timer.Stop()
		delete(p.slots, token)
	}
}
