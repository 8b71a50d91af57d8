package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResumeCancelsFiredDisposal(t *testing.T) {
	p := &Peer{id: "p"}
	checking := make(chan struct{})
	proceed := make(chan struct{})
	disposed := make(chan struct{}, 1)

	p.scheduleDispose(time.Millisecond, func() bool {
		close(checking)
		<-proceed
		return false
	}, func() { disposed <- struct{}{} })

	// the timer has fired and is past its readiness check
	recv(t, checking)
	_, ok := p.resume(nil)
	assert.True(t, ok)
	close(proceed)

	quiet(t, disposed)
	assert.False(t, p.Disposed())
}

func TestScheduleDisposeFires(t *testing.T) {
	p := &Peer{id: "p"}
	disposed := make(chan struct{}, 1)
	p.scheduleDispose(time.Millisecond, nil, func() { disposed <- struct{}{} })

	recv(t, disposed)
	assert.True(t, p.Disposed())
	_, ok := p.resume(nil)
	assert.False(t, ok, "a disposed peer cannot resume")
}

func TestScheduleDisposeSkip(t *testing.T) {
	p := &Peer{id: "p"}
	disposed := make(chan struct{}, 1)
	p.scheduleDispose(0, func() bool { return true }, func() { disposed <- struct{}{} })

	quiet(t, disposed)
	assert.False(t, p.Disposed())
}

func TestRescheduleReplacesDisposal(t *testing.T) {
	p := &Peer{id: "p"}
	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	p.scheduleDispose(time.Hour, nil, func() { first <- struct{}{} })
	p.scheduleDispose(time.Millisecond, nil, func() { second <- struct{}{} })

	recv(t, second)
	quiet(t, first)
}
