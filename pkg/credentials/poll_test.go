package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollResolveThenWait(t *testing.T) {
	p := NewPolls[string](time.Minute)
	token, expires := p.Open()
	assert.True(t, expires.After(time.Now()))

	require.NoError(t, p.Resolve(token, "claim"))
	assert.ErrorIs(t, p.Resolve(token, "again"), ErrSettled)

	got, err := p.Wait(context.Background(), token, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "claim", got)

	// delivered once, then gone
	_, err = p.Wait(context.Background(), token, time.Second)
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.Equal(t, 0, p.Len())
}

func TestPollWaitPending(t *testing.T) {
	p := NewPolls[string](time.Minute)
	token, _ := p.Open()

	_, err := p.Wait(context.Background(), token, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrPending)
	assert.Equal(t, 1, p.Len())
}

func TestPollWaitWakesOnResolve(t *testing.T) {
	p := NewPolls[int](time.Minute)
	token, _ := p.Open()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = p.Resolve(token, 7)
	}()

	got, err := p.Wait(context.Background(), token, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestPollReject(t *testing.T) {
	p := NewPolls[string](time.Minute)
	token, _ := p.Open()
	boom := errors.New("boom")
	require.NoError(t, p.Reject(token, boom))

	_, err := p.Wait(context.Background(), token, time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestPollExpiry(t *testing.T) {
	p := NewPolls[string](30 * time.Millisecond)
	token, _ := p.Open()

	_, err := p.Wait(context.Background(), token, 5*time.Second)
	assert.ErrorIs(t, err, ErrExpired)

	assert.ErrorIs(t, p.Resolve(token, "late"), ErrUnknownToken)
	assert.Equal(t, 0, p.Len())
}

func TestPollUnknownToken(t *testing.T) {
	p := NewPolls[string](time.Minute)
	_, err := p.Wait(context.Background(), "nope", time.Millisecond)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestPollScope(t *testing.T) {
	p := NewPolls[string](time.Minute)
	token, _ := p.OpenScoped("room-1")
	require.NoError(t, p.Resolve(token, "claim"))

	_, err := p.WaitScoped(context.Background(), token, "room-2", time.Second)
	assert.ErrorIs(t, err, ErrUnknownToken)
	_, err = p.Wait(context.Background(), token, time.Second)
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.Equal(t, 1, p.Len(), "a wrong scope does not consume the slot")

	got, err := p.WaitScoped(context.Background(), token, "room-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "claim", got)
}
