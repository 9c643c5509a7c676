package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errSMTP = errors.New("421 service not available")

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "smtp", MaxFailures: 2})
	ctx := context.Background()

	calls := 0
	fail := func() error { calls++; return errSMTP }

	assert.ErrorIs(t, cb.Execute(ctx, fail), errSMTP)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errSMTP)
	assert.Equal(t, StateOpen, cb.GetState())

	assert.ErrorIs(t, cb.Execute(ctx, fail), ErrCircuitOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, cb.Rejected())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "smtp", MaxFailures: 2})
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errSMTP })
	_ = cb.Execute(ctx, func() error { return nil })
	_ = cb.Execute(ctx, func() error { return errSMTP })

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "smtp", MaxFailures: 1, Cooldown: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errSMTP })
	assert.Equal(t, StateOpen, cb.GetState())

	now = now.Add(time.Minute)
	assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Execute(ctx, func() error { return errSMTP })
	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errSMTP }), errSMTP)
	assert.Equal(t, StateOpen, cb.GetState(), "failed trial reopens")
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "smtp", MaxFailures: 0})
	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), func() error { return errSMTP })
	}
	assert.Equal(t, StateClosed, cb.GetState())
}
