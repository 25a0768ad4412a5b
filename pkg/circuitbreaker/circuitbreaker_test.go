package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterThresholdAndRecovers(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	cb := NewWithClock(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Second, HalfOpenMaxRequests: 1}, c.now)

	fail := func() error { return errBoom }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	c.advance(time.Second)
	assert.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	cb := NewWithClock(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second, HalfOpenMaxRequests: 1}, c.now)

	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())

	c.advance(time.Second)
	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute, HalfOpenMaxRequests: 1})
	errClient := errors.New("bad request")

	err := cb.Execute(func() error { return errClient }, func(err error) bool { return errors.Is(err, errClient) })
	assert.ErrorIs(t, err, errClient)
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "half_open", StateHalfOpen.String())
	cb := New(DefaultConfig())
	cb.Reset()
	assert.Equal(t, "closed", cb.State().String())
}
