package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermission(t *testing.T) {
	assert.Equal(t, PermissionGranted, ParsePermission("granted"))
	assert.Equal(t, PermissionDenied, ParsePermission("denied"))
	assert.Equal(t, PermissionDefault, ParsePermission("default"))
	assert.Equal(t, PermissionDefault, ParsePermission("prompt"))
}

func TestSession_CompareAndSetPermission(t *testing.T) {
	s := New("u1", "d1", "")
	assert.Equal(t, PermissionDefault, s.Permission())

	assert.True(t, s.CompareAndSetPermission(PermissionDefault, PermissionDenied))
	assert.False(t, s.CompareAndSetPermission(PermissionDefault, PermissionGranted))
	assert.Equal(t, PermissionDenied, s.Permission())
}

func TestRegistry_SharesSessionAcrossTabs(t *testing.T) {
	r := NewRegistry()
	created := 0
	create := func() *Session {
		created++
		return New("u1", "d1", PermissionDefault)
	}

	a, releaseA := r.Attach("u1", "d1", create)
	b, releaseB := r.Attach("u1", "d1", create)
	require.Same(t, a, b)
	assert.Equal(t, 1, created)

	releaseA()
	releaseA()
	_, ok := r.Get("u1", "d1")
	assert.True(t, ok, "second tab still holds the session")

	releaseB()
	_, ok = r.Get("u1", "d1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_StartsOneWorkerPerSession(t *testing.T) {
	starts, stops := 0, 0
	r := NewRegistry(WithStarter(func(*Session) func() {
		starts++
		return func() { stops++ }
	}))
	create := func() *Session { return New("u1", "d1", PermissionDefault) }

	_, releaseA := r.Attach("u1", "d1", create)
	_, releaseB := r.Attach("u1", "d1", create)
	assert.Equal(t, 1, starts)

	releaseA()
	assert.Equal(t, 0, stops, "worker keeps running while a tab is open")
	releaseB()
	assert.Equal(t, 1, stops)

	_, releaseC := r.Attach("u1", "d1", create)
	assert.Equal(t, 2, starts, "a fresh session gets a fresh worker")
	releaseC()
	assert.Equal(t, 2, stops)
}
