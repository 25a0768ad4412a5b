package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type remoteErr struct{ transient bool }

func (e remoteErr) Error() string   { return "remote" }
func (e remoteErr) Retryable() bool { return e.transient }

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error
	syntaxErr = json.Unmarshal([]byte("{"), &struct{}{})

	cases := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"remote transient", fmt.Errorf("send: %w", remoteErr{transient: true}), true, "remote_transient"},
		{"remote permanent", remoteErr{}, false, "remote_permanent"},
		{"json", syntaxErr, false, "json_decode_error"},
		{"no rows", fmt.Errorf("lookup: %w", pgx.ErrNoRows), false, "row_not_found"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, kind := IsRetryableError(tc.err)
			assert.Equal(t, tc.retryable, retryable)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-1", "secret", time.Minute)
	require.NoError(t, err)

	uid, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)

	expired, err := GenerateJWT("user-1", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?access_token=qs", nil)
	assert.Equal(t, "qs", ExtractToken(r))

	r.Header.Set("Authorization", "Bearer hdr")
	assert.Equal(t, "hdr", ExtractToken(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", ExtractToken(r))
}
