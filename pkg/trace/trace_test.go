package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	assert.Equal(t, "abc", FromContext(ctx))
	assert.Empty(t, FromContext(context.Background()))
}

func TestEnsureKeepsExisting(t *testing.T) {
	ctx := WithContext(context.Background(), "keep-me")
	_, id := Ensure(ctx)
	assert.Equal(t, "keep-me", id)

	ctx2, id2 := Ensure(context.Background())
	assert.Len(t, id2, 32)
	assert.Equal(t, id2, FromContext(ctx2))
}
