package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu       sync.Mutex
	listened []string
	notes    chan *pgconn.Notification
	broken   chan struct{}
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		notes:  make(chan *pgconn.Notification, 16),
		broken: make(chan struct{}),
	}
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listened = append(c.listened, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case n := <-c.notes:
		return n, nil
	case <-c.broken:
		return nil, errors.New("conn reset by peer")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeConn
	ready chan *fakeConn
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{ready: make(chan *fakeConn, 4)}
}

func (f *fakeConnector) connect(context.Context) (ListenConn, error) {
	c := newFakeConn()
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	f.ready <- c
	return c, nil
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestListener_FansOutToSubscribersInOrder(t *testing.T) {
	fc := newFakeConnector()
	l := NewListener(fc.connect, zap.NewNop(), "transactions", "community_posts")

	a, err := l.Subscribe("transactions")
	require.NoError(t, err)
	b, err := l.Subscribe("transactions")
	require.NoError(t, err)
	other, err := l.Subscribe("community_posts")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	conn := <-fc.ready
	conn.notes <- &pgconn.Notification{Channel: "transactions", Payload: "1"}
	conn.notes <- &pgconn.Notification{Channel: "transactions", Payload: "2"}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()

	for _, s := range []*Stream{a, b} {
		n, ok := s.Next(waitCtx)
		require.True(t, ok)
		assert.Equal(t, "1", n.Payload)
		n, ok = s.Next(waitCtx)
		require.True(t, ok)
		assert.Equal(t, "2", n.Payload)
	}

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	_, ok := other.Next(shortCtx)
	assert.False(t, ok, "posts subscriber must not see transaction events")

	conn.mu.Lock()
	assert.Len(t, conn.listened, 2)
	conn.mu.Unlock()

	cancel()
	<-done
	a.Close()
	b.Close()
	other.Close()
}

func TestListener_ReconnectsAfterConnectionLoss(t *testing.T) {
	fc := newFakeConnector()
	l := NewListener(fc.connect, zap.NewNop(), "community_likes").
		WithBackoff(time.Millisecond, 5*time.Millisecond)

	s, err := l.Subscribe("community_likes")
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	first := <-fc.ready
	close(first.broken)

	second := <-fc.ready
	second.notes <- &pgconn.Notification{Channel: "community_likes", Payload: "after-reconnect"}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	n, ok := s.Next(waitCtx)
	require.True(t, ok)
	assert.Equal(t, "after-reconnect", n.Payload)

	first.mu.Lock()
	assert.True(t, first.closed)
	first.mu.Unlock()

	cancel()
	<-done
}

func TestListener_SubscribeUnknownChannel(t *testing.T) {
	l := NewListener(newFakeConnector().connect, zap.NewNop(), "transactions")
	_, err := l.Subscribe("profiles")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestStream_CloseStopsIterationAndUnregisters(t *testing.T) {
	l := NewListener(newFakeConnector().connect, zap.NewNop(), "transactions")
	s, err := l.Subscribe("transactions")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Subscribers("transactions"))

	l.dispatch(Notification{Channel: "transactions", Payload: "x"})

	var got []string
	for n := range s.All(context.Background()) {
		got = append(got, n.Payload)
		s.Close()
	}
	assert.Equal(t, []string{"x"}, got)
	assert.Equal(t, 0, l.Subscribers("transactions"))

	s.Close()
}
