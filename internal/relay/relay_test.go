package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	dbcontracts "bizgrow/contracts/db"
	"bizgrow/internal/changefeed"
	"bizgrow/internal/classifier"
	"bizgrow/internal/model"
	"bizgrow/internal/session"
	"bizgrow/pkg/db"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chanStream struct {
	notes chan db.Notification
	done  chan struct{}
	once  sync.Once
}

func (c *chanStream) Next(ctx context.Context) (db.Notification, bool) {
	select {
	case n := <-c.notes:
		return n, true
	case <-c.done:
		return db.Notification{}, false
	case <-ctx.Done():
		return db.Notification{}, false
	}
}

func (c *chanStream) Close() { c.once.Do(func() { close(c.done) }) }

type source struct {
	mu      sync.Mutex
	streams map[string]*chanStream
	opened  chan string
}

func newSource() *source {
	return &source{streams: map[string]*chanStream{}, opened: make(chan string, 8)}
}

func (s *source) Subscribe(channel string) (changefeed.Stream, error) {
	st := &chanStream{notes: make(chan db.Notification, 8), done: make(chan struct{})}
	s.mu.Lock()
	s.streams[channel] = st
	s.mu.Unlock()
	s.opened <- channel
	return st, nil
}

func (s *source) send(channel, payload string) {
	s.mu.Lock()
	st := s.streams[channel]
	s.mu.Unlock()
	st.notes <- db.Notification{Channel: channel, Payload: payload, ReceivedAt: time.Now()}
}

func (s *source) closed(channel string) bool {
	s.mu.Lock()
	st := s.streams[channel]
	s.mu.Unlock()
	select {
	case <-st.done:
		return true
	default:
		return false
	}
}

type posts map[string]*dbcontracts.CommunityPost

func (p posts) GetPost(_ context.Context, id string) (*dbcontracts.CommunityPost, error) {
	if post, ok := p[id]; ok {
		return post, nil
	}
	return nil, context.DeadlineExceeded
}

type presented struct {
	ch chan model.Message
}

func (p presented) Present(_ context.Context, _ *session.Session, m model.Message) {
	p.ch <- m
}

func TestRelay_PresentsRelevantEventsAndClosesOnTeardown(t *testing.T) {
	src := newSource()
	sub := changefeed.NewSubscriber(src, zap.NewNop())
	cls := classifier.New(posts{"p1": {ID: "p1", UserID: "u1", Title: "Latte art"}}, "", zap.NewNop())
	out := presented{ch: make(chan model.Message, 8)}
	r := New(sub, cls, out, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, session.New("u1", "d1", session.PermissionGranted))
	}()
	for range changefeed.Tables {
		<-src.opened
	}

	src.send(changefeed.TableTransactions, `{"table":"transactions","operation":"INSERT","new_row":{"user_id":"u2","amount":10}}`)
	src.send(changefeed.TableTransactions, `{"table":"transactions","operation":"INSERT","new_row":{"user_id":"u1","amount":299}}`)
	src.send(changefeed.TablePosts, `{"table":"community_posts","operation":"INSERT","new_row":{"user_id":"u2","title":"Sale!"}}`)
	src.send(changefeed.TableLikes, `{"table":"community_likes","operation":"INSERT","new_row":{"post_id":"p1","user_id":"u3"}}`)

	got := map[string]model.Message{}
	timeout := time.After(time.Second)
	for len(got) < 3 {
		select {
		case m := <-out.ch:
			got[m.Tag] = m
		case <-timeout:
			t.Fatalf("only presented %d messages", len(got))
		}
	}
	assert.Equal(t, "Transaction of ₹299 completed successfully", got[classifier.TagPayment].Body)
	assert.Equal(t, `New post: "Sale!"`, got[classifier.TagPost].Body)
	assert.Equal(t, `Someone liked your post: "Latte art"`, got[classifier.TagLike].Body)

	cancel()
	require.NoError(t, <-done)
	for _, table := range changefeed.Tables {
		assert.True(t, src.closed(table), "%s subscription must be closed", table)
	}
	assert.Empty(t, out.ch)
}

type failingSource struct{ *source }

func (f failingSource) Subscribe(channel string) (changefeed.Stream, error) {
	if channel == changefeed.TableTransactions {
		return nil, assert.AnError
	}
	return f.source.Subscribe(channel)
}

func TestRelay_ClosesOpenedSubscriptionsWhenOpenFails(t *testing.T) {
	src := newSource()
	sub := changefeed.NewSubscriber(failingSource{src}, zap.NewNop())
	r := New(sub, classifier.New(posts{}, "", zap.NewNop()), presented{ch: make(chan model.Message, 1)}, zap.NewNop())

	err := r.Run(context.Background(), session.New("u1", "d1", session.PermissionDefault))
	require.ErrorIs(t, err, assert.AnError)
	assert.True(t, src.closed(changefeed.TableLikes))
	assert.True(t, src.closed(changefeed.TablePosts))
}

// blockingPosts 在查询中阻塞，直到 release 关闭
type blockingPosts struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingPosts) GetPost(_ context.Context, id string) (*dbcontracts.CommunityPost, error) {
	close(b.started)
	<-b.release
	return &dbcontracts.CommunityPost{ID: id, UserID: "u1", Title: "Latte art"}, nil
}

func TestRelay_DiscardsLookupThatFinishesAfterTeardown(t *testing.T) {
	src := newSource()
	lookup := blockingPosts{started: make(chan struct{}), release: make(chan struct{})}
	out := presented{ch: make(chan model.Message, 1)}
	r := New(changefeed.NewSubscriber(src, zap.NewNop()), classifier.New(lookup, "", zap.NewNop()), out, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, session.New("u1", "d1", session.PermissionGranted))
	}()
	for range changefeed.Tables {
		<-src.opened
	}

	src.send(changefeed.TableLikes, `{"table":"community_likes","operation":"INSERT","new_row":{"post_id":"p1","user_id":"u3"}}`)
	<-lookup.started

	cancel()
	select {
	case <-done:
		t.Fatal("Run must wait for the in-flight lookup")
	case <-time.After(20 * time.Millisecond):
	}

	close(lookup.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the lookup completed")
	}
	assert.Empty(t, out.ch, "a result that arrives after teardown must not be presented")
}
