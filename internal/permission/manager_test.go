package permission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizgrow/internal/model"
	"bizgrow/internal/session"
)

type memStore struct {
	mu    sync.Mutex
	state map[string]session.Permission
	err   error
}

func (m *memStore) Load(_ context.Context, u, d string) (session.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if p, ok := m.state[Key(u, d)]; ok {
		return p, nil
	}
	return session.PermissionDefault, nil
}

func (m *memStore) Save(_ context.Context, u, d string, p session.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.state == nil {
		m.state = map[string]session.Permission{}
	}
	m.state[Key(u, d)] = p
	return nil
}

type memSubs struct {
	upserts []model.PushSubscription
	deleted int
	err     error
}

func (m *memSubs) Upsert(_ context.Context, _, _ string, sub model.PushSubscription) error {
	if m.err != nil {
		return m.err
	}
	m.upserts = append(m.upserts, sub)
	return nil
}

func (m *memSubs) DeleteDevice(context.Context, string, string) (int64, error) {
	m.deleted++
	return int64(len(m.upserts)), nil
}

type toastLog struct{ toasts []model.Toast }

func (t *toastLog) Toast(_ context.Context, _ *session.Session, toast model.Toast) {
	t.toasts = append(t.toasts, toast)
}

type presentLog struct{ msgs []model.Message }

func (p *presentLog) Present(_ context.Context, _ *session.Session, m model.Message) {
	p.msgs = append(p.msgs, m)
}

var sub = &model.PushSubscription{
	Endpoint: "https://push.example/abc",
	Keys:     model.PushKeys{P256dh: "key", Auth: "secret"},
}

type fixture struct {
	store  *memStore
	subs   *memSubs
	toasts *toastLog
	shown  *presentLog
	m      *Manager
}

func newFixture() *fixture {
	f := &fixture{store: &memStore{}, subs: &memSubs{}, toasts: &toastLog{}, shown: &presentLog{}}
	f.m = NewManager(f.store, f.subs, f.toasts, f.shown, zap.NewNop())
	return f
}

func TestRequest_Grant(t *testing.T) {
	f := newFixture()
	s := session.New("u1", "d1", session.PermissionDefault)

	res, err := f.m.Request(context.Background(), s, session.PermissionGranted, sub)
	require.NoError(t, err)
	assert.Equal(t, session.PermissionGranted, res.Permission)
	assert.Equal(t, session.PermissionGranted, s.Permission())
	require.NotNil(t, res.Toast)
	assert.Equal(t, "Notifications enabled!", res.Toast.Title)
	assert.Len(t, f.subs.upserts, 1)
	assert.Len(t, f.toasts.toasts, 1)
	assert.Equal(t, session.PermissionGranted, f.m.Load(context.Background(), "u1", "d1"))

	// 重复授权只刷新订阅，不再提示
	res, err = f.m.Request(context.Background(), s, session.PermissionGranted, sub)
	require.NoError(t, err)
	assert.Nil(t, res.Toast)
	assert.Len(t, f.subs.upserts, 2)
	assert.Len(t, f.toasts.toasts, 1)
}

func TestRequest_GrantSurvivesSubscriptionFailure(t *testing.T) {
	f := newFixture()
	f.subs.err = errors.New("insert failed")
	s := session.New("u1", "d1", session.PermissionDefault)

	res, err := f.m.Request(context.Background(), s, session.PermissionGranted, sub)
	require.NoError(t, err)
	assert.Equal(t, session.PermissionGranted, res.Permission)
	assert.Equal(t, session.PermissionGranted, s.Permission())
}

func TestRequest_DenyIsTerminal(t *testing.T) {
	f := newFixture()
	s := session.New("u1", "d1", session.PermissionDefault)

	res, err := f.m.Request(context.Background(), s, session.PermissionDenied, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Toast)
	assert.Equal(t, "Permission denied", res.Toast.Title)
	assert.Equal(t, model.ToastVariantDestructive, res.Toast.Variant)

	for _, d := range []session.Permission{session.PermissionGranted, session.PermissionDenied} {
		res, err = f.m.Request(context.Background(), s, d, sub)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.Equal(t, session.PermissionDenied, res.Permission)
	}
	assert.Equal(t, session.PermissionDenied, s.Permission())
	assert.Len(t, f.toasts.toasts, 1, "denial is surfaced once")
	assert.Empty(t, f.subs.upserts)
}

func TestReset_AllowsFreshRequest(t *testing.T) {
	f := newFixture()
	s := session.New("u1", "d1", session.PermissionDenied)

	res, err := f.m.Reset(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, session.PermissionDefault, res.Permission)
	assert.Equal(t, 1, f.subs.deleted)

	res, err = f.m.Request(context.Background(), s, session.PermissionGranted, sub)
	require.NoError(t, err)
	assert.Equal(t, session.PermissionGranted, res.Permission)
}

func TestRequest_InvalidDecision(t *testing.T) {
	f := newFixture()
	_, err := f.m.Request(context.Background(), session.New("u1", "d1", ""), session.PermissionDefault, nil)
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestLoad_FallsBackToDefault(t *testing.T) {
	f := newFixture()
	f.store.err = errors.New("redis down")
	assert.Equal(t, session.PermissionDefault, f.m.Load(context.Background(), "u1", "d1"))
}

func TestSendTest(t *testing.T) {
	f := newFixture()
	s := session.New("u1", "d1", session.PermissionGranted)

	msg := f.m.SendTest(context.Background(), s)
	require.Len(t, f.shown.msgs, 1)
	assert.Equal(t, "Test Notification", msg.Title)
	assert.Equal(t, "This is a test push notification from SmartBizGrow!", msg.Body)
	assert.Equal(t, "test", msg.Tag)
	assert.Equal(t, "u1", msg.TargetUserID)
}
