package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	dbcontracts "bizgrow/contracts/db"
	"bizgrow/internal/handler"
	"bizgrow/pkg/util"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type emptyInbox struct{ userID string }

func (e *emptyInbox) ListByUser(_ context.Context, userID string, _ int) ([]dbcontracts.Notification, error) {
	e.userID = userID
	return nil, nil
}

func (e *emptyInbox) MarkAsRead(context.Context, string, int64) (bool, error) { return false, nil }

func newTestRouter(db Pinger, inbox handler.Inbox) *Router {
	return NewRouter(Handlers{
		Notifications: handler.NewNotificationHandler(inbox, zap.NewNop()),
	}, db, secret)
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(pinger{}, &emptyInbox{})

	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	r = newTestRouter(pinger{err: errors.New("connection refused")}, &emptyInbox{})
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(pinger{}, &emptyInbox{})
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_Auth(t *testing.T) {
	inbox := &emptyInbox{}
	r := newTestRouter(pinger{}, inbox)

	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := util.GenerateJWT("user-42", secret, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", inbox.userID)

	req = httptest.NewRequest(http.MethodGet, "/notifications?access_token="+token, nil)
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(pinger{}, &emptyInbox{})

	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/functions/analyze-sentiment", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", w.Header().Get("Access-Control-Allow-Headers"))
}
