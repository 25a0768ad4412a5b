package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"bizgrow/internal/model"
	"bizgrow/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func serve(t *testing.T, h *Hub, key string) (*httptest.Server, chan struct{}) {
	t.Helper()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(key, conn, zap.NewNop())
		h.Register(c)
		defer close(done)
		defer h.Unregister(c)
		c.Serve(context.Background())
	}))
	return srv, done
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func TestHub_DeliversToastToSessionConnections(t *testing.T) {
	h := New(zap.NewNop())
	s := session.New("u1", "d1", session.PermissionDefault)
	srv, done := serve(t, h, s.Key())
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return h.IsConnected(s.Key()) }, time.Second, 5*time.Millisecond)

	h.Toast(context.Background(), s, model.Toast{Title: "Payment Confirmed!", Body: "Transaction of ₹299 completed successfully", Tag: "payment"})
	h.Toast(context.Background(), session.New("u2", "d1", ""), model.Toast{Title: "not for u1"})

	var f struct {
		Type string      `json:"type"`
		Data model.Toast `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, FrameToast, f.Type)
	assert.Equal(t, "Payment Confirmed!", f.Data.Title)
	assert.Equal(t, "payment", f.Data.Tag)

	require.NoError(t, conn.Close())
	<-done
	assert.False(t, h.IsConnected(s.Key()))
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_SendWithoutClients(t *testing.T) {
	h := New(zap.NewNop())
	assert.Equal(t, 0, h.Send("u1:d1", Frame{Type: FrameToast}))
}
