package live

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedServer streams the given frames then waits for release before closing.
func feedServer(t *testing.T, frames []string, release <-chan struct{}) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		<-release
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSSource_ConnectValueDisconnect(t *testing.T) {
	release := make(chan struct{})
	srv := feedServer(t, []string{
		`{"type":"properties","data":[{"key":"F1:TEMP","live_value":812.5},{"key":"F1:SOAK","live_value":null}]}`,
		`{"type":"error","error":"remote hiccup"}`,
	}, release)
	defer srv.Close()

	src := NewWSSource(wsURL(srv), time.Hour, nil)
	temp, soak := NewCache("F1:TEMP"), NewCache("F1:SOAK")
	_, err := src.Subscribe("F1:TEMP", temp)
	require.NoError(t, err)
	_, err = src.Subscribe("F1:SOAK", soak)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		src.Run(ctx)
	}()

	require.Eventually(t, func() bool { return temp.Read() == 812.5 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, Awaiting, soak.State(), "null live value leaves the cache awaiting")

	close(release) // server hangs up
	require.Eventually(t, func() bool { return temp.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, math.IsNaN(temp.Read()))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWSSource_LateSubscriberConnectsImmediately(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := feedServer(t, nil, release)
	defer srv.Close()

	src := NewWSSource(wsURL(srv), 50*time.Millisecond, nil)
	first := NewCache("A:X")
	_, _ = src.Subscribe("A:X", first)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	require.Eventually(t, func() bool { return first.State() == Awaiting }, 2*time.Second, 10*time.Millisecond)

	late := NewCache("B:X")
	_, _ = src.Subscribe("B:X", late)
	assert.Equal(t, Awaiting, late.State())
}

func TestWSSource_DialFailureLeavesCachesDisconnected(t *testing.T) {
	src := NewWSSource("ws://127.0.0.1:1/ws", 10*time.Millisecond, nil)
	c := NewCache("A:X")
	_, err := src.Subscribe("A:X", c)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	src.Run(ctx)

	assert.Equal(t, Disconnected, c.State())
	assert.True(t, math.IsNaN(c.Read()))
}

func TestWSSource_SubscribeWithoutURL(t *testing.T) {
	_, err := NewWSSource("", 0, nil).Subscribe("A:X", NewCache("A:X"))
	require.ErrorIs(t, err, ErrNoFeedURL)
}
