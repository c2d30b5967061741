package feed

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

	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/store/memory"
)

var upgrader = websocket.Upgrader{}

// feedServer is a scripted WebSocket feed: it records the subscription frame
// and then plays the given frames before closing the connection.
func feedServer(t *testing.T, frames []string, gotSubscribe chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, sub, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case gotSubscribe <- string(sub):
		default:
		}

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Give the client a moment to consume before dropping the connection.
		time.Sleep(50 * time.Millisecond)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriber_IngestsMigrationEvents(t *testing.T) {
	gotSubscribe := make(chan string, 1)
	srv := feedServer(t, []string{
		`{"message":"Successfully subscribed to migration events"}`,
		`{"mint":"` + mint + `","pool":"58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"}`,
	}, gotSubscribe)
	defer srv.Close()

	repo := memory.New()
	sub := NewSubscriber(wsURL(srv), "subscribeMigration", repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	select {
	case frame := <-gotSubscribe:
		assert.JSONEq(t, `{"method":"subscribeMigration"}`, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription frame received")
	}

	require.Eventually(t, func() bool {
		token, err := repo.Get(ctx, mint)
		return err == nil && token.Status == domain.StatusMonitored
	}, 2*time.Second, 10*time.Millisecond, "token should be upserted as monitored")

	require.Eventually(t, func() bool {
		pools, err := repo.ListPools(ctx, mint, true)
		return err == nil && len(pools) == 1
	}, 2*time.Second, 10*time.Millisecond, "pool from the event should be upserted")

	token, err := repo.Get(ctx, mint)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), token.CreatedAt, 5*time.Second)
}

func TestSubscriber_ReconnectsAfterClose(t *testing.T) {
	gotSubscribe := make(chan string, 4)
	srv := feedServer(t, []string{`{"mint":"` + mint + `"}`}, gotSubscribe)
	defer srv.Close()

	repo := memory.New()
	sub := NewSubscriber(wsURL(srv), "subscribeMigration", repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	// The scripted server drops every connection after playing its frames,
	// so observing two subscription frames proves a reconnect happened.
	for i := 0; i < 2; i++ {
		select {
		case <-gotSubscribe:
		case <-time.After(5 * time.Second):
			t.Fatalf("connection %d never subscribed", i+1)
		}
	}
}

func TestSubscriber_CancelStopsRun(t *testing.T) {
	gotSubscribe := make(chan string, 1)
	srv := feedServer(t, nil, gotSubscribe)
	defer srv.Close()

	repo := memory.New()
	sub := NewSubscriber(wsURL(srv), "subscribeMigration", repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	select {
	case <-gotSubscribe:
	case <-time.After(2 * time.Second):
		t.Fatal("never connected")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestSubscriber_SendsKeepalivePings(t *testing.T) {
	gotPing := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil { // subscription frame
			return
		}
		conn.SetPingHandler(func(string) error {
			select {
			case gotPing <- struct{}{}:
			default:
			}
			return nil
		})
		// Stay silent; control frames are processed by the read loop.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	repo := memory.New()
	sub := NewSubscriber(wsURL(srv), "subscribeMigration", repo, nil)
	sub.pingEvery = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	select {
	case <-gotPing:
	case <-time.After(2 * time.Second):
		t.Fatal("client never pinged an idle connection")
	}
}

func TestBackoff_Bounded(t *testing.T) {
	for attempt := 1; attempt <= 12; attempt++ {
		d := backoff(attempt)
		assert.GreaterOrEqual(t, d, reconnectBase)
		assert.LessOrEqual(t, d, reconnectCap+reconnectJitter)
	}
	// Early attempts follow the doubling schedule (modulo jitter).
	assert.Less(t, backoff(1), 1*time.Second+reconnectJitter)
	assert.GreaterOrEqual(t, backoff(3), 4*time.Second)
}
