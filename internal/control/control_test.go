package control

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hightechgrace/media-streamer/internal/logging"
)

func TestHub_BroadcastsCountersToConnectedClient(t *testing.T) {
	hub := NewHub(logging.ForComponent("control-test"))
	go hub.Run()
	defer hub.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/ws", hub.HandleWS)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/debug/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// give the Hub a moment to register the client before publishing.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.PublishCounters(CountersSnapshot{SSRC: 1, Displayed: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(msg), `"type":"counters"`) {
		t.Fatalf("expected a counters event, got %s", msg)
	}
	if !strings.Contains(string(msg), `"ssrc":1`) {
		t.Fatalf("expected ssrc=1 in event, got %s", msg)
	}
}
