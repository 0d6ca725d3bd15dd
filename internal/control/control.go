// Package control is a debug/observability surface: a websocket Hub that
// pushes per-participant counter snapshots and descriptor-reconfiguration
// events to connected clients. It is not part of the media data path.
// The Hub/Client/Register/Unregister/Broadcast shape, and the
// ReadPump/WritePump goroutine split, are adapted from
// n0remac-robot-webrtc/websocket/websocket.go; this engine needs no
// per-room fan-out, so the single-room Hub keeps one flat client set
// instead of the teacher's Rooms map.
package control

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pion/logging"
)

// EventType names the kinds of events pushed over the control channel.
type EventType string

const (
	// EventCounters carries a CountersSnapshot (spec.md §7 counters).
	EventCounters EventType = "counters"
	// EventReconfigure carries a ReconfigureEvent (spec.md §4.7 VideoDesc
	// change).
	EventReconfigure EventType = "reconfigure"
)

// Event is the envelope written to every connected client.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// CountersSnapshot mirrors internal/participant.Counters for one SSRC.
type CountersSnapshot struct {
	SSRC      uint32 `json:"ssrc"`
	Displayed uint64 `json:"displayed"`
	Dropped   uint64 `json:"dropped"`
	Corrupted uint64 `json:"corrupted"`
}

// ReconfigureEvent reports a participant's negotiated video descriptor
// changing mid-stream.
type ReconfigureEvent struct {
	SSRC   uint32 `json:"ssrc"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FourCC uint32 `json:"fourcc"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans Events out to every connected debug client.
type Hub struct {
	log logging.LeveledLogger

	mu      sync.Mutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan Event

	stop chan struct{}
}

// NewHub creates a Hub. Call Run in its own goroutine before serving
// HandleWS requests.
func NewHub(log logging.LeveledLogger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 64),
		stop:       make(chan struct{}),
	}
}

// Run is the Hub's single dispatch loop; it owns the client set so every
// membership change and broadcast is serialized through one goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]struct{})
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.Errorf("control: marshal event: %v", err)
				continue
			}
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop shuts down the dispatch loop and disconnects every client.
func (h *Hub) Stop() { close(h.stop) }

// Publish queues ev for broadcast to every connected client. Safe to call
// from any goroutine, including the participant pipeline's callbacks.
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.log.Warnf("control: broadcast channel full, dropping %s event", ev.Type)
	}
}

// PublishCounters is a convenience wrapper for EventCounters.
func (h *Hub) PublishCounters(s CountersSnapshot) {
	h.Publish(Event{Type: EventCounters, Data: s})
}

// PublishReconfigure is a convenience wrapper for EventReconfigure.
func (h *Hub) PublishReconfigure(e ReconfigureEvent) {
	h.Publish(Event{Type: EventReconfigure, Data: e})
}

// HandleWS upgrades r into a debug client and blocks until it disconnects.
// Wire it into an http.ServeMux with mux.HandleFunc("/debug/ws", hub.HandleWS).
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("control: upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 32)}
	h.register <- c
	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound messages (the control channel is currently
// one-directional) but must run to surface disconnects: the first failed
// read unregisters the client and closes its connection.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
