package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"driverassist/internal/ride"
	"driverassist/internal/voice"
)

const (
	readLimit     = 1 << 16
	readDeadline  = 120 * time.Second
	writeDeadline = 5 * time.Second
	pingInterval  = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type stateEvent struct {
	Type  string         `json:"type"`
	Ride  *ride.Snapshot `json:"ride,omitempty"`
	Voice *voice.Status  `json:"voice,omitempty"`
}

// StateHub pushes ride and voice state changes to connected clients. All
// operations on clients happen in the Run loop.
type StateHub struct {
	errorLog   *log.Logger
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan stateEvent

	lastRide  *ride.Snapshot
	lastVoice *voice.Status
}

func NewStateHub(errorLog *log.Logger) *StateHub {
	return &StateHub{
		errorLog:   errorLog,
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan stateEvent, 64),
	}
}

// BroadcastRide queues a ride snapshot for delivery. Never blocks the caller;
// a full queue drops the event since a fresher one follows.
func (h *StateHub) BroadcastRide(s ride.Snapshot) {
	select {
	case h.broadcast <- stateEvent{Type: "ride", Ride: &s}:
	default:
	}
}

// BroadcastVoice queues a voice status for delivery.
func (h *StateHub) BroadcastVoice(s voice.Status) {
	select {
	case h.broadcast <- stateEvent{Type: "voice", Voice: &s}:
	default:
	}
}

// Run owns the client set until ctx is cancelled.
func (h *StateHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				_ = conn.Close()
			}
			return
		case conn := <-h.register:
			h.clients[conn] = struct{}{}
			// a new client gets the current state right away
			if h.lastRide != nil {
				h.send(conn, stateEvent{Type: "ride", Ride: h.lastRide})
			}
			if h.lastVoice != nil {
				h.send(conn, stateEvent{Type: "voice", Voice: h.lastVoice})
			}
		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				_ = conn.Close()
				delete(h.clients, conn)
			}
		case event := <-h.broadcast:
			switch event.Type {
			case "ride":
				h.lastRide = event.Ride
			case "voice":
				h.lastVoice = event.Voice
			}
			for conn := range h.clients {
				if !h.send(conn, event) {
					_ = conn.Close()
					delete(h.clients, conn)
				}
			}
		}
	}
}

func (h *StateHub) send(conn *websocket.Conn, event stateEvent) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(event); err != nil {
		h.errorLog.Printf("state ws write: %v", err)
		return false
	}
	return true
}

func (app *application) stateWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.errorLog.Printf("state ws upgrade: %v", err)
		return
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	app.stateHub.register <- conn

	go app.stateHub.pingLoop(conn)
	go app.stateHub.readLoop(conn)
}

func (h *StateHub) pingLoop(conn *websocket.Conn) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for range t.C {
		_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			h.unregister <- conn
			return
		}
	}
}

// readLoop drains the connection; the feed is one-way, so anything beyond
// pongs just keeps the read deadline alive until the client goes away.
func (h *StateHub) readLoop(conn *websocket.Conn) {
	defer func() { h.unregister <- conn }()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
