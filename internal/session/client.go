package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/usamanadeem786/iiagentd/internal/event"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// wsSender wraps one client's websocket connection. It serializes writes
// behind a mutex because both the event bus's drain worker (publishing
// RealtimeEvents) and the connection's own ping ticker write to the same
// socket, and gorilla/websocket connections are not safe for concurrent
// writers. Implements eventbus.ClientSender.
type wsSender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSSender(conn *websocket.Conn) *wsSender {
	return &wsSender{conn: conn}
}

// Send implements eventbus.ClientSender.
func (w *wsSender) Send(e event.RealtimeEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(e)
}

func (w *wsSender) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *wsSender) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.conn.Close()
}

// readPump blocks reading frames off the connection and invokes handle for
// each. Returns when a read fails (including the connection closing) or
// handle returns false.
// Mirrors kubilitics-backend's Client.ReadPump pong/deadline bookkeeping.
func readPump(conn *websocket.Conn, handle func(InboundFrame) bool) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame InboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if !handle(frame) {
			return
		}
	}
}

// pingLoop sends periodic pings until stop is closed, restoring the
// "keep the connection alive across idle periods" half of the read/write
// pump split.
func pingLoop(sender *wsSender, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := sender.ping(); err != nil {
				return
			}
		}
	}
}
