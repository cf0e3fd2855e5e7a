package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/codether/codether/internal/hub"
)

// Tunables for the WebSocket connection lifecycle. Pongs must arrive
// within pongWait or the reader gives up; pings go out a little more
// often than that.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// WSHandler upgrades HTTP requests into collaboration sessions.
//
// PROTOCOL:
// The client connects to GET /api/snippets/{shortId}/ws and speaks JSON
// frames. The first frame must be a join:
//
//	{"event": "join", "viewSecret": "..."}
//
// after which the server replies with a snapshot and the client may send
// edits:
//
//	{"event": "edit", "editSecret": "...", "content": "..."}
//
// Every server frame is a hub.Event: snapshot, update, or error.
type WSHandler struct {
	hub      *hub.Hub
	maxBytes int64
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(h *hub.Hub, maxBytes int64, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:      h,
		maxBytes: maxBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The API is secret-gated, not origin-gated. Browsers embedding
			// the editor from another host is a supported use.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// clientMessage is every frame a client may send.
type clientMessage struct {
	Event      string `json:"event"`
	ViewSecret string `json:"viewSecret,omitempty"`
	EditSecret string `json:"editSecret,omitempty"`
	Content    string `json:"content,omitempty"`
}

// wsConn adapts a websocket connection to hub.Conn. Send never blocks:
// events go into a buffered channel drained by writePump, and a consumer
// too slow to keep up is dropped rather than allowed to stall a broadcast.
//
// Closing send is the shutdown signal. A closed buffered channel still
// delivers everything in flight, so writePump flushes the remaining events
// (a join-error frame, typically) before closing the socket.
type wsConn struct {
	ws     *websocket.Conn
	send   chan hub.Event
	logger *slog.Logger
}

func (c *wsConn) Send(ev hub.Event) {
	select {
	case c.send <- ev:
	default:
		// Buffer full. Closing the socket wakes both pumps and the
		// client can reconnect for a fresh snapshot.
		c.logger.Warn("dropping slow websocket consumer")
		c.ws.Close()
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWS runs one collaboration session: upgrade, join, then relay
// edits until the client disconnects.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	shortID := chi.URLParam(r, "shortId")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := &wsConn{
		ws:     ws,
		send:   make(chan hub.Event, sendBuffer),
		logger: h.logger,
	}
	go conn.writePump()

	defer func() {
		h.hub.Leave(shortID, conn)
		// Once Leave returns no broadcast can reach this connection, so
		// closing send is safe. writePump drains the buffer and closes
		// the socket.
		close(conn.send)
	}()

	// Same escaping headroom as the HTTP body cap: an edit frame carrying
	// content at the size limit can inflate several times over on the wire.
	ws.SetReadLimit(h.maxBytes*escapedOverhead + 64*1024)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// First frame must join the room; the hub sends the snapshot (or an
	// error event) itself.
	first, err := readMessage(ws)
	if err != nil {
		return
	}
	if first.Event != "join" {
		conn.Send(hub.Event{Type: "error", ShortID: shortID, Code: "VALIDATION_FAILED",
			Message: "first message must be a join"})
		return
	}
	if err := h.hub.Join(r.Context(), shortID, first.ViewSecret, conn); err != nil {
		// The hub already queued the error event; the deferred close
		// drains it to the client before the socket shuts.
		return
	}

	for {
		msg, err := readMessage(ws)
		if err != nil {
			return
		}
		switch msg.Event {
		case "edit":
			// Errors are relayed to the editor by the hub; the session
			// survives a rejected edit.
			_ = h.hub.Edit(context.Background(), shortID, msg.EditSecret, msg.Content, conn)
		case "join":
			// Membership is a set, so a repeat join is harmless; it just
			// re-verifies the secret and refreshes the snapshot.
			_ = h.hub.Join(r.Context(), shortID, msg.ViewSecret, conn)
		default:
			conn.Send(hub.Event{Type: "error", ShortID: shortID, Code: "VALIDATION_FAILED",
				Message: "unknown event " + msg.Event})
		}
	}
}

func readMessage(ws *websocket.Conn) (*clientMessage, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return &clientMessage{Event: "invalid"}, nil
	}
	return &msg, nil
}
