// Package hub maps short ids to rooms of live viewer connections and
// propagates edits to everyone watching a snippet.
//
// The hub is transport-free: a connection is anything that can accept an
// Event. The WebSocket adapter in internal/handler implements Conn on top
// of gorilla/websocket, and the tests implement it with a channel. Rooms
// exist implicitly — the first join creates the bookkeeping entry, and an
// empty room is just an empty map entry, harmless to leave around.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/codether/codether/internal/apperror"
	"github.com/codether/codether/internal/service"
)

// Event is one message delivered to a connection.
type Event struct {
	Type      string     `json:"event"` // "snapshot", "update", or "error"
	ShortID   string     `json:"shortId,omitempty"`
	Language  string     `json:"language,omitempty"`
	Author    string     `json:"author,omitempty"`
	Content   string     `json:"content,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Code      string     `json:"code,omitempty"`    // stable error code
	Message   string     `json:"message,omitempty"` // human-readable error
}

// Conn is one live viewer. Send must not block the hub: implementations
// buffer internally and deal with slow consumers themselves.
type Conn interface {
	Send(Event)
}

// Snippets is the slice of the service the hub needs. Declared here so
// tests can substitute a fake without standing up stores.
type Snippets interface {
	Find(ctx context.Context, shortID, viewSecret string) (*service.SnippetView, error)
	Update(ctx context.Context, shortID, editSecret string, content []byte) (*service.SnippetView, error)
}

// Hub owns room membership and fan-out.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[Conn]struct{}
	svc    Snippets
	logger *slog.Logger
}

// New creates an empty Hub.
func New(svc Snippets, logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[Conn]struct{}),
		svc:    svc,
		logger: logger,
	}
}

// Join verifies access exactly like a direct read, registers the
// connection as a broadcast target, and delivers the current snippet to
// it only. On failure the error event goes to the joiner only and room
// membership is untouched.
//
// The ordering matters twice over. Access is verified before registration
// so an unverified connection never observes a broadcast. The snapshot is
// fetched again after registration: an edit committing between the access
// check and registration broadcasts before the connection is listening,
// and only a post-registration read guarantees the joiner sees it.
func (h *Hub) Join(ctx context.Context, shortID, viewSecret string, c Conn) error {
	if _, err := h.svc.Find(ctx, shortID, viewSecret); err != nil {
		c.Send(errorEvent(shortID, err))
		return err
	}

	h.mu.Lock()
	room, ok := h.rooms[shortID]
	if !ok {
		room = make(map[Conn]struct{})
		h.rooms[shortID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	view, err := h.svc.Find(ctx, shortID, viewSecret)
	if err != nil {
		// The snippet vanished between the two reads (swept, most
		// likely). Undo the registration; this join never happened.
		h.Leave(shortID, c)
		c.Send(errorEvent(shortID, err))
		return err
	}

	c.Send(snippetEvent("snapshot", view))

	h.logger.Debug("viewer joined room",
		slog.String("short_id", shortID),
		slog.Int("room_size", h.RoomSize(shortID)),
	)
	return nil
}

// Leave removes a connection from a room. Unknown rooms and connections
// are no-ops — disconnects race with membership changes by nature.
func (h *Hub) Leave(shortID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[shortID]; ok {
		delete(room, c)
	}
}

// Edit runs the full update path (lookup, edit-secret check, size check,
// persistence) and on success broadcasts the new content to every
// connection in the room, editor included. On failure only the editor
// hears about it.
func (h *Hub) Edit(ctx context.Context, shortID, editSecret, content string, c Conn) error {
	view, err := h.svc.Update(ctx, shortID, editSecret, []byte(content))
	if err != nil {
		c.Send(errorEvent(shortID, err))
		return err
	}

	h.broadcast(shortID, snippetEvent("update", view))
	return nil
}

// RoomSize reports current membership; used for logging and tests.
func (h *Hub) RoomSize(shortID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[shortID])
}

// broadcast sends the event to every member of the room. The read lock is
// held across the sends; Conn.Send is non-blocking by contract, so this
// serializes broadcasts in commit order without stalling membership
// changes for long.
func (h *Hub) broadcast(shortID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[shortID] {
		c.Send(ev)
	}
}

func snippetEvent(typ string, view *service.SnippetView) Event {
	created := view.Snippet.CreatedAt
	expires := view.Snippet.ExpiresAt
	return Event{
		Type:      typ,
		ShortID:   view.Snippet.ShortID,
		Language:  view.Snippet.Language,
		Author:    view.Snippet.Author,
		Content:   string(view.Content),
		CreatedAt: &created,
		ExpiresAt: &expires,
	}
}

func errorEvent(shortID string, err error) Event {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return Event{Type: "error", ShortID: shortID, Code: appErr.Code, Message: appErr.Message}
	}
	return Event{Type: "error", ShortID: shortID, Code: "INTERNAL", Message: "an internal error occurred"}
}
