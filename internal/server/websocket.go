package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/amccray/stigward/internal/audit"
)

// Hub manages WebSocket clients subscribed to audit-group progress.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) Subscribe(groupID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[groupID] == nil {
		h.clients[groupID] = make(map[*websocket.Conn]struct{})
	}
	h.clients[groupID][conn] = struct{}{}
}

func (h *Hub) Unsubscribe(groupID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[groupID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, groupID)
		}
	}
}

// BroadcastGroup pushes one audit event to every client watching the
// group.
func (h *Hub) BroadcastGroup(groupID int64, ev audit.Event) {
	h.mu.RLock()
	conns := h.clients[groupID]
	h.mu.RUnlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	for conn := range conns {
		err := conn.Write(context.Background(), websocket.MessageText, data)
		if err != nil {
			slog.Debug("ws write error", "error", err)
			h.Unsubscribe(groupID, conn)
			conn.Close(websocket.StatusNormalClosure, "")
		}
	}
}

type wsSubscribeMsg struct {
	GroupID int64 `json:"group_id"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("ws accept error", "error", err)
		return
	}
	defer conn.CloseNow()

	// Read subscribe message
	_, data, err := conn.Read(r.Context())
	if err != nil {
		return
	}

	var msg wsSubscribeMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.GroupID == 0 {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid subscribe message")
		return
	}

	s.hub.Subscribe(msg.GroupID, conn)
	defer s.hub.Unsubscribe(msg.GroupID, conn)

	// Keep connection alive until the client goes away
	for {
		_, _, err := conn.Read(r.Context())
		if err != nil {
			return
		}
	}
}
