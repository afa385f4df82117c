package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	chatHandler "github.com/zhouzirui/ai-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/ai-chat/backend/internal/service/chat"
)

const (
	pongWait      = 60 * time.Second
	pingPeriod    = 50 * time.Second
	writeWait     = 10 * time.Second
	maxFrameBytes = 1 << 20
)

// Message types sent to the client.
const (
	TypeReply = "reply"
	TypeError = "error"
)

// Handler runs whole chat turns over a websocket: one request frame in, one reply frame out.
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// New creates the websocket handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts /ws on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// OutgoingMessage is a frame written to the client.
type OutgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorData describes a failed turn.
type ErrorData struct {
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameBytes)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	ctx := r.Context()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Info("websocket closed unexpectedly")
			}
			return
		}

		var req chat.ChatRequest
		if err := json.Unmarshal(frame, &req); err != nil {
			if !writeFrame(conn, TypeError, ErrorData{Detail: "invalid message", Status: http.StatusBadRequest}) {
				return
			}
			continue
		}

		turn, err := h.chatSvc.Chat(ctx, req)
		if err != nil {
			status, detail := chatHandler.StatusForError(err)
			if !writeFrame(conn, TypeError, ErrorData{Detail: detail, Status: status}) {
				return
			}
			continue
		}

		if !writeFrame(conn, TypeReply, turn.ChatResponse) {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, msgType string, data interface{}) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(OutgoingMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		log.WithError(err).Warn("failed to write websocket frame")
		return false
	}
	return true
}

// keepAlive pings the client until done is closed.
func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
