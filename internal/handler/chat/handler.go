package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
	"github.com/zhouzirui/ai-chat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/ai-chat/backend/internal/service/chat"
	"github.com/zhouzirui/ai-chat/backend/pkg/utils"
)

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 1 << 20

// Handler serves chat turns and conversation history.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates the chat handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/conversations/{conversationID}", h.handleConversation)
	r.Get("/conversations/{conversationID}/messages", h.handleMessages)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chat.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.chatSvc.Chat(r.Context(), payload)
	if err != nil {
		status, detail := StatusForError(err)
		utils.RespondError(w, status, detail)
		return
	}

	utils.RespondJSON(w, http.StatusOK, turn.ChatResponse)
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatSvc.Conversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		status, detail := StatusForError(err)
		utils.RespondError(w, status, detail)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chat.NewConversationView(conv))
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	messages, err := h.chatSvc.Messages(r.Context(), conversationID)
	if err != nil {
		status, detail := StatusForError(err)
		utils.RespondError(w, status, detail)
		return
	}

	views := make([]chat.MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, chat.NewMessageView(m))
	}
	utils.RespondJSON(w, http.StatusOK, views)
}

// StatusForError maps service errors to an HTTP status and client-facing detail.
func StatusForError(err error) (int, string) {
	var statusErr *ai.StatusError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, "AI service error"
	case errors.Is(err, ai.ErrUnavailable):
		return http.StatusServiceUnavailable, "AI service unavailable"
	case errors.Is(err, chat.ErrConversationNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, chatService.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Database not available"
	default:
		log.WithError(err).Error("unhandled chat error")
		return http.StatusInternalServerError, "internal server error"
	}
}
