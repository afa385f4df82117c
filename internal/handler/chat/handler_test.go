package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/ai-chat/backend/internal/config"
	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
	"github.com/zhouzirui/ai-chat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/ai-chat/backend/internal/service/chat"
	"github.com/zhouzirui/ai-chat/backend/pkg/utils"
)

// fakeOllama answers generate calls with reply, or with status when it is not 200.
func fakeOllama(t *testing.T, status int, reply string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": reply, "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupRouter(t *testing.T, ollamaURL string, store chat.Store) *chi.Mux {
	t.Helper()
	client := ai.NewClient(config.ModelConfig{
		Host:          ollamaURL,
		Name:          "tinyllama",
		Timeout:       2 * time.Second,
		HealthTimeout: time.Second,
		PullTimeout:   time.Second,
	})
	svc := chatservice.NewService(client, store, ai.NewPromptBuilder(config.DefaultSystemPrompt), 10)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r
}

func postChat(t *testing.T, r http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestChatReturnsReply(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, "Hello!", &calls)
	r := setupRouter(t, srv.URL, chat.NewMemoryStore())

	resp := postChat(t, r, map[string]string{"message": "Hi"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var got chat.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Response != "Hello!" || got.Model != "tinyllama" || got.ConversationID == "" {
		t.Fatalf("unexpected response: %+v", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 model call, got %d", calls.Load())
	}
}

func TestChatEmptyMessage(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, "unused", &calls)
	r := setupRouter(t, srv.URL, chat.NewMemoryStore())

	for _, msg := range []string{"", "   "} {
		resp := postChat(t, r, map[string]string{"message": msg})
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", msg, resp.Code)
		}
		var body utils.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Detail == "" {
			t.Fatalf("expected detail payload, got %v %+v", err, body)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("model backend must not be called, got %d calls", calls.Load())
	}
}

// turnCount reads chat_turns_total for outcome from the default registry.
func turnCount(t *testing.T, outcome string) float64 {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	prefix := `chat_turns_total{outcome="` + outcome + `"} `
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, prefix) {
			v, err := strconv.ParseFloat(strings.TrimPrefix(line, prefix), 64)
			if err != nil {
				t.Fatalf("parse %q: %v", line, err)
			}
			return v
		}
	}
	return 0
}

func TestChatEmptyMessageCountsRejectedTurn(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, "unused", &calls)
	r := setupRouter(t, srv.URL, chat.NewMemoryStore())

	before := turnCount(t, "rejected")
	resp := postChat(t, r, map[string]string{"message": " \t "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if got := turnCount(t, "rejected"); got != before+1 {
		t.Fatalf("expected rejected turns to go from %v to %v, got %v", before, before+1, got)
	}
}

func TestChatInvalidBody(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, "unused", &calls)
	r := setupRouter(t, srv.URL, chat.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte(`{`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestChatBackendErrorStatus(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusInternalServerError, "", &calls)
	r := setupRouter(t, srv.URL, chat.NewMemoryStore())

	resp := postChat(t, r, map[string]string{"message": "Hi"})
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestChatBackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	r := setupRouter(t, url, chat.NewMemoryStore())

	resp := postChat(t, r, map[string]string{"message": "Hi"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestConversationMessages(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, "Hello!", &calls)
	r := setupRouter(t, srv.URL, chat.NewMemoryStore())

	resp := postChat(t, r, map[string]string{"message": "Hi"})
	var turn chat.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/conversations/"+turn.ConversationID+"/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var views []chat.MessageView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(views) != 2 || views[0].Role != chat.RoleUser || views[1].Content != "Hello!" {
		t.Fatalf("unexpected history: %+v", views)
	}
	if views[0].CreatedAt == "" {
		t.Fatalf("expected created_at to be set")
	}
}

func TestConversationMessagesUnknown(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, "Hello!", &calls)
	r := setupRouter(t, srv.URL, chat.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/conversations/unknown/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Fatalf("expected empty list, got %s", body)
	}
}

func TestConversationMessagesWithoutStore(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, "Hello!", &calls)
	r := setupRouter(t, srv.URL, nil)

	req := httptest.NewRequest(http.MethodGet, "/conversations/any/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestConversationMetadata(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, "Hello!", &calls)
	r := setupRouter(t, srv.URL, chat.NewMemoryStore())

	resp := postChat(t, r, map[string]string{"message": "Hi"})
	var turn chat.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/"+turn.ConversationID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view chat.ConversationView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	created, err := time.Parse(time.RFC3339Nano, view.CreatedAt)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, view.UpdatedAt)
	if err != nil {
		t.Fatalf("parse updated_at: %v", err)
	}
	if view.ID != turn.ConversationID || updated.Before(created) {
		t.Fatalf("unexpected conversation: %+v", view)
	}
}

func TestConversationMetadataUnknown(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, "Hello!", &calls)

	tests := []struct {
		name  string
		store chat.Store
		want  int
	}{
		{name: "unknown id", store: chat.NewMemoryStore(), want: http.StatusNotFound},
		{name: "no store", store: nil, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(t, srv.URL, tt.store)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/missing", nil))
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
