package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"neurochat/internal/domain"
	"neurochat/internal/llm"
	"neurochat/internal/service"
)

const okResponse = `{"detectedIntents":[{"label":"book_flight","score":0.92}],"extractedEntities":[{"label":"LOCATION","value":"Paris"}],"response":"Sure, let's book that flight."}`

type stubLimiter struct {
	allow bool
	keys  []string
}

func (s *stubLimiter) Allow(key string) bool {
	s.keys = append(s.keys, key)
	return s.allow
}

func newTestConversation(client llm.LLMClient) *service.Conversation {
	prompts := service.PromptBuilder{Now: func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }, Location: time.UTC}
	analysis := service.NewAnalysisService(client, service.DefaultAnalysisConfig(), prompts, zap.NewNop())
	return service.NewConversation(analysis, zap.NewNop())
}

func setupRouter(conv ConversationService, limiter service.SubmitRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(zap.NewNop(), NewChatHandler(zap.NewNop(), conv, limiter))
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeConversation(t *testing.T, w *httptest.ResponseRecorder) conversationResponse {
	t.Helper()
	var resp conversationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	return resp
}

func TestGetConversationInitialState(t *testing.T) {
	r := setupRouter(newTestConversation(&llm.MockClient{}), nil)

	w := performRequest(r, http.MethodGet, "/conversation", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeConversation(t, w)
	if len(resp.Messages) != 1 || resp.Messages[0].Content != service.GreetingMessage {
		t.Fatalf("expected greeting only, got %+v", resp.Messages)
	}
	if resp.CurrentAnalysis != nil || resp.Status != statusIdle {
		t.Fatalf("expected idle without analysis, got status=%s analysis=%+v", resp.Status, resp.CurrentAnalysis)
	}
	if !strings.Contains(w.Body.String(), `"currentAnalysis":null`) {
		t.Fatalf("expected explicit null analysis, got %s", w.Body.String())
	}
}

func TestPostMessageCreatesTurn(t *testing.T) {
	r := setupRouter(newTestConversation(&llm.MockClient{Response: okResponse}), nil)

	w := performRequest(r, http.MethodPost, "/message", map[string]string{"content": "Book a flight to Paris"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		UserMessage      domain.Message  `json:"userMessage"`
		AssistantMessage domain.Message  `json:"assistantMessage"`
		Analysis         domain.Analysis `json:"analysis"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserMessage.Role != domain.RoleUser || resp.AssistantMessage.Role != domain.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", resp)
	}
	if resp.AssistantMessage.Content != "Sure, let's book that flight." || resp.Analysis.Response != resp.AssistantMessage.Content {
		t.Fatalf("unexpected assistant content: %+v", resp)
	}

	state := decodeConversation(t, performRequest(r, http.MethodGet, "/conversation", nil))
	if len(state.Messages) != 3 || state.Status != statusReady || state.CurrentAnalysis == nil {
		t.Fatalf("unexpected state after turn: %+v", state)
	}
}

func TestPostMessageSentinelStillCreated(t *testing.T) {
	r := setupRouter(newTestConversation(llm.NewGeminiClient("", "", "", zap.NewNop())), nil)

	w := performRequest(r, http.MethodPost, "/message", map[string]string{"content": "hola"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), domain.SentinelErrorResponse) {
		t.Fatalf("expected sentinel response, got %s", w.Body.String())
	}
}

func TestPostMessageBadRequests(t *testing.T) {
	client := &llm.MockClient{Response: okResponse}
	r := setupRouter(newTestConversation(client), nil)

	cases := map[string]any{
		"blank":        map[string]string{"content": "   "},
		"missing":      map[string]string{},
		"invalid json": "{not json",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := performRequest(r, http.MethodPost, "/message", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
	if client.Calls() != 0 {
		t.Fatalf("expected no remote calls, got %d", client.Calls())
	}
}

func TestPostMessageRateLimited(t *testing.T) {
	client := &llm.MockClient{Response: okResponse}
	limiter := &stubLimiter{allow: false}
	r := setupRouter(newTestConversation(client), limiter)

	w := performRequest(r, http.MethodPost, "/message", map[string]string{"content": "hola"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if client.Calls() != 0 || len(limiter.keys) != 1 {
		t.Fatalf("expected limiter checked before any turn, calls=%d keys=%v", client.Calls(), limiter.keys)
	}
}

func TestPostMessageBlankDoesNotUseQuota(t *testing.T) {
	client := &llm.MockClient{Response: okResponse}
	limiter := &stubLimiter{allow: true}
	r := setupRouter(newTestConversation(client), limiter)

	for _, content := range []string{"", "   ", "\n\t"} {
		w := performRequest(r, http.MethodPost, "/message", map[string]string{"content": content})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", content, w.Code)
		}
	}
	if len(limiter.keys) != 0 {
		t.Fatalf("expected blank posts to skip the limiter, got %v", limiter.keys)
	}
	if client.Calls() != 0 {
		t.Fatalf("expected no remote calls, got %d", client.Calls())
	}
}

func TestPostMessageWhilePending(t *testing.T) {
	release := make(chan struct{})
	client := &llm.MockClient{Response: okResponse, Block: release}
	conv := newTestConversation(client)
	r := setupRouter(conv, nil)

	done := make(chan int, 1)
	go func() {
		done <- performRequest(r, http.MethodPost, "/message", map[string]string{"content": "primero"}).Code
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !conv.Snapshot().Pending {
		if time.Now().After(deadline) {
			t.Fatalf("turn never became pending")
		}
		time.Sleep(5 * time.Millisecond)
	}

	state := decodeConversation(t, performRequest(r, http.MethodGet, "/conversation", nil))
	if state.Status != statusLoading {
		t.Fatalf("expected loading status, got %s", state.Status)
	}
	if w := performRequest(r, http.MethodPost, "/message", map[string]string{"content": "segundo"}); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if w := performRequest(r, http.MethodPost, "/conversation/reset", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on reset, got %d", w.Code)
	}

	close(release)
	if code := <-done; code != http.StatusCreated {
		t.Fatalf("expected first turn 201, got %d", code)
	}
	if client.Calls() != 1 {
		t.Fatalf("expected a single remote call, got %d", client.Calls())
	}
}

func TestResetConversation(t *testing.T) {
	r := setupRouter(newTestConversation(&llm.MockClient{Response: okResponse}), nil)
	performRequest(r, http.MethodPost, "/message", map[string]string{"content": "hola"})

	w := performRequest(r, http.MethodPost, "/conversation/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	state := decodeConversation(t, w)
	if len(state.Messages) != 1 || state.Status != statusIdle {
		t.Fatalf("expected fresh conversation, got %+v", state)
	}
}

func TestIndexHealthAndMetrics(t *testing.T) {
	r := setupRouter(newTestConversation(&llm.MockClient{}), nil)

	w := performRequest(r, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected html page, got %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "NeuroChat") {
		t.Fatalf("expected page title in body")
	}

	if w := performRequest(r, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", w.Code)
	}

	w = performRequest(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "neurochat_turn_pending") {
		t.Fatalf("expected prometheus exposition, got %d", w.Code)
	}
}
