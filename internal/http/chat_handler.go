package http

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"neurochat/internal/domain"
	"neurochat/internal/metrics"
	"neurochat/internal/service"
)

//go:embed static/index.html
var indexHTML []byte

const (
	statusIdle    = "idle"
	statusLoading = "loading"
	statusReady   = "ready"
)

// ConversationService es lo que el handler necesita de la conversacion.
type ConversationService interface {
	Submit(ctx context.Context, text string) (service.Turn, error)
	Snapshot() service.ConversationSnapshot
	Reset() error
}

// ChatHandler expone la conversacion en curso por HTTP.
type ChatHandler struct {
	logger       *zap.Logger
	conversation ConversationService
	limiter      service.SubmitRateLimiter
}

// NewChatHandler crea el handler; limiter puede ser nil.
func NewChatHandler(logger *zap.Logger, conversation ConversationService, limiter service.SubmitRateLimiter) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		logger:       logger,
		conversation: conversation,
		limiter:      limiter,
	}
}

type conversationResponse struct {
	Messages        []domain.Message `json:"messages"`
	CurrentAnalysis *domain.Analysis `json:"currentAnalysis"`
	Status          string           `json:"status"`
}

func renderConversation(snap service.ConversationSnapshot) conversationResponse {
	status := statusReady
	switch {
	case snap.Pending:
		status = statusLoading
	case snap.CurrentAnalysis == nil:
		status = statusIdle
	}
	return conversationResponse{
		Messages:        snap.Messages,
		CurrentAnalysis: snap.CurrentAnalysis,
		Status:          status,
	}
}

// Index maneja GET /.
func (h *ChatHandler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// GetConversation maneja GET /conversation.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	c.JSON(http.StatusOK, renderConversation(h.conversation.Snapshot()))
}

// PostMessage maneja POST /message.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	if h.limiter != nil && !h.limiter.Allow(c.ClientIP()) {
		metrics.TurnsRejected.WithLabelValues("rate_limited").Inc()
		h.logger.Warn("submit rate limited", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many messages, try again later"})
		return
	}

	turn, err := h.conversation.Submit(c.Request.Context(), req.Content)
	switch {
	case errors.Is(err, service.ErrBlankInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	case errors.Is(err, service.ErrTurnPending):
		c.JSON(http.StatusConflict, gin.H{"error": "a message is already being analyzed"})
		return
	case err != nil:
		h.logger.Error("submit message failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not process message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"userMessage":      turn.User,
		"assistantMessage": turn.Assistant,
		"analysis":         turn.Assistant.Analysis,
	})
}

// ResetConversation maneja POST /conversation/reset.
func (h *ChatHandler) ResetConversation(c *gin.Context) {
	if err := h.conversation.Reset(); err != nil {
		if errors.Is(err, service.ErrTurnPending) {
			c.JSON(http.StatusConflict, gin.H{"error": "a message is already being analyzed"})
			return
		}
		h.logger.Error("reset conversation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reset conversation"})
		return
	}
	c.JSON(http.StatusOK, renderConversation(h.conversation.Snapshot()))
}
