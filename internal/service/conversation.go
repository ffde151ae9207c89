package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"neurochat/internal/domain"
	"neurochat/internal/metrics"
)

const GreetingMessage = "Hello! I'm NeuroChat. I can understand your intent and extract entities from your messages. I'm also aware of the current date and time. Try saying 'Book a flight for today' or asking 'What is today's date?'."

var (
	ErrBlankInput  = errors.New("conversation blank input")
	ErrTurnPending = errors.New("conversation turn pending")
)

// Analyzer resuelve siempre con un analisis mostrable, exitoso o centinela.
type Analyzer interface {
	Analyze(ctx context.Context, text string, history []domain.HistoryEntry) domain.Analysis
}

// Turn es el par de mensajes que produce un envio.
type Turn struct {
	User      domain.Message
	Assistant domain.Message
}

// ConversationSnapshot es el modelo de render: log de mensajes y analisis actual.
type ConversationSnapshot struct {
	Messages        []domain.Message
	CurrentAnalysis *domain.Analysis
	Pending         bool
}

// Conversation mantiene el log en memoria y garantiza un unico turno pendiente.
type Conversation struct {
	mu       sync.Mutex
	analyzer Analyzer
	logger   *zap.Logger
	now      func() time.Time

	messages []domain.Message
	current  *domain.Analysis
	pending  bool
}

func NewConversation(analyzer Analyzer, logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conversation{
		analyzer: analyzer,
		logger:   logger,
		now:      time.Now,
	}
	c.seed()
	return c
}

func (c *Conversation) seed() {
	c.messages = []domain.Message{domain.NewAssistantMessage(GreetingMessage, nil, c.now())}
	c.current = nil
}

// Submit ejecuta un turno completo. Entrada vacia o turno en curso no cambian el estado.
// El turno no se cancela: el contexto del llamador solo aporta valores.
func (c *Conversation) Submit(ctx context.Context, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.TurnsRejected.WithLabelValues("blank").Inc()
		return Turn{}, ErrBlankInput
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		metrics.TurnsRejected.WithLabelValues("pending").Inc()
		return Turn{}, ErrTurnPending
	}
	history := HistoryFromMessages(c.messages)
	userMsg := domain.NewUserMessage(text, c.now())
	c.messages = append(c.messages, userMsg)
	c.pending = true
	c.mu.Unlock()
	metrics.TurnPending.Set(1)

	// Si el analizador entra en panico el turno se libera igual.
	defer func() {
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
		metrics.TurnPending.Set(0)
	}()

	analysis := c.analyzer.Analyze(context.WithoutCancel(ctx), text, history)

	c.mu.Lock()
	assistantMsg := domain.NewAssistantMessage(analysis.Response, &analysis, c.now())
	c.messages = append(c.messages, assistantMsg)
	current := analysis.Clone()
	c.current = &current
	c.mu.Unlock()

	c.logger.Info("turn completed",
		zap.String("user_message_id", userMsg.ID),
		zap.String("assistant_message_id", assistantMsg.ID),
		zap.Bool("sentinel", analysis.IsSentinel()),
	)
	return Turn{User: userMsg.Clone(), Assistant: assistantMsg.Clone()}, nil
}

// Snapshot devuelve una copia profunda del estado actual.
func (c *Conversation) Snapshot() ConversationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := ConversationSnapshot{
		Messages: make([]domain.Message, len(c.messages)),
		Pending:  c.pending,
	}
	for i, m := range c.messages {
		out.Messages[i] = m.Clone()
	}
	if c.current != nil {
		cp := c.current.Clone()
		out.CurrentAnalysis = &cp
	}
	return out
}

// Reset vuelve al estado inicial, como una recarga de la pagina.
func (c *Conversation) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return ErrTurnPending
	}
	c.seed()
	return nil
}
