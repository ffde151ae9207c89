package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Analysis  *Analysis `json:"analysis,omitempty"`
}

// HistoryEntry es la vista {role, content} que se envia como contexto al LLM.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewUserMessage(content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: now.UTC(),
	}
}

// NewAssistantMessage adjunta una copia del analisis para que el mensaje no comparta estado.
func NewAssistantMessage(content string, analysis *Analysis, now time.Time) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: now.UTC(),
	}
	if analysis != nil {
		cp := analysis.Clone()
		msg.Analysis = &cp
	}
	return msg
}

func (m Message) HistoryEntry() HistoryEntry {
	return HistoryEntry{Role: m.Role, Content: m.Content}
}

// Clone devuelve una copia profunda del mensaje.
func (m Message) Clone() Message {
	if m.Analysis != nil {
		cp := m.Analysis.Clone()
		m.Analysis = &cp
	}
	return m
}
