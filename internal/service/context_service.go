package service

import (
	"fmt"
	"strings"

	"neurochat/internal/domain"
)

// HistoryFromMessages proyecta los mensajes a la vista {role, content}.
func HistoryFromMessages(messages []domain.Message) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.HistoryEntry())
	}
	return out
}

// WindowHistory devuelve las ultimas n entradas en orden cronologico.
func WindowHistory(history []domain.HistoryEntry, n int) []domain.HistoryEntry {
	if n <= 0 || len(history) == 0 {
		return []domain.HistoryEntry{}
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]domain.HistoryEntry, len(history))
	copy(out, history)
	return out
}

// BuildHistoryContext formatea la ventana como lineas "ROLE: content".
func BuildHistoryContext(history []domain.HistoryEntry, window int) string {
	entries := WindowHistory(history, window)
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(e.Role)), e.Content))
	}
	return strings.Join(lines, "\n")
}
