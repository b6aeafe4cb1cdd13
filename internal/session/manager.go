package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Manager keeps a bounded, in-memory conversation history per session.
// Each session holds at most maxHistory exchanges; older messages are
// dropped first.
type Manager struct {
	mu         sync.Mutex
	maxHistory int
	sessions   map[string][]Message
}

func NewManager(maxHistory int) *Manager {
	return &Manager{
		maxHistory: maxHistory,
		sessions:   make(map[string][]Message),
	}
}

// CreateSession registers a new empty session and returns its id.
func (m *Manager) CreateSession() string {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = []Message{}
	m.mu.Unlock()
	return id
}

// AddExchange appends a user question and the assistant's answer together.
func (m *Manager) AddExchange(sessionID, userMessage, assistantMessage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(sessionID,
		Message{Role: "user", Content: userMessage},
		Message{Role: "assistant", Content: assistantMessage},
	)
}

func (m *Manager) appendLocked(sessionID string, msgs ...Message) {
	history := append(m.sessions[sessionID], msgs...)
	limit := m.maxHistory * 2
	if limit <= 0 {
		history = history[:0]
	} else if len(history) > limit {
		history = append([]Message(nil), history[len(history)-limit:]...)
	}
	m.sessions[sessionID] = history
}

// Messages returns a copy of the session's history.
func (m *Manager) Messages(sessionID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.sessions[sessionID]
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// GetConversationHistory renders the history as "User: ..." and
// "Assistant: ..." lines, or "" if there is none.
func (m *Manager) GetConversationHistory(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	history := m.Messages(sessionID)
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, roleLabel(msg.Role)+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// ClearSession empties a session's history but keeps the session.
func (m *Manager) ClearSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; ok {
		m.sessions[sessionID] = []Message{}
	}
}

// DeleteSession forgets a session entirely.
func (m *Manager) DeleteSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	return ok
}

func (m *Manager) Exists(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	return ok
}

func roleLabel(role string) string {
	if role == "" {
		return ""
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
