package domain

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole normalizes a stored role string.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleAssistant:
		return RoleAssistant, true
	case RoleSystem:
		return RoleSystem, true
	}
	return "", false
}

// Message is a single conversation turn. It is never mutated after it has
// been appended to a ConversationState.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a message with the current UTC time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Category is the routing decision for the most recent user turn.
type Category string

const (
	CategoryGeneral         Category = "general"
	CategoryRepoAnalysis    Category = "repo_analysis"
	CategoryProfileAnalysis Category = "profile_analysis"
)

// Categories lists the closed set of valid categories in prompt order.
func Categories() []Category {
	return []Category{CategoryProfileAnalysis, CategoryRepoAnalysis, CategoryGeneral}
}

// ParseCategory validates a category against the closed set. Labels used by
// earlier prompt revisions are accepted as aliases.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "general", "logical":
		return CategoryGeneral, true
	case "repo_analysis", "repository_analysis", "github":
		return CategoryRepoAnalysis, true
	case "profile_analysis", "github_user":
		return CategoryProfileAnalysis, true
	}
	return "", false
}

// Emoji marks replies of the category in chat front-ends.
func (c Category) Emoji() string {
	switch c {
	case CategoryProfileAnalysis:
		return "👤"
	case CategoryRepoAnalysis:
		return "🔍"
	default:
		return "🧠"
	}
}

// Label is the human-readable category name.
func (c Category) Label() string {
	switch c {
	case CategoryProfileAnalysis:
		return "User Analysis"
	case CategoryRepoAnalysis:
		return "Repo Analysis"
	default:
		return "Logical"
	}
}

// ClassificationResult is the Classifier's candidate patch for a
// ConversationState.
type ClassificationResult struct {
	Category Category
	Owner    string
	Repo     string
}

// ConversationState is the message log of one session plus the routing
// metadata of its most recent user turn.
type ConversationState struct {
	Messages []Message
	Category Category
	Owner    string
	Repo     string
}

// AppendMessage adds a message to the end of the log.
func (s *ConversationState) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

// ApplyClassification overwrites the routing metadata. Values from earlier
// turns are never carried over.
func (s *ConversationState) ApplyClassification(r ClassificationResult) {
	s.Category = r.Category
	s.Owner = r.Owner
	s.Repo = r.Repo
}

// Reset empties the state, as on an explicit session clear.
func (s *ConversationState) Reset() {
	*s = ConversationState{}
}

// LastUserMessage returns the newest user message.
func (s ConversationState) LastUserMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Clone returns a copy whose message slice does not alias the receiver's.
func (s ConversationState) Clone() ConversationState {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

// SessionStats summarizes a session's message log.
type SessionStats struct {
	Total          int `json:"total"`
	UserCount      int `json:"user_count"`
	AssistantCount int `json:"assistant_count"`
}

// Stats counts messages by role.
func (s ConversationState) Stats() SessionStats {
	st := SessionStats{Total: len(s.Messages)}
	for _, m := range s.Messages {
		switch m.Role {
		case RoleUser:
			st.UserCount++
		case RoleAssistant:
			st.AssistantCount++
		}
	}
	return st
}
