// Package repository persists conversation sessions. Every backend stores
// the complete ConversationState per session id with last-write-wins
// semantics.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"router-agent/internal/domain"
)

var errEmptySessionID = errors.New("repository: session id must not be empty")

func checkSessionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errEmptySessionID
	}
	return nil
}

// encodeMessages is the messages_json column shared by the SQL backends.
func encodeMessages(msgs []domain.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("repository: encode messages: %w", err)
	}
	return raw, nil
}

func decodeMessages(raw []byte) ([]domain.Message, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var msgs []domain.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("repository: decode messages: %w", err)
	}
	for i, m := range msgs {
		role, ok := domain.ParseRole(string(m.Role))
		if !ok {
			return nil, fmt.Errorf("repository: message %d has unknown role %q", i, m.Role)
		}
		msgs[i].Role = role
	}
	return msgs, nil
}
