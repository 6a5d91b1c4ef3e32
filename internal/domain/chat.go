package domain

// ChatMessage is the provider-agnostic chat message shape used by the
// specialists and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SchemaProperty describes one string-valued field of a structured model
// response. Enum constrains the value to a closed set when non-empty.
type SchemaProperty struct {
	Name        string
	Description string
	Enum        []string
	Nullable    bool
}

// ResponseSchema is the structured-output contract handed to a text
// generation provider. Every provider renders it in its own schema dialect.
type ResponseSchema struct {
	Name       string
	Properties []SchemaProperty
}

// ChatMessages converts a conversation log into provider chat messages,
// keeping at most the last limit entries. limit <= 0 keeps everything.
func ChatMessages(msgs []Message, limit int) []ChatMessage {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
