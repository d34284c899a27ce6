package api

import (
	"encoding/json"
	"fmt"
)

// ChatCompletionRequest is the inbound chat-completion payload. Only the
// fields the gateway inspects or rewrites are typed; everything else is kept
// as raw JSON and forwarded to the provider verbatim.
type ChatCompletionRequest struct {
	Model     string
	Messages  []Message
	MaxTokens *int

	// extra holds all passthrough fields keyed by their JSON name.
	extra map[string]json.RawMessage
}

func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if raw, ok := fields["model"]; ok {
		if err := json.Unmarshal(raw, &r.Model); err != nil {
			return fmt.Errorf("invalid model field: %w", err)
		}
		delete(fields, "model")
	}
	if raw, ok := fields["messages"]; ok {
		if err := json.Unmarshal(raw, &r.Messages); err != nil {
			return fmt.Errorf("invalid messages field: %w", err)
		}
		delete(fields, "messages")
	}
	if raw, ok := fields["max_tokens"]; ok {
		if err := json.Unmarshal(raw, &r.MaxTokens); err != nil {
			return fmt.Errorf("invalid max_tokens field: %w", err)
		}
		delete(fields, "max_tokens")
	}

	r.extra = fields
	return nil
}

func (r ChatCompletionRequest) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(r.extra)+3)
	for k, v := range r.extra {
		fields[k] = v
	}

	model, err := json.Marshal(r.Model)
	if err != nil {
		return nil, err
	}
	fields["model"] = model

	messages, err := json.Marshal(r.Messages)
	if err != nil {
		return nil, err
	}
	fields["messages"] = messages

	if r.MaxTokens != nil {
		mt, err := json.Marshal(*r.MaxTokens)
		if err != nil {
			return nil, err
		}
		fields["max_tokens"] = mt
	}

	return json.Marshal(fields)
}

// HasAssistantMessage reports whether the conversation already contains an
// assistant turn, i.e. it is not the start of a new conversation.
func (r *ChatCompletionRequest) HasAssistantMessage() bool {
	for i := range r.Messages {
		if r.Messages[i].Role == RoleAssistant {
			return true
		}
	}
	return false
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role/content pair. Messages that arrive over the wire
// keep their original bytes so untouched messages round-trip unchanged.
type Message struct {
	Role    string
	Content Content

	raw json.RawMessage
}

// NewMessage builds a synthetic message (one the gateway injects itself).
func NewMessage(role, text string) Message {
	return Message{Role: role, Content: Content{Text: text}}
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var peek struct {
		Role    string  `json:"role"`
		Content Content `json:"content"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return err
	}
	m.Role = peek.Role
	m.Content = peek.Content
	m.raw = append(m.raw[:0], data...)
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	return json.Marshal(struct {
		Role    string  `json:"role"`
		Content Content `json:"content"`
	}{Role: m.Role, Content: m.Content})
}

// AppendText extends the message content with text, preserving the remaining
// original fields of the message. String content is extended in place; part
// lists get an extra text part.
func (m *Message) AppendText(text string) error {
	if m.Content.Parts != nil {
		m.Content.Parts = append(m.Content.Parts, ContentPart{Type: "text", Text: text})
	} else {
		m.Content.Text += text
	}

	if m.raw == nil {
		return nil
	}

	// Rewrite only the content field of the original bytes.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m.raw, &fields); err != nil {
		return err
	}
	content, err := json.Marshal(m.Content)
	if err != nil {
		return err
	}
	fields["content"] = content
	m.raw, err = json.Marshal(fields)
	return err
}

// Content handles the union type: string | []ContentPart.
type Content struct {
	Text  string
	Parts []ContentPart
}

func (c *Content) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &c.Parts)
	}
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// PlainText flattens the content to the text the guardrail classifies.
func (c Content) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == "text" && p.Text != "" {
			if out != "" {
				out += " "
			}
			out += p.Text
		}
	}
	return out
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}
