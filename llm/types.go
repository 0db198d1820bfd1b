package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multi-part user message.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// Content is a message body: either a plain string or an ordered sequence of
// typed parts. It marshals to whichever form it holds.
type Content struct {
	text    string
	parts   []ContentPart
	isParts bool
}

func TextContent(s string) Content { return Content{text: s} }

func PartsContent(parts []ContentPart) Content { return Content{parts: parts, isParts: true} }

func (c Content) IsParts() bool        { return c.isParts }
func (c Content) Text() string         { return c.text }
func (c Content) Parts() []ContentPart { return c.parts }

func (c Content) MarshalJSON() ([]byte, error) {
	if c.isParts {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = TextContent(s)
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		*c = PartsContent(parts)
		return nil
	}
	return fmt.Errorf("content must be a string or a list of typed parts")
}

// Message is one turn of a structured chat input.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
	Name    string  `json:"name,omitempty"`
}

// ChatInput is the request input: a single user turn given as a string, or an
// ordered message sequence.
type ChatInput struct {
	text       string
	messages   []Message
	isMessages bool
	set        bool
}

func TextInput(s string) ChatInput { return ChatInput{text: s, set: true} }

func MessagesInput(msgs []Message) ChatInput {
	return ChatInput{messages: msgs, isMessages: true, set: true}
}

func (in ChatInput) IsZero() bool        { return !in.set }
func (in ChatInput) IsText() bool        { return in.set && !in.isMessages }
func (in ChatInput) Text() string        { return in.text }
func (in ChatInput) Messages() []Message { return in.messages }

// Context returns the message sequence for the envelope's context field.
// String inputs are wrapped as a single user message.
func (in ChatInput) Context() []Message {
	if in.isMessages {
		return in.messages
	}
	return []Message{{Role: RoleUser, Content: TextContent(in.text)}}
}

// Last returns the envelope's chat_input field: the input itself when it is a
// string, otherwise the content of the last message.
func (in ChatInput) Last() Content {
	if !in.isMessages {
		return TextContent(in.text)
	}
	if len(in.messages) == 0 {
		return Content{}
	}
	return in.messages[len(in.messages)-1].Content
}

// Flatten produces the canonical string form used for tokenization: the
// string itself, or the concatenation of every string content plus, for
// multi-part user messages, each text value and image URL in order.
func (in ChatInput) Flatten() string {
	if !in.isMessages {
		return in.text
	}
	var b strings.Builder
	for _, msg := range in.messages {
		if !msg.Content.IsParts() {
			b.WriteString(msg.Content.Text())
			continue
		}
		if msg.Role != RoleUser {
			continue
		}
		for _, part := range msg.Content.Parts() {
			switch part.Type {
			case "text":
				b.WriteString(part.Text)
			case "image_url":
				if part.ImageURL != nil {
					b.WriteString(part.ImageURL.URL)
				}
			}
		}
	}
	return b.String()
}

func (in ChatInput) MarshalJSON() ([]byte, error) {
	if in.isMessages {
		return json.Marshal(in.messages)
	}
	return json.Marshal(in.text)
}

func (in *ChatInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*in = TextInput(s)
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err == nil {
		*in = MessagesInput(msgs)
		return nil
	}
	return fmt.Errorf("chat_input must be a string or a list of messages")
}

// Parameters carries provider-specific tuning knobs. Recognized names and
// ranges are enumerated by each provider adapter.
type Parameters map[string]any

// Float reads a numeric parameter. JSON numbers decode as float64; integral
// Go values set directly are accepted too.
func (p Parameters) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ChatRequest is the provider-agnostic input to the engine. It is validated
// once and immutable afterwards.
type ChatRequest struct {
	Model      string     `json:"model"`
	ChatInput  ChatInput  `json:"chat_input"`
	IsStream   bool       `json:"is_stream,omitempty"`
	Retries    int        `json:"retries,omitempty"`
	Parameters Parameters `json:"parameters,omitempty"`
}
