package domain

import (
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a supported role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ContentType tags a content block. Only text is supported.
type ContentType string

const ContentTypeText ContentType = "text"

// ContentBlock is a typed unit of message content.
type ContentBlock struct {
	Type ContentType `json:"type"`
	Text string      `json:"text"`
}

// NewTextBlock returns a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// Message is one turn in a conversation. EditorCode, Stdout and Stderr carry
// the code pane and its last run output; see Validate for how they pair.
type Message struct {
	Role       Role           `json:"role"`
	Content    []ContentBlock `json:"content"`
	EditorCode OptionalText   `json:"editor_code"`
	Stdout     OptionalText   `json:"stdout"`
	Stderr     OptionalText   `json:"stderr"`
}

const (
	errOutputWithoutCode = "Cannot provide stdout or stderr if editor_code is null"
	errUnpairedOutput    = "Must provide both stdout and stderr if code has been run, or neither if code has not been run"
)

// Validate enforces the role enum, non-empty content with supported block
// types, and the editor_code/stdout/stderr pairing rule:
//   - editor_code absent => stdout and stderr absent
//   - stdout and stderr are both present or both absent
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return NewValidationError("role", fmt.Sprintf("must be %q or %q, got %q", RoleUser, RoleAssistant, m.Role))
	}
	if len(m.Content) == 0 {
		return NewValidationError("content", "must contain at least one content block")
	}
	for i, block := range m.Content {
		if block.Type != ContentTypeText {
			return NewValidationError(fmt.Sprintf("content[%d].type", i), fmt.Sprintf("unsupported content type %q", block.Type))
		}
	}
	return validateContext(m.EditorCode, m.Stdout, m.Stderr)
}

func validateContext(code, stdout, stderr OptionalText) error {
	if !code.Present() {
		switch {
		case stdout.Present():
			return NewValidationError("stdout", errOutputWithoutCode)
		case stderr.Present():
			return NewValidationError("stderr", errOutputWithoutCode)
		}
		return nil
	}
	switch {
	case stdout.Present() && !stderr.Present():
		return NewValidationError("stderr", errUnpairedOutput)
	case !stdout.Present() && stderr.Present():
		return NewValidationError("stdout", errUnpairedOutput)
	}
	return nil
}

// HasContext reports whether any execution-context field is present.
func (m Message) HasContext() bool {
	return m.EditorCode.Present() || m.Stdout.Present() || m.Stderr.Present()
}

// JoinedText concatenates the text blocks with single spaces.
func (m Message) JoinedText() string {
	var b strings.Builder
	for i, block := range m.Content {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(block.Text)
	}
	return b.String()
}

// NewUserMessage builds and validates a user message.
func NewUserMessage(text string, editorCode, stdout, stderr OptionalText) (Message, error) {
	msg := Message{
		Role:       RoleUser,
		Content:    []ContentBlock{NewTextBlock(text)},
		EditorCode: editorCode,
		Stdout:     stdout,
		Stderr:     stderr,
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// NewAssistantMessage builds an assistant message from response text blocks.
// Assistant messages never carry execution context.
func NewAssistantMessage(texts ...string) (Message, error) {
	msg := Message{Role: RoleAssistant}
	for _, t := range texts {
		msg.Content = append(msg.Content, NewTextBlock(t))
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
