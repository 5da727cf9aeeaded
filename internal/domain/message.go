// Package domain contains core domain types for the provisioning chat platform.
package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// InputMode controls which kind of input a session accepts on the next turn.
type InputMode string

const (
	// InputFreeText accepts arbitrary text.
	InputFreeText InputMode = "free_text"
	// InputChoice expects a value matching one of the last offered options.
	InputChoice InputMode = "choice"
)

// ChoiceOption is a single button offered alongside an assistant message.
// Variant and Color are presentation hints only.
type ChoiceOption struct {
	Text    string `json:"text"`
	Value   string `json:"value"`
	Variant string `json:"variant,omitempty"`
	Color   string `json:"color,omitempty"`
}

// Message is one immutable entry in a session's conversation history.
type Message struct {
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Options   []ChoiceOption `json:"options,omitempty"`
}

// Reply is what the assistant-logic collaborator produces for one turn.
// A reply carrying options puts the session into choice mode; AllowFreeText
// maps to the show_text_input flag on the wire.
type Reply struct {
	Message       string
	Options       []ChoiceOption
	AllowFreeText bool
}

// NextMode returns the input mode this reply dictates for the following turn.
func (r *Reply) NextMode() InputMode {
	if len(r.Options) > 0 {
		return InputChoice
	}
	return InputFreeText
}
