package domain

import (
	"time"
)

// ChatSessionRecord is the persisted form of a user's conversation state.
// Messages are stored as a JSON array so history survives a restart.
type ChatSessionRecord struct {
	UserID       string
	InputMode    InputMode
	MessagesJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
