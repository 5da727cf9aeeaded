package chat

import (
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
)

// Inbound frame kinds. Anything else is a protocol violation surfaced to the
// sender; silence here would let client and server drift apart unnoticed.
const (
	frameChatMessage         = "chat_message"
	frameClearConversation   = "clear_conversation"
	framePing                = "ping"
	frameNotificationDismiss = "notification_dismiss"
)

type inboundFrame struct {
	Type           string `json:"type"`
	Message        string `json:"message,omitempty"`
	Timestamp      int64  `json:"timestamp,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
}

type chatResponseFrame struct {
	Type          string                `json:"type"`
	Message       string                `json:"message"`
	Buttons       []domain.ChoiceOption `json:"buttons,omitempty"`
	ShowTextInput bool                  `json:"show_text_input"`
	Timestamp     int64                 `json:"timestamp,omitempty"`
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newChatResponse(reply *domain.Reply, ts int64) chatResponseFrame {
	return chatResponseFrame{
		Type:          "chat_response",
		Message:       reply.Message,
		Buttons:       reply.Options,
		ShowTextInput: reply.AllowFreeText,
		Timestamp:     ts,
	}
}

func newErrorFrame(code, message string) errorFrame {
	return errorFrame{Type: "error", Code: code, Message: message}
}
