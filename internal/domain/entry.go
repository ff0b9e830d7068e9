package domain

import "time"

// Sender identifies who authored a conversation entry.
type Sender string

const (
	SenderSystem Sender = "system"
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
)

// ConversationEntry is one message in the conversation log. Entries are
// append-only; Text and IsTyping mutate in place only while an agent reply
// is being progressively revealed.
type ConversationEntry struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsTyping  bool      `json:"is_typing,omitempty"`
}
