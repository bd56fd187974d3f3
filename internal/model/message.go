// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleSystem is only used on outbound completion requests (title
	// generation); system messages are never persisted in a chat.
	RoleSystem Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one a persisted message may carry.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one turn within a chat. Content and Reasoning are mutable
// while IsStreaming is true (the in-flight assistant reply); user
// messages are never streaming.
type Message struct {
	ID          int64     `json:"id"`
	ChatID      int64     `json:"chatId"`
	Content     string    `json:"content"`
	Role        Role      `json:"role"`
	Timestamp   time.Time `json:"timestamp"`
	IsStreaming bool      `json:"isStreaming"`
	Reasoning   string    `json:"reasoning"`
}

// NewUserMessage creates an unsaved user message for chatID.
func NewUserMessage(chatID int64, content string) *Message {
	return &Message{
		ChatID:    chatID,
		Content:   content,
		Role:      RoleUser,
		Timestamp: time.Now(),
	}
}

// NewAssistantPlaceholder creates the empty streaming assistant message
// that is persisted before the model call starts.
func NewAssistantPlaceholder(chatID int64) *Message {
	return &Message{
		ChatID:      chatID,
		Content:     "",
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
		Reasoning:   "",
	}
}
