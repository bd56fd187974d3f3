// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// DefaultChatTitle is the title given to a chat before its first
// exchange generates a real one.
const DefaultChatTitle = "New Chat"

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat is a persisted conversation container with a title and a
// selected model. ID is zero until the chat has been persisted.
type Chat struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewChat creates an unsaved chat owned by userID with the default
// title. CreatedAt and UpdatedAt are both set to now.
func NewChat(userID, modelID string) *Chat {
	now := time.Now()
	return &Chat{
		Title:     DefaultChatTitle,
		Model:     modelID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch refreshes UpdatedAt. UpdatedAt never moves before CreatedAt.
func (c *Chat) Touch() {
	now := time.Now()
	if now.Before(c.CreatedAt) {
		now = c.CreatedAt
	}
	c.UpdatedAt = now
}

// Persisted reports whether the chat has been assigned a row id.
func (c *Chat) Persisted() bool {
	return c.ID != 0
}
