// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
	"time"
)

func TestNewChat(t *testing.T) {
	chat := NewChat("user-1", DefaultModel)

	if chat.Title != DefaultChatTitle {
		t.Errorf("Title = %q, want %q", chat.Title, DefaultChatTitle)
	}
	if chat.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", chat.Model, DefaultModel)
	}
	if chat.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", chat.UserID, "user-1")
	}
	if chat.Persisted() {
		t.Error("new chat should not report as persisted")
	}
	if chat.UpdatedAt.Before(chat.CreatedAt) {
		t.Error("UpdatedAt must not precede CreatedAt")
	}
}

func TestChatTouch(t *testing.T) {
	chat := NewChat("user-1", DefaultModel)
	before := chat.UpdatedAt

	time.Sleep(time.Millisecond)
	chat.Touch()

	if !chat.UpdatedAt.After(before) {
		t.Error("Touch should advance UpdatedAt")
	}
	if chat.UpdatedAt.Before(chat.CreatedAt) {
		t.Error("UpdatedAt must not precede CreatedAt")
	}
}

func TestRole(t *testing.T) {
	if !RoleUser.Valid() || !RoleAssistant.Valid() {
		t.Error("user and assistant roles must be valid persisted roles")
	}
	if RoleSystem.Valid() {
		t.Error("system role must not be a persisted role")
	}
	if RoleUser.String() != "user" {
		t.Errorf("RoleUser.String() = %q", RoleUser.String())
	}
}

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage(7, "hello")

	if msg.ChatID != 7 || msg.Content != "hello" || msg.Role != RoleUser {
		t.Errorf("unexpected user message: %+v", msg)
	}
	if msg.IsStreaming {
		t.Error("user messages are never streaming")
	}
}

func TestNewAssistantPlaceholder(t *testing.T) {
	msg := NewAssistantPlaceholder(7)

	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q, want assistant", msg.Role)
	}
	if msg.Content != "" || msg.Reasoning != "" {
		t.Error("placeholder must start with empty content and reasoning")
	}
	if !msg.IsStreaming {
		t.Error("placeholder must be created streaming")
	}
}

func TestReasoningSet_Supports(t *testing.T) {
	tests := []struct {
		name    string
		markers []string
		modelID string
		want    bool
	}{
		{"default catches deepseek-r1", nil, "deepseek/deepseek-r1:free", true},
		{"default catches thinking variant", nil, "anthropic/claude-3.7-sonnet:thinking", true},
		{"default rejects gpt-4o", nil, "openai/gpt-4o", false},
		{"custom marker", []string{"my-model"}, "acme/my-model-large", true},
		{"custom marker replaces defaults", []string{"my-model"}, "deepseek/deepseek-r1", false},
		{"case insensitive", nil, "DeepSeek/DeepSeek-R1", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			set := NewReasoningSet(tc.markers)
			if got := set.Supports(tc.modelID); got != tc.want {
				t.Errorf("Supports(%q) = %v, want %v", tc.modelID, got, tc.want)
			}
		})
	}
}

func TestNewReasoningSet_Cleans(t *testing.T) {
	set := NewReasoningSet([]string{" O1 ", "", "QwQ"})
	markers := set.Markers()

	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d: %v", len(markers), markers)
	}
	if markers[0] != "o1" || markers[1] != "qwq" {
		t.Errorf("markers not normalized: %v", markers)
	}
}
