// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/safadev/safachat/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chats.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetChat(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := model.NewChat("user-1", "openai/gpt-4o")
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if chat.ID == 0 {
		t.Fatal("CreateChat() did not assign an id")
	}

	got, err := s.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if got.Title != model.DefaultChatTitle {
		t.Errorf("Title = %q, want %q", got.Title, model.DefaultChatTitle)
	}
	if got.Model != "openai/gpt-4o" {
		t.Errorf("Model = %q, want openai/gpt-4o", got.Model)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", got.UserID)
	}
	if !got.CreatedAt.Equal(chat.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, chat.CreatedAt)
	}
}

func TestGetChatNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetChat(context.Background(), 999)
	if !errors.Is(err, ErrChatNotFound) {
		t.Errorf("GetChat(999) error = %v, want ErrChatNotFound", err)
	}
}

func TestListChatsOrderAndOwnership(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	older := &model.Chat{Title: "older", Model: "m", UserID: "u", CreatedAt: base, UpdatedAt: base}
	newer := &model.Chat{Title: "newer", Model: "m", UserID: "u", CreatedAt: base, UpdatedAt: base.Add(time.Hour)}
	other := &model.Chat{Title: "other", Model: "m", UserID: "someone-else", CreatedAt: base, UpdatedAt: base}
	for _, c := range []*model.Chat{older, newer, other} {
		if err := s.CreateChat(ctx, c); err != nil {
			t.Fatalf("CreateChat() error = %v", err)
		}
	}

	chats, err := s.ListChats(ctx, "u")
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("ListChats() returned %d chats, want 2", len(chats))
	}
	if chats[0].Title != "newer" || chats[1].Title != "older" {
		t.Errorf("ListChats() order = [%s, %s], want [newer, older]", chats[0].Title, chats[1].Title)
	}
}

func TestUpdateChatTitle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := model.NewChat("u", "m")
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	at := chat.UpdatedAt.Add(time.Minute)
	if err := s.UpdateChatTitle(ctx, chat.ID, "Trip planning", at); err != nil {
		t.Fatalf("UpdateChatTitle() error = %v", err)
	}

	got, err := s.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if got.Title != "Trip planning" {
		t.Errorf("Title = %q, want %q", got.Title, "Trip planning")
	}
	if !got.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, at)
	}

	if err := s.UpdateChatTitle(ctx, 999, "x", at); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("UpdateChatTitle(999) error = %v, want ErrChatNotFound", err)
	}
}

func TestUpdateChatModelKeepsUpdatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := model.NewChat("u", "old-model")
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	if err := s.UpdateChatModel(ctx, chat.ID, "new-model"); err != nil {
		t.Fatalf("UpdateChatModel() error = %v", err)
	}

	got, err := s.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if got.Model != "new-model" {
		t.Errorf("Model = %q, want new-model", got.Model)
	}
	if !got.UpdatedAt.Equal(chat.UpdatedAt) {
		t.Errorf("UpdatedAt changed on model switch: %v != %v", got.UpdatedAt, chat.UpdatedAt)
	}
}

func TestUpsertChat(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	chat := &model.Chat{ID: 42, Title: "remote", Model: "m", UserID: "u", CreatedAt: base, UpdatedAt: base}
	if err := s.UpsertChat(ctx, chat); err != nil {
		t.Fatalf("UpsertChat() insert error = %v", err)
	}

	chat.Title = "remote v2"
	chat.UpdatedAt = base.Add(time.Hour)
	if err := s.UpsertChat(ctx, chat); err != nil {
		t.Fatalf("UpsertChat() update error = %v", err)
	}

	got, err := s.GetChat(ctx, 42)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if got.Title != "remote v2" {
		t.Errorf("Title = %q, want remote v2", got.Title)
	}
	if !got.UpdatedAt.Equal(chat.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, chat.UpdatedAt)
	}
}

func TestDeleteChatCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := model.NewChat("u", "m")
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	msg := model.NewUserMessage(chat.ID, "hello")
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	if err := s.DeleteChat(ctx, chat.ID); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}

	if _, err := s.GetChat(ctx, chat.ID); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("GetChat() after delete error = %v, want ErrChatNotFound", err)
	}
	if _, err := s.GetMessage(ctx, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("GetMessage() after delete error = %v, want ErrMessageNotFound", err)
	}

	if err := s.DeleteChat(ctx, chat.ID); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("DeleteChat() on missing chat error = %v, want ErrChatNotFound", err)
	}
}

func TestPurgeOtherUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mine := model.NewChat("me", "m")
	theirs := model.NewChat("them", "m")
	anon := model.NewChat("", "m")
	for _, c := range []*model.Chat{mine, theirs, anon} {
		if err := s.CreateChat(ctx, c); err != nil {
			t.Fatalf("CreateChat() error = %v", err)
		}
	}
	theirMsg := model.NewUserMessage(theirs.ID, "secret")
	if err := s.CreateMessage(ctx, theirMsg); err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	if err := s.PurgeOtherUsers(ctx, "me"); err != nil {
		t.Fatalf("PurgeOtherUsers() error = %v", err)
	}

	if _, err := s.GetChat(ctx, mine.ID); err != nil {
		t.Errorf("my chat was purged: %v", err)
	}
	if _, err := s.GetChat(ctx, anon.ID); err != nil {
		t.Errorf("anonymous chat was purged: %v", err)
	}
	if _, err := s.GetChat(ctx, theirs.ID); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("other user's chat survived purge: err = %v", err)
	}
	if _, err := s.GetMessage(ctx, theirMsg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("other user's message survived purge: err = %v", err)
	}
}

func TestMessagesOrderedByTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := model.NewChat("u", "m")
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	base := time.Now()
	second := &model.Message{ChatID: chat.ID, Content: "second", Role: model.RoleAssistant, Timestamp: base.Add(time.Second)}
	first := &model.Message{ChatID: chat.ID, Content: "first", Role: model.RoleUser, Timestamp: base}
	for _, m := range []*model.Message{second, first} {
		if err := s.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage() error = %v", err)
		}
	}

	msgs, err := s.Messages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Messages() returned %d, want 2", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Errorf("Messages() order = [%s, %s], want [first, second]", msgs[0].Content, msgs[1].Content)
	}

	latest, err := s.LatestMessage(ctx, chat.ID)
	if err != nil {
		t.Fatalf("LatestMessage() error = %v", err)
	}
	if latest.Content != "second" {
		t.Errorf("LatestMessage() = %q, want second", latest.Content)
	}

	n, err := s.CountMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("CountMessages() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountMessages() = %d, want 2", n)
	}
}

func TestStreamingMessageLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := model.NewChat("u", "m")
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	placeholder := model.NewAssistantPlaceholder(chat.ID)
	if err := s.CreateMessage(ctx, placeholder); err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	if err := s.UpdateMessageContent(ctx, placeholder.ID, "Hel", ""); err != nil {
		t.Fatalf("UpdateMessageContent() error = %v", err)
	}
	if err := s.UpdateMessageContent(ctx, placeholder.ID, "Hello", "thinking..."); err != nil {
		t.Fatalf("UpdateMessageContent() error = %v", err)
	}

	got, err := s.GetMessage(ctx, placeholder.ID)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if !got.IsStreaming {
		t.Error("message should still be streaming after content update")
	}
	if got.Content != "Hello" || got.Reasoning != "thinking..." {
		t.Errorf("content/reasoning = %q/%q, want Hello/thinking...", got.Content, got.Reasoning)
	}

	if err := s.FinalizeMessage(ctx, placeholder.ID, "Hello there", "thinking..."); err != nil {
		t.Fatalf("FinalizeMessage() error = %v", err)
	}

	got, err = s.GetMessage(ctx, placeholder.ID)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if got.IsStreaming {
		t.Error("message should not be streaming after finalize")
	}
	if got.Content != "Hello there" {
		t.Errorf("Content = %q, want Hello there", got.Content)
	}
}

func TestReplaceMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := model.NewChat("u", "m")
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	stale := model.NewUserMessage(chat.ID, "stale")
	if err := s.CreateMessage(ctx, stale); err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	base := time.Now()
	remote := []model.Message{
		{ID: 100, ChatID: chat.ID, Content: "hi", Role: model.RoleUser, Timestamp: base},
		{ID: 101, ChatID: chat.ID, Content: "hello", Role: model.RoleAssistant, Timestamp: base.Add(time.Second)},
	}
	if err := s.ReplaceMessages(ctx, chat.ID, remote); err != nil {
		t.Fatalf("ReplaceMessages() error = %v", err)
	}

	msgs, err := s.Messages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Messages() returned %d, want 2", len(msgs))
	}
	if msgs[0].ID != 100 || msgs[1].ID != 101 {
		t.Errorf("message ids = [%d, %d], want [100, 101]", msgs[0].ID, msgs[1].ID)
	}
	if _, err := s.GetMessage(ctx, stale.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("stale message survived replace: err = %v", err)
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "chats.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.CreateChat(context.Background(), model.NewChat("u", "m")); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
}
