// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/safadev/safachat/internal/cloud"
	"github.com/safadev/safachat/internal/model"
	"github.com/safadev/safachat/internal/remote"
	"github.com/safadev/safachat/internal/store"
)

// =============================================================================
// ERRORS AND CONSTANTS
// =============================================================================

var (
	// ErrAuthRequired indicates the operation needs a signed-in user.
	ErrAuthRequired = errors.New("not signed in")

	// ErrStreamInFlight indicates a reply is already streaming.
	ErrStreamInFlight = errors.New("a response is already streaming")
)

// apologyMessage replaces the assistant reply when streaming fails.
// A user-initiated stop is not a failure and never produces it.
const apologyMessage = "Sorry, there was an error processing your request."

// =============================================================================
// USER CONTEXT
// =============================================================================

// UserContext identifies the signed-in user. A zero UserContext is an
// anonymous session: chats stay local and never sync.
type UserContext struct {
	ID    string
	Email string
}

// Authenticated reports whether a user is signed in.
func (u UserContext) Authenticated() bool {
	return u.ID != ""
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the session state and coordinates the store, the
// completion client, and the backend sync client.
//
// All methods are safe for concurrent use. The streaming flag is an
// atomic check-and-set so two SendMessage calls can never both start a
// stream.
type Controller struct {
	store     *store.Store
	cloud     *cloud.Client
	remote    *remote.Client
	reasoning model.ReasoningSet
	user      UserContext
	log       *logrus.Logger

	mu            sync.Mutex
	onChunk       func(content, reasoning string)
	streaming     atomic.Bool
	cancelStream  context.CancelFunc
	currentChatID int64
	chats         []model.Chat
	messages      []model.Message
}

// NewController creates a controller. remoteClient may be nil for a
// fully offline session.
func NewController(st *store.Store, cloudClient *cloud.Client, remoteClient *remote.Client, reasoning model.ReasoningSet, user UserContext, log *logrus.Logger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{
		store:     st,
		cloud:     cloudClient,
		remote:    remoteClient,
		reasoning: reasoning,
		user:      user,
		log:       log,
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Chats returns the cached chat list, most recently active first.
func (c *Controller) Chats() []model.Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Chat, len(c.chats))
	copy(out, c.chats)
	return out
}

// Messages returns the cached messages of the selected chat.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// CurrentChatID returns the selected chat id, or zero when none.
func (c *Controller) CurrentChatID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentChatID
}

// IsStreaming reports whether a reply is currently streaming.
func (c *Controller) IsStreaming() bool {
	return c.streaming.Load()
}

// User returns the session's user context.
func (c *Controller) User() UserContext {
	return c.user
}

// SetStreamListener registers a callback invoked with each delta as it
// arrives, for live display. Pass nil to remove it.
func (c *Controller) SetStreamListener(fn func(content, reasoning string)) {
	c.mu.Lock()
	c.onChunk = fn
	c.mu.Unlock()
}

// =============================================================================
// CHAT LIST
// =============================================================================

// LoadChats refreshes the chat list. For an authenticated user it first
// drops any other user's rows, then merges the backend's list into the
// local store; if the backend is unreachable it degrades to local-only
// and logs the failure.
func (c *Controller) LoadChats(ctx context.Context) error {
	if c.user.Authenticated() {
		if err := c.store.PurgeOtherUsers(ctx, c.user.ID); err != nil {
			return err
		}
		if err := c.syncFromRemote(ctx); err != nil {
			c.log.WithError(err).Warn("backend unreachable, using local chats")
		}
	}
	return c.refreshChats(ctx)
}

// syncFromRemote merges the backend's chat list into the local store.
func (c *Controller) syncFromRemote(ctx context.Context) error {
	if c.remote == nil || !c.remote.IsAuthenticated() {
		return nil
	}

	remoteChats, err := c.remote.ListChats(ctx, c.user.ID)
	if err != nil {
		return err
	}

	local, err := c.store.ListChats(ctx, c.user.ID)
	if err != nil {
		return err
	}

	for _, chat := range remote.Reconcile(local, remoteChats) {
		chat := chat
		if err := c.store.UpsertChat(ctx, &chat); err != nil {
			return err
		}
	}
	return nil
}

// refreshChats reloads the cached chat list from the store.
func (c *Controller) refreshChats(ctx context.Context) error {
	chats, err := c.store.ListChats(ctx, c.user.ID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.chats = chats
	c.mu.Unlock()
	return nil
}

// refreshMessages reloads the cached messages for the selected chat.
func (c *Controller) refreshMessages(ctx context.Context, chatID int64) error {
	msgs, err := c.store.Messages(ctx, chatID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.currentChatID == chatID {
		c.messages = msgs
	}
	c.mu.Unlock()
	return nil
}

// CreateNewChat creates and selects an empty chat. Requires a signed-in
// user so the chat has an owner to sync under.
func (c *Controller) CreateNewChat(ctx context.Context, modelID string) (*model.Chat, error) {
	if !c.user.Authenticated() {
		return nil, ErrAuthRequired
	}
	if modelID == "" {
		modelID = model.DefaultModel
	}

	chat := model.NewChat(c.user.ID, modelID)
	if err := c.store.CreateChat(ctx, chat); err != nil {
		return nil, err
	}

	if err := c.refreshChats(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.currentChatID = chat.ID
	c.messages = nil
	c.mu.Unlock()

	return chat, nil
}

// SelectChat makes the chat current and loads its messages.
func (c *Controller) SelectChat(ctx context.Context, id int64) error {
	if _, err := c.store.GetChat(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	c.currentChatID = id
	c.mu.Unlock()

	return c.refreshMessages(ctx, id)
}

// DeleteChat removes a chat everywhere. The backend delete runs first;
// if it fails the local copy is left untouched and the error returned,
// because a locally-deleted chat that still exists remotely would come
// back on the next sync.
func (c *Controller) DeleteChat(ctx context.Context, id int64) error {
	if c.remote != nil && c.remote.IsAuthenticated() {
		if err := c.remote.DeleteChat(ctx, id); err != nil {
			return fmt.Errorf("backend refused delete: %w", err)
		}
	}

	if err := c.store.DeleteChat(ctx, id); err != nil && !errors.Is(err, store.ErrChatNotFound) {
		return err
	}

	c.mu.Lock()
	if c.currentChatID == id {
		c.currentChatID = 0
		c.messages = nil
	}
	c.mu.Unlock()

	return c.refreshChats(ctx)
}

// =============================================================================
// SENDING AND STREAMING
// =============================================================================

// SendMessage sends the user's message in the selected chat and streams
// the assistant's reply, persisting every chunk as it arrives. It
// returns once the reply is complete, stopped, or failed.
//
// With no chat selected it is a no-op. While a reply is streaming it
// returns ErrStreamInFlight.
func (c *Controller) SendMessage(ctx context.Context, content, chatModel string) error {
	c.mu.Lock()
	chatID := c.currentChatID
	c.mu.Unlock()
	if chatID == 0 {
		return nil
	}

	if !c.streaming.CompareAndSwap(false, true) {
		return ErrStreamInFlight
	}
	defer c.streaming.Store(false)

	chat, err := c.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}

	count, err := c.store.CountMessages(ctx, chatID)
	if err != nil {
		return err
	}
	firstMessage := count == 0

	userMsg := model.NewUserMessage(chatID, content)
	if err := c.store.CreateMessage(ctx, userMsg); err != nil {
		return err
	}

	if firstMessage {
		c.applyTitle(ctx, chat, content)
	}

	if chatModel != "" && chatModel != chat.Model {
		if err := c.store.UpdateChatModel(ctx, chatID, chatModel); err != nil {
			return err
		}
		chat.Model = chatModel
	}

	placeholder := model.NewAssistantPlaceholder(chatID)
	if err := c.store.CreateMessage(ctx, placeholder); err != nil {
		return err
	}
	if err := c.refreshMessages(ctx, chatID); err != nil {
		return err
	}

	history, err := c.historyForCompletion(ctx, chatID, placeholder.ID)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelStream = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancelStream = nil
		c.mu.Unlock()
	}()

	result, streamErr := c.cloud.ChatStreamAccumulate(streamCtx, chat.Model, history,
		cloud.StreamOptions{Reasoning: c.reasoning.Supports(chat.Model)},
		c.persistChunk(placeholder.ID))

	return c.finishStream(ctx, chat, placeholder.ID, result, streamErr)
}

// persistChunk returns a stream handler that writes the accumulated
// reply to the store on every chunk. The write happens before the next
// chunk is read, so persisted state never trails by more than one
// chunk. A store failure aborts the stream.
func (c *Controller) persistChunk(messageID int64) cloud.StreamHandler {
	var content, reasoning string
	return func(chunk cloud.StreamChunk) error {
		if chunk.Empty() {
			return nil
		}
		content += chunk.Content()
		reasoning += chunk.Reasoning()
		if err := c.store.UpdateMessageContent(context.Background(), messageID, content, reasoning); err != nil {
			return err
		}
		c.mu.Lock()
		listener := c.onChunk
		c.mu.Unlock()
		if listener != nil {
			listener(chunk.Content(), chunk.Reasoning())
		}
		return nil
	}
}

// finishStream settles the assistant message after the stream ends.
//
//   - success: finalize, bump the chat's updatedAt, push a snapshot
//     (best-effort), refresh caches;
//   - user stop (context.Canceled): finalize with whatever streamed,
//     no apology, no sync — a stop is not a failure;
//   - anything else: replace the reply with the apology message, no
//     sync, and return the error.
func (c *Controller) finishStream(ctx context.Context, chat *model.Chat, messageID int64, result *cloud.StreamResult, streamErr error) error {
	switch {
	case streamErr == nil:
		if err := c.store.FinalizeMessage(ctx, messageID, result.Content, result.Reasoning); err != nil {
			return err
		}
		chat.Touch()
		if err := c.store.TouchChat(ctx, chat.ID, chat.UpdatedAt); err != nil {
			return err
		}
		c.pushSnapshot(ctx, chat.ID)
		if err := c.refreshMessages(ctx, chat.ID); err != nil {
			return err
		}
		return c.refreshChats(ctx)

	case errors.Is(streamErr, context.Canceled):
		c.log.WithField("chat_id", chat.ID).Info("stream stopped by user")
		if err := c.store.FinalizeMessage(context.Background(), messageID, result.Content, result.Reasoning); err != nil {
			return err
		}
		return c.refreshMessages(context.Background(), chat.ID)

	default:
		c.log.WithError(streamErr).WithField("chat_id", chat.ID).Error("stream failed")
		if err := c.store.FinalizeMessage(ctx, messageID, apologyMessage, ""); err != nil {
			c.log.WithError(err).Error("could not record stream failure")
		}
		if err := c.refreshMessages(ctx, chat.ID); err != nil {
			c.log.WithError(err).Warn("could not refresh messages after stream failure")
		}
		return streamErr
	}
}

// applyTitle titles a chat from its first message. Title generation is
// cosmetic: any failure inside GenerateTitle already resolved to the
// fallback, and a store failure here only logs.
func (c *Controller) applyTitle(ctx context.Context, chat *model.Chat, firstMessage string) {
	title := c.cloud.GenerateTitle(ctx, firstMessage)
	if title == "" {
		return
	}
	chat.Title = title
	chat.Touch()
	if err := c.store.UpdateChatTitle(ctx, chat.ID, title, chat.UpdatedAt); err != nil {
		c.log.WithError(err).Warn("could not save generated title")
		return
	}
	if err := c.refreshChats(ctx); err != nil {
		c.log.WithError(err).Warn("could not refresh chats after titling")
	}
}

// historyForCompletion builds the completion context: every settled
// message in the chat, oldest first. The placeholder and any stale
// streaming leftovers are excluded.
func (c *Controller) historyForCompletion(ctx context.Context, chatID, placeholderID int64) ([]cloud.ChatMessage, error) {
	msgs, err := c.store.Messages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	history := make([]cloud.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ID == placeholderID || msg.IsStreaming {
			continue
		}
		history = append(history, cloud.ChatMessage{Role: msg.Role.String(), Content: msg.Content})
	}
	return history, nil
}

// pushSnapshot uploads the chat and its messages to the backend.
// Best-effort: a failure is logged and local state stands.
func (c *Controller) pushSnapshot(ctx context.Context, chatID int64) {
	if c.remote == nil || !c.remote.IsAuthenticated() {
		return
	}

	chat, err := c.store.GetChat(ctx, chatID)
	if err != nil {
		c.log.WithError(err).Warn("snapshot skipped, chat unreadable")
		return
	}
	msgs, err := c.store.Messages(ctx, chatID)
	if err != nil {
		c.log.WithError(err).Warn("snapshot skipped, messages unreadable")
		return
	}

	if err := c.remote.PushSnapshot(ctx, chat, msgs); err != nil {
		c.log.WithError(err).WithField("chat_id", chatID).Warn("snapshot push failed")
	}
}

// StopStreaming cancels the in-flight stream, if any. Safe to call at
// any time, from any goroutine; calling it with nothing streaming does
// nothing.
func (c *Controller) StopStreaming() {
	c.mu.Lock()
	cancel := c.cancelStream
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// FinalizeStaleStreams clears streaming flags left behind by a crash.
// Call once on startup before loading any chat.
func (c *Controller) FinalizeStaleStreams(ctx context.Context) error {
	chats, err := c.store.ListChats(ctx, c.user.ID)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		msgs, err := c.store.Messages(ctx, chat.ID)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if !msg.IsStreaming {
				continue
			}
			if err := c.store.FinalizeMessage(ctx, msg.ID, msg.Content, msg.Reasoning); err != nil {
				return err
			}
		}
	}
	return nil
}
