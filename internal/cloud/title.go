// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/safadev/safachat/internal/model"
	"github.com/safadev/safachat/internal/util"
)

// =============================================================================
// UNARY COMPLETION
// =============================================================================

// Complete performs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	reqBody.Stream = false

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &chatResp, nil
}

// =============================================================================
// TITLE GENERATION
// =============================================================================

const (
	// titleSystemPrompt instructs the title model.
	titleSystemPrompt = "Generate a short, descriptive title (max 6 words) for a conversation that starts with the following user message. Only return the title, nothing else."

	// titleTimeout bounds the title request; a slow title must never
	// hold up the conversation.
	titleTimeout = 10 * time.Second

	// titleMaxRunes is the longest title accepted from the model.
	titleMaxRunes = 50

	titleMaxTokens   = 20
	titleTemperature = 0.7

	// titleFallbackWords is how many words of the user's message make
	// up the fallback title.
	titleFallbackWords = 4
)

// GenerateTitle asks a small model for a chat title derived from the
// user's first message. If the request fails, returns an empty title,
// or returns something unreasonably long, it falls back to
// FallbackTitle. The returned title is always non-empty when
// firstMessage has any words.
func (c *Client) GenerateTitle(ctx context.Context, firstMessage string) string {
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	resp, err := c.Complete(ctx, ChatRequest{
		Model: model.TitleModel,
		Messages: []ChatMessage{
			NewSystemMessage(titleSystemPrompt),
			NewUserMessage(firstMessage),
		},
		MaxTokens:   titleMaxTokens,
		Temperature: titleTemperature,
	})
	if err != nil {
		c.log.WithError(err).Warn("title generation failed, using fallback")
		return FallbackTitle(firstMessage)
	}

	title := util.StripQuotes(resp.Content())
	if title == "" || len([]rune(title)) > titleMaxRunes {
		return FallbackTitle(firstMessage)
	}
	return title
}

// FallbackTitle derives a title from the message itself: its first four
// words, with "..." appended when the message has more.
func FallbackTitle(firstMessage string) string {
	return util.FirstWords(firstMessage, titleFallbackWords)
}
