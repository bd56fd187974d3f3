// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is one decoded SSE event from a streaming completion.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
			Role      string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Content returns the content delta from the first choice.
func (c *StreamChunk) Content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// Reasoning returns the reasoning delta from the first choice.
func (c *StreamChunk) Reasoning() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Reasoning
	}
	return ""
}

// Empty reports whether neither content nor reasoning arrived.
func (c *StreamChunk) Empty() bool {
	return c.Content() == "" && c.Reasoning() == ""
}

// StreamHandler receives each decoded chunk. Returning an error aborts
// the stream and surfaces that error from ChatStream.
type StreamHandler func(chunk StreamChunk) error

// StreamOptions tunes a single streaming call.
type StreamOptions struct {
	// Reasoning requests reasoning deltas; set for models known to
	// emit them.
	Reasoning bool

	// Temperature and MaxTokens are passed through when non-zero.
	Temperature float64
	MaxTokens   int
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming chat completion and calls handler for
// each chunk. It returns when the server sends [DONE], the body hits
// EOF, the handler returns an error, or ctx is cancelled (in which case
// the returned error wraps context.Canceled so callers can tell a user
// abort from a failure).
func (c *Client) ChatStream(ctx context.Context, modelID string, messages []ChatMessage, opts StreamOptions, handler StreamHandler) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	reqBody := ChatRequest{
		Model:       modelID,
		Messages:    messages,
		Stream:      true,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.Reasoning {
		reqBody.Reasoning = &ReasoningOptions{Effort: "medium", Exclude: false}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return c.handleErrorResponse(resp.StatusCode, body)
	}

	return c.processStream(ctx, resp.Body, handler)
}

// processStream decodes SSE lines from body until [DONE] or EOF.
//
// Lines that are not "data: " payloads (comments, event ids, blank
// keep-alives) are skipped. A data line that fails to decode as JSON is
// logged and skipped; a single bad line never kills the stream.
func (c *Client) processStream(ctx context.Context, body io.Reader, handler StreamHandler) error {
	reader := bufio.NewReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if procErr := c.processLine(line, handler); procErr != nil {
				if errors.Is(procErr, errStreamDone) {
					return nil
				}
				return procErr
			}
		}
		if err != nil {
			if err == io.EOF {
				// Server closed without [DONE]; treat what we have
				// as the complete reply.
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream read: %w", err)
		}
	}
}

// errStreamDone signals the [DONE] sentinel internally.
var errStreamDone = errors.New("stream done")

func (c *Client) processLine(line string, handler StreamHandler) error {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data: ") {
		return nil
	}

	data := strings.TrimPrefix(line, "data: ")
	if data == "[DONE]" {
		return errStreamDone
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		c.log.WithError(err).Debug("skipping malformed stream chunk")
		return nil
	}

	return handler(chunk)
}

// =============================================================================
// ACCUMULATED STREAMING
// =============================================================================

// StreamResult is the assembled output of a completed stream.
type StreamResult struct {
	Content   string
	Reasoning string
	Chunks    int
}

// ChatStreamAccumulate streams a completion and returns the assembled
// content and reasoning. Chunks arrive at the handler first, then are
// appended, so the final result equals the concatenation of every
// delta in arrival order.
func (c *Client) ChatStreamAccumulate(ctx context.Context, modelID string, messages []ChatMessage, opts StreamOptions, handler StreamHandler) (*StreamResult, error) {
	var content, reasoning strings.Builder
	chunks := 0

	err := c.ChatStream(ctx, modelID, messages, opts, func(chunk StreamChunk) error {
		if handler != nil {
			if err := handler(chunk); err != nil {
				return err
			}
		}
		content.WriteString(chunk.Content())
		reasoning.WriteString(chunk.Reasoning())
		chunks++
		return nil
	})

	result := &StreamResult{
		Content:   content.String(),
		Reasoning: reasoning.String(),
		Chunks:    chunks,
	}
	if err != nil {
		return result, err
	}
	return result, nil
}
