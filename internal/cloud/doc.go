// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud implements the OpenRouter completion client.
//
// OpenRouter exposes many model providers behind one OpenAI-compatible
// API. This package covers the two calls the app makes: streaming chat
// completions over SSE (with optional reasoning deltas for models that
// emit them) and the small non-streaming completion used to generate
// chat titles.
//
// Streaming requests run on a dedicated http.Client with no timeout;
// their lifetime is bounded by the caller's context. Unary requests
// share a pooled client with a fixed timeout.
package cloud
