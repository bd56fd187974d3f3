// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and persists safachat configuration.
//
// Configuration lives in ~/.safachat/config.toml with built-in
// defaults and environment overrides (OPENROUTER_API_KEY and the
// SAFACHAT_* variables) applied on top. Saves are atomic and keep the
// file at 0600 since it carries the API key.
//
// Watcher reloads the file when it changes on disk, debounced, so a
// running session picks up edits without a restart.
package config
