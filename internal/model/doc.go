// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
//
// The JSON tags on Chat and Message match the backend wire contract
// (camelCase: userId, chatId, isStreaming, ...), so the same structs are
// used for local persistence rows and for sync payloads.
package model
