// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session orchestrates one user's chat session: the selected
// chat, its messages, the in-flight stream, and the interplay between
// local storage, the completion API, and backend sync.
//
// The controller allows at most one in-flight stream. SendMessage
// persists every chunk before reading the next one, so a crash mid
// stream loses at most the unread tail. Backend sync is best-effort
// everywhere except chat deletion, which is fail-closed: a chat that
// survives remotely would resurrect on the next sync.
package session
