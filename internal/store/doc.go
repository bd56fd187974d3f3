// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the local chat database for safachat.
//
// It is the working copy during an active session: a SQLite file with a
// chats table and a messages table, keyed by auto-incrementing ids.
// The remote backend (package remote) is the durable system of record
// for authenticated users; reconciliation between the two happens in
// the session controller.
//
// All operations take a context and return errors wrapping
// ErrUnavailable when the underlying engine fails, so callers can
// degrade to best-effort in-memory state.
package store
