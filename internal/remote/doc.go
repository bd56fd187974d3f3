// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package remote synchronizes local chats with the backend service.
//
// The backend is the source of truth's peer, not its master: sync is
// best-effort and last-write-wins by chat updatedAt. Listing and
// pushing degrade silently to local-only operation when the backend is
// unreachable; deleting a chat is the one fail-closed operation, since
// a chat that survives remotely will resurrect on the next sync.
//
// Reconcile is a pure function over local and remote snapshots so the
// merge rules stay testable without a server.
package remote
