// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for safachat.
//
// It contains atomic file writing (used by the config layer) and
// Unicode-safe string helpers (used for title fallbacks and display
// truncation). Nothing in this package depends on the rest of the
// application.
package util
