// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import "github.com/safadev/safachat/internal/model"

// Reconcile merges a remote chat list into the local one and returns
// the chats that should be upserted locally.
//
// Rules, last-write-wins by UpdatedAt:
//   - a remote chat unknown locally is inserted;
//   - a remote chat strictly newer than the local copy replaces it;
//   - a remote chat equal to or older than the local copy is ignored
//     (the local copy may carry unpushed work);
//   - a local chat absent remotely is never deleted here — deletion is
//     only ever explicit, through Client.DeleteChat.
func Reconcile(local, remote []model.Chat) []model.Chat {
	byID := make(map[int64]model.Chat, len(local))
	for _, chat := range local {
		byID[chat.ID] = chat
	}

	var upserts []model.Chat
	for _, remoteChat := range remote {
		localChat, known := byID[remoteChat.ID]
		if !known || remoteChat.UpdatedAt.After(localChat.UpdatedAt) {
			upserts = append(upserts, remoteChat)
		}
	}
	return upserts
}
