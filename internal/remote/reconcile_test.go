// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/safadev/safachat/internal/model"
)

func chatAt(id int64, title string, updatedAt time.Time) model.Chat {
	return model.Chat{ID: id, Title: title, Model: "m", UserID: "u", CreatedAt: updatedAt, UpdatedAt: updatedAt}
}

func TestReconcile(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		local   []model.Chat
		remote  []model.Chat
		wantIDs []int64
	}{
		{
			name:    "remote newer wins",
			local:   []model.Chat{chatAt(1, "old", base)},
			remote:  []model.Chat{chatAt(1, "new", base.Add(time.Hour))},
			wantIDs: []int64{1},
		},
		{
			name:    "remote older ignored",
			local:   []model.Chat{chatAt(1, "current", base)},
			remote:  []model.Chat{chatAt(1, "stale", base.Add(-time.Hour))},
			wantIDs: nil,
		},
		{
			name:    "equal timestamps keep local",
			local:   []model.Chat{chatAt(1, "local", base)},
			remote:  []model.Chat{chatAt(1, "remote", base)},
			wantIDs: nil,
		},
		{
			name:    "unknown remote inserted",
			local:   []model.Chat{chatAt(1, "mine", base)},
			remote:  []model.Chat{chatAt(1, "mine", base), chatAt(2, "other device", base)},
			wantIDs: []int64{2},
		},
		{
			name:    "local absent remotely is kept",
			local:   []model.Chat{chatAt(1, "unpushed", base)},
			remote:  nil,
			wantIDs: nil,
		},
		{
			name:    "empty local inserts everything",
			local:   nil,
			remote:  []model.Chat{chatAt(1, "a", base), chatAt(2, "b", base)},
			wantIDs: []int64{1, 2},
		},
		{
			name:    "mixed",
			local:   []model.Chat{chatAt(1, "stays", base), chatAt(2, "loses", base)},
			remote:  []model.Chat{chatAt(1, "older", base.Add(-time.Minute)), chatAt(2, "wins", base.Add(time.Minute)), chatAt(3, "new", base)},
			wantIDs: []int64{2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.local, tt.remote)
			require.Len(t, got, len(tt.wantIDs))
			for i, id := range tt.wantIDs {
				require.Equal(t, id, got[i].ID, "upsert[%d]", i)
			}
		})
	}
}

func TestReconcileUsesRemoteFields(t *testing.T) {
	base := time.Now()
	local := []model.Chat{chatAt(1, "local title", base)}
	remote := []model.Chat{{ID: 1, Title: "remote title", Model: "remote-model", UserID: "u", CreatedAt: base, UpdatedAt: base.Add(time.Hour)}}

	got := Reconcile(local, remote)
	require.Len(t, got, 1)
	require.Equal(t, "remote title", got[0].Title)
	require.Equal(t, "remote-model", got[0].Model)
}
