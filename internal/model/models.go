// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// MODEL CATALOG
// =============================================================================

// Default model identifiers. These are OpenRouter model ids.
const (
	// DefaultModel is the model new chats start with.
	DefaultModel = "openai/gpt-4o"

	// TitleModel is the lightweight model used for title generation.
	TitleModel = "mistralai/mistral-7b-instruct:free"
)

// ModelInfo describes a selectable chat model.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Free indicates a free-tier model
	Free bool `json:"free"`
}

// Models is the registry of models offered in the picker.
var Models = []ModelInfo{
	{ID: "openai/gpt-4o", Name: "GPT-4o"},
	{ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini"},
	{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet"},
	{ID: "mistralai/mistral-7b-instruct:free", Name: "Mistral 7B Instruct", Free: true},
	{ID: "meta-llama/llama-3-8b-instruct:free", Name: "Llama 3 8B Instruct", Free: true},
	{ID: "deepseek/deepseek-r1:free", Name: "DeepSeek R1", Free: true},
}

// =============================================================================
// REASONING CAPABILITY
// =============================================================================

// ReasoningSet decides whether a model emits reasoning tokens. The
// markers are substrings matched against the model identifier and are
// injected from configuration rather than hardcoded at call sites, so
// new reasoning models don't require a code change.
type ReasoningSet struct {
	markers []string
}

// DefaultReasoningMarkers are the identifier fragments of known
// reasoning-capable model families.
var DefaultReasoningMarkers = []string{
	"deepseek-r1",
	"o1",
	"o3",
	"qwq",
	"thinking",
}

// NewReasoningSet builds a set from the given markers. Empty markers
// are dropped; nil or empty input falls back to the defaults.
func NewReasoningSet(markers []string) ReasoningSet {
	if len(markers) == 0 {
		markers = DefaultReasoningMarkers
	}
	cleaned := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			cleaned = append(cleaned, m)
		}
	}
	return ReasoningSet{markers: cleaned}
}

// Supports reports whether the model identifier matches a reasoning
// marker.
func (r ReasoningSet) Supports(modelID string) bool {
	id := strings.ToLower(modelID)
	for _, m := range r.markers {
		if strings.Contains(id, m) {
			return true
		}
	}
	return false
}

// Markers returns a copy of the configured markers.
func (r ReasoningSet) Markers() []string {
	out := make([]string, len(r.markers))
	copy(out, r.markers)
	return out
}
