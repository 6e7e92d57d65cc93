package context

import (
	"math"

	"github.com/companion-ai/companion-core/internal/model"
)

// modelRegistry maps model identifiers to their context window sizes
// in tokens. Models not in the registry fall back to
// defaultContextWindow.
var modelRegistry = map[string]int{
	// Anthropic Claude.
	"claude-3-5-sonnet-20241022": 200_000,
	"claude-3-5-haiku-20241022":  200_000,
	"claude-3-opus-20240229":     200_000,
	"claude-3-sonnet-20240229":   200_000,
	"claude-3-haiku-20240307":    200_000,

	// OpenAI.
	"gpt-4o":        128_000,
	"gpt-4o-mini":   128_000,
	"gpt-4-turbo":   128_000,
	"gpt-4":         8_192,
	"gpt-3.5-turbo": 16_385,
}

// defaultContextWindow is assumed for unknown model identifiers. It is
// deliberately below the large frontier windows so that budgeting for
// an unrecognized model errs toward truncating early rather than
// overflowing the provider.
const defaultContextWindow = 100_000

// DefaultResponseReserve is the number of tokens held back for the
// model's response when the caller does not specify a reservation.
const DefaultResponseReserve = 4096

// ContextLimitForModel returns the context window size in tokens for
// the given model identifier, or defaultContextWindow when the model
// is unknown.
func ContextLimitForModel(modelID string) int {
	if limit, ok := modelRegistry[modelID]; ok {
		return limit
	}
	return defaultContextWindow
}

// AvailableTokens returns the token budget left for conversation
// history after the system prompt and the response reservation are
// deducted from the model's context window. A non-positive
// reserveForResponse selects DefaultResponseReserve.
//
// The result may be negative when the system prompt alone exceeds the
// window; callers must treat a non-positive budget as "no room for
// history".
func AvailableTokens(modelID, systemPrompt string, reserveForResponse int) int {
	if reserveForResponse <= 0 {
		reserveForResponse = DefaultResponseReserve
	}
	return ContextLimitForModel(modelID) - EstimateTokens(systemPrompt) - reserveForResponse
}

// Usage describes how much of a model's context window a conversation
// occupies.
type Usage struct {
	// Used is the estimated token count of the system prompt plus the
	// full message history.
	Used int `json:"used"`

	// Available is the model's total context window.
	Available int `json:"available"`

	// Percentage is Used relative to Available, rounded. It is not
	// clamped at 100 — a conversation can exceed the window before
	// truncation runs, and display layers decide how to render that.
	Percentage int `json:"percentage"`
}

// ContextUsage computes the context occupancy of a conversation for a
// given model and system prompt.
func ContextUsage(messages []model.Message, modelID, systemPrompt string) Usage {
	used := EstimateTokens(systemPrompt) + EstimateConversationTokens(messages)
	available := ContextLimitForModel(modelID)

	return Usage{
		Used:       used,
		Available:  available,
		Percentage: int(math.Round(float64(used) / float64(available) * 100.0)),
	}
}
