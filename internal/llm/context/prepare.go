package context

import (
	"errors"

	"github.com/companion-ai/companion-core/internal/model"
)

// ErrNoRoomForHistory is returned by PrepareForAPI when a non-empty
// conversation truncates to nothing — either the system prompt alone
// exhausts the context window, or no single message fits the residual
// budget. The chat flow surfaces this to the user ("conversation is
// too large for this model") instead of silently submitting an empty
// history.
var ErrNoRoomForHistory = errors.New("context: no token budget left for conversation history")

// PrepareOptions tune PrepareForAPI. Zero values select the defaults:
// keep-first-last truncation and DefaultResponseReserve.
type PrepareOptions struct {
	Strategy           Strategy
	ReserveForResponse int
}

// PreparedRequest is the exact payload the chat flow hands to an LLM
// client, along with truncation diagnostics for logging and UI.
type PreparedRequest struct {
	SystemPrompt    string
	Messages        []model.Message
	Truncated       bool
	OriginalCount   int
	FinalCount      int
	EstimatedTokens int
}

// PrepareForAPI composes the budgeter and the truncation engine into
// the single call site the chat flow uses: it computes the history
// budget for the model, truncates the history with the selected
// strategy, and reports what survived.
func PrepareForAPI(messages []model.Message, systemPrompt, modelID string, opts PrepareOptions) (*PreparedRequest, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyKeepFirstLast
	}

	budget := AvailableTokens(modelID, systemPrompt, opts.ReserveForResponse)

	var result Result
	if budget <= 0 {
		// No room for any history; an empty conversation is still fine.
		result = Result{
			Truncated:    len(messages) > 0,
			RemovedCount: len(messages),
		}
	} else {
		result = Truncate(messages, budget, strategy)
	}

	if len(messages) > 0 && len(result.Messages) == 0 {
		return nil, ErrNoRoomForHistory
	}

	return &PreparedRequest{
		SystemPrompt:    systemPrompt,
		Messages:        result.Messages,
		Truncated:       result.Truncated,
		OriginalCount:   len(messages),
		FinalCount:      len(result.Messages),
		EstimatedTokens: EstimateConversationTokens(result.Messages) + EstimateTokens(systemPrompt),
	}, nil
}

// WouldExceedLimit reports whether appending newMessage to the current
// history would push the estimated total past the available budget for
// the model. Used to pre-flight warn before sending.
func WouldExceedLimit(current []model.Message, newMessage model.Message, modelID, systemPrompt string) bool {
	budget := AvailableTokens(modelID, systemPrompt, 0)
	total := EstimateConversationTokens(current) +
		EstimateTokens(newMessage.Content) + messageOverheadTokens
	return total > budget
}
