package context

import (
	"fmt"

	"github.com/companion-ai/companion-core/internal/model"
)

// Strategy selects which truncation policy Truncate applies when a
// conversation exceeds its token budget.
type Strategy string

const (
	// StrategyKeepRecent keeps the newest messages that fit, dropping
	// older ones.
	StrategyKeepRecent Strategy = "keep-recent"

	// StrategyKeepFirstLast keeps the very first message (the
	// conversation's context anchor) unconditionally, then keeps the
	// newest of the rest, inserting a marker where history was
	// omitted. This is the default.
	StrategyKeepFirstLast Strategy = "keep-first-last"

	// StrategySlidingWindow keeps at most the last 20 messages,
	// falling back to keep-recent if that window still exceeds the
	// budget.
	StrategySlidingWindow Strategy = "sliding-window"

	// StrategySummarize is intended to condense dropped history via an
	// LLM call. Summarization is not implemented; the strategy
	// currently behaves exactly like keep-recent. Kept as a named
	// strategy so callers that select it keep working when
	// summarization lands.
	StrategySummarize Strategy = "summarize"
)

// slidingWindowSize is the fixed message window for
// StrategySlidingWindow.
const slidingWindowSize = 20

// Result is the outcome of a truncation pass. Messages are always in
// chronological (oldest-first) order. RemovedCount counts dropped
// original messages only; a synthetic marker inserted by
// keep-first-last is extra and never counted as a removal.
type Result struct {
	Messages     []model.Message
	Truncated    bool
	RemovedCount int
}

// Truncate selects the subset of messages to submit under maxTokens
// using the given strategy. If the whole history already fits it is
// returned unchanged. An unknown strategy falls back to
// keep-first-last.
func Truncate(messages []model.Message, maxTokens int, strategy Strategy) Result {
	if EstimateConversationTokens(messages) <= maxTokens {
		return Result{Messages: messages}
	}

	switch strategy {
	case StrategyKeepRecent, StrategySummarize:
		return keepRecent(messages, maxTokens)
	case StrategySlidingWindow:
		return slidingWindow(messages, maxTokens)
	default:
		return keepFirstLast(messages, maxTokens)
	}
}

// keepRecent walks the history newest to oldest, greedily keeping each
// message that still fits the remaining budget. A message that would
// overflow is dropped and counted, and the walk continues so that
// smaller, earlier messages may still be kept. The returned slice is
// restored to chronological order.
func keepRecent(messages []model.Message, maxTokens int) Result {
	kept := make([]model.Message, 0, len(messages))
	total := 0
	removed := 0

	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(messages[i].Content) + messageOverheadTokens
		if total+cost > maxTokens {
			removed++
			continue
		}
		total += cost
		kept = append(kept, messages[i])
	}

	// Restore chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	return Result{
		Messages:     kept,
		Truncated:    removed > 0,
		RemovedCount: removed,
	}
}

// keepFirstLast keeps the first message unconditionally, spends the
// residual budget on the newest of the remaining messages, and, when
// anything was dropped, inserts a synthetic system message between the
// anchor and the retained tail stating how much history was omitted.
func keepFirstLast(messages []model.Message, maxTokens int) Result {
	if len(messages) == 0 {
		return Result{Messages: messages}
	}

	first := messages[0]
	residual := maxTokens - EstimateTokens(first.Content) - messageOverheadTokens

	rest := keepRecent(messages[1:], residual)
	if !rest.Truncated {
		return Result{
			Messages: append([]model.Message{first}, rest.Messages...),
		}
	}

	marker := model.Message{
		ConversationID: first.ConversationID,
		Role:           model.RoleSystem,
		Content:        omissionMarker(rest.RemovedCount),
	}

	result := make([]model.Message, 0, len(rest.Messages)+2)
	result = append(result, first, marker)
	result = append(result, rest.Messages...)

	return Result{
		Messages:     result,
		Truncated:    true,
		RemovedCount: rest.RemovedCount,
	}
}

// slidingWindow keeps at most the last slidingWindowSize messages,
// then applies keepRecent to the window if it still exceeds the
// budget. Removals from both steps are aggregated.
func slidingWindow(messages []model.Message, maxTokens int) Result {
	window := messages
	removed := 0
	if len(messages) > slidingWindowSize {
		removed = len(messages) - slidingWindowSize
		window = messages[removed:]
	}

	if EstimateConversationTokens(window) <= maxTokens {
		return Result{
			Messages:     window,
			Truncated:    removed > 0,
			RemovedCount: removed,
		}
	}

	inner := keepRecent(window, maxTokens)
	return Result{
		Messages:     inner.Messages,
		Truncated:    true,
		RemovedCount: removed + inner.RemovedCount,
	}
}

func omissionMarker(count int) string {
	if count == 1 {
		return "[1 earlier message omitted to fit the context window]"
	}
	return fmt.Sprintf("[%d earlier messages omitted to fit the context window]", count)
}
