package context

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/companion-ai/companion-core/internal/model"
)

// messageOverheadTokens is the fixed structural cost charged per
// message on top of its content (role markers, separators).
const messageOverheadTokens = 4

// EstimateTokens approximates the token cost of text without invoking
// a real tokenizer. It averages a word-count estimate (words * 1.3)
// and a character-count estimate (chars / 4) and rounds up. Empty
// input costs nothing.
//
// English prose averages roughly 1.3 tokens per word and 4 characters
// per token under BPE tokenizers; blending the two keeps the estimate
// stable across prose and code-like content.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	words := len(strings.Fields(text))
	chars := utf8.RuneCountInString(text)

	wordEstimate := float64(words) * 1.3
	charEstimate := float64(chars) / 4.0

	return int(math.Ceil((wordEstimate + charEstimate) / 2.0))
}

// EstimateConversationTokens returns the total estimated cost of a
// message history: each message's content estimate plus the fixed
// per-message overhead.
func EstimateConversationTokens(messages []model.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content) + messageOverheadTokens
	}
	return total
}
