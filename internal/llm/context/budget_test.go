package context

import (
	"strings"
	"testing"

	"github.com/companion-ai/companion-core/internal/model"
)

func TestContextLimitForModel(t *testing.T) {
	t.Parallel()

	if got := ContextLimitForModel("gpt-4"); got != 8_192 {
		t.Errorf("ContextLimitForModel(gpt-4) = %d, want 8192", got)
	}
	if got := ContextLimitForModel("claude-3-5-sonnet-20241022"); got != 200_000 {
		t.Errorf("ContextLimitForModel(claude-3-5-sonnet) = %d, want 200000", got)
	}
	if got := ContextLimitForModel("some-future-model"); got != defaultContextWindow {
		t.Errorf("ContextLimitForModel(unknown) = %d, want default %d", got, defaultContextWindow)
	}
}

func TestAvailableTokens(t *testing.T) {
	t.Parallel()

	// Default reserve applies when the caller passes a non-positive one.
	if got := AvailableTokens("gpt-4", "", 0); got != 8_192-DefaultResponseReserve {
		t.Errorf("AvailableTokens(gpt-4, empty, 0) = %d, want %d", got, 8_192-DefaultResponseReserve)
	}

	prompt := "you are a helpful assistant"
	want := 8_192 - EstimateTokens(prompt) - 1000
	if got := AvailableTokens("gpt-4", prompt, 1000); got != want {
		t.Errorf("AvailableTokens() = %d, want %d", got, want)
	}
}

func TestAvailableTokensNegativeWhenPromptTooLarge(t *testing.T) {
	t.Parallel()

	// A system prompt far beyond gpt-4's 8k window.
	prompt := strings.Repeat("a", 100_000)
	if got := AvailableTokens("gpt-4", prompt, 0); got > 0 {
		t.Errorf("AvailableTokens() = %d, want non-positive for oversized prompt", got)
	}
}

func TestContextUsage(t *testing.T) {
	t.Parallel()

	messages := []model.Message{
		{Role: model.RoleUser, Content: "hello world"},
	}
	prompt := "be brief"

	usage := ContextUsage(messages, "gpt-4", prompt)
	wantUsed := EstimateTokens(prompt) + EstimateConversationTokens(messages)
	if usage.Used != wantUsed {
		t.Errorf("Used = %d, want %d", usage.Used, wantUsed)
	}
	if usage.Available != 8_192 {
		t.Errorf("Available = %d, want 8192", usage.Available)
	}
}

func TestContextUsagePercentageMonotonic(t *testing.T) {
	t.Parallel()

	prompt := "you are a helpful assistant"
	var messages []model.Message

	previous := -1
	for i := 0; i < 50; i++ {
		messages = append(messages, model.Message{
			Role:    model.RoleUser,
			Content: strings.Repeat("more context every turn ", 20),
		})
		usage := ContextUsage(messages, "gpt-4", prompt)
		if usage.Percentage < previous {
			t.Fatalf("percentage dropped from %d to %d after appending", previous, usage.Percentage)
		}
		previous = usage.Percentage
	}

	// Past the window the percentage keeps growing; it is not clamped.
	if previous <= 100 {
		t.Errorf("final percentage = %d, want > 100 for an overflowing conversation", previous)
	}
}
