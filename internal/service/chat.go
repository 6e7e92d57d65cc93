// Package service provides the chat flow: persisting user messages,
// preparing a budgeted context, calling the LLM, and persisting the
// assistant's reply.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/companion-ai/companion-core/internal/llm"
	llmcontext "github.com/companion-ai/companion-core/internal/llm/context"
	"github.com/companion-ai/companion-core/internal/model"
	"github.com/companion-ai/companion-core/internal/store"
	"github.com/companion-ai/companion-core/pkg/logger"
	"github.com/companion-ai/companion-core/pkg/metrics"
)

// ChatOptions configure the chat flow's defaults. Zero values select
// the provider's default model, the default response reserve, and
// keep-first-last truncation.
type ChatOptions struct {
	SystemPrompt  string
	DefaultModel  string
	ReserveTokens int
	Strategy      llmcontext.Strategy
}

// ChatService runs the send/stream flow against the store and the LLM
// client.
type ChatService struct {
	store  *store.Store
	client llm.Client
	opts   ChatOptions
	logger *logger.Logger
}

// NewChatService creates a new chat service.
func NewChatService(st *store.Store, client llm.Client, opts ChatOptions, log *logger.Logger) *ChatService {
	return &ChatService{
		store:  st,
		client: client,
		opts:   opts,
		logger: log,
	}
}

// Send persists the user message, runs a completion over the budgeted
// history, and persists the assistant reply. Both stored messages are
// returned.
func (s *ChatService) Send(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, *model.Message, error) {
	userMsg, prepared, modelID, err := s.begin(conversationID, req)
	if err != nil {
		return nil, nil, err
	}

	resp, err := s.client.Complete(ctx, &llm.CompletionRequest{
		Model:        modelID,
		SystemPrompt: prepared.SystemPrompt,
		Messages:     toChatMessages(prepared.Messages),
	})
	if err != nil {
		return userMsg, nil, fmt.Errorf("service: completion: %w", err)
	}

	assistantMsg, err := s.finish(conversationID, modelID, resp)
	if err != nil {
		return userMsg, nil, err
	}
	return userMsg, assistantMsg, nil
}

// SendStream is Send with the assistant reply streamed token by token
// through onToken before it is persisted.
func (s *ChatService) SendStream(ctx context.Context, conversationID string, req *model.SendMessageRequest, onToken llm.StreamCallback) (*model.Message, *model.Message, error) {
	userMsg, prepared, modelID, err := s.begin(conversationID, req)
	if err != nil {
		return nil, nil, err
	}

	resp, err := s.client.CompleteStream(ctx, &llm.CompletionRequest{
		Model:        modelID,
		SystemPrompt: prepared.SystemPrompt,
		Messages:     toChatMessages(prepared.Messages),
	}, onToken)
	if err != nil {
		return userMsg, nil, fmt.Errorf("service: stream: %w", err)
	}

	assistantMsg, err := s.finish(conversationID, modelID, resp)
	if err != nil {
		return userMsg, nil, err
	}
	return userMsg, assistantMsg, nil
}

// begin persists the user message and prepares the budgeted history
// for the LLM call.
func (s *ChatService) begin(conversationID string, req *model.SendMessageRequest) (*model.Message, *llmcontext.PreparedRequest, string, error) {
	modelID := s.resolveModel(req.Model)

	userMsg, err := s.store.AddMessage(conversationID, store.AddMessageParams{
		Role:           model.RoleUser,
		Content:        req.Content,
		ScreenshotPath: req.ScreenshotPath,
		TokensUsed:     llmcontext.EstimateTokens(req.Content),
	})
	if err != nil {
		return nil, nil, "", err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	history, err := s.store.GetMessages(conversationID, store.MessageListOptions{})
	if err != nil {
		return userMsg, nil, "", fmt.Errorf("service: load history: %w", err)
	}

	prepared, err := llmcontext.PrepareForAPI(history, s.opts.SystemPrompt, modelID, llmcontext.PrepareOptions{
		Strategy:           s.opts.Strategy,
		ReserveForResponse: s.opts.ReserveTokens,
	})
	if err != nil {
		return userMsg, nil, "", err
	}

	if prepared.Truncated {
		removed := prepared.OriginalCount - prepared.FinalCount
		if removed < 0 {
			removed = 0
		}
		metrics.RecordTruncation(string(s.strategy()), removed)
		s.logger.Info("context truncated",
			zap.String("conversation_id", conversationID),
			zap.String("model", modelID),
			zap.Int("original_count", prepared.OriginalCount),
			zap.Int("final_count", prepared.FinalCount),
			zap.Int("estimated_tokens", prepared.EstimatedTokens),
		)
	}

	return userMsg, prepared, modelID, nil
}

// finish persists the assistant reply with the provider's token
// accounting, estimating when the provider reported none.
func (s *ChatService) finish(conversationID, modelID string, resp *llm.CompletionResponse) (*model.Message, error) {
	tokens := resp.TokensOut
	if tokens == 0 {
		tokens = llmcontext.EstimateTokens(resp.Content)
	}

	assistantMsg, err := s.store.AddMessage(conversationID, store.AddMessageParams{
		Role:       model.RoleAssistant,
		Content:    resp.Content,
		TokensUsed: tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("service: persist assistant message: %w", err)
	}

	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	metrics.RecordLLMStream(resp.Model, "success", float64(resp.LatencyMs)/1000.0, resp.TokensIn, resp.TokensOut)
	return assistantMsg, nil
}

// ContextUsage reports how much of the model's window the conversation
// occupies, for the UI's context meter.
func (s *ChatService) ContextUsage(conversationID, modelID string) (*llmcontext.Usage, error) {
	history, err := s.store.GetMessages(conversationID, store.MessageListOptions{})
	if err != nil {
		return nil, fmt.Errorf("service: load history: %w", err)
	}
	usage := llmcontext.ContextUsage(history, s.resolveModel(modelID), s.opts.SystemPrompt)
	return &usage, nil
}

// Preflight reports whether sending content now would overflow the
// model's budget, so the UI can warn before submitting.
func (s *ChatService) Preflight(conversationID, modelID, content string) (bool, error) {
	history, err := s.store.GetMessages(conversationID, store.MessageListOptions{})
	if err != nil {
		return false, fmt.Errorf("service: load history: %w", err)
	}
	next := model.Message{Role: model.RoleUser, Content: content}
	return llmcontext.WouldExceedLimit(history, next, s.resolveModel(modelID), s.opts.SystemPrompt), nil
}

func (s *ChatService) resolveModel(requested string) string {
	if requested != "" {
		return requested
	}
	return s.opts.DefaultModel
}

func (s *ChatService) strategy() llmcontext.Strategy {
	if s.opts.Strategy == "" {
		return llmcontext.StrategyKeepFirstLast
	}
	return s.opts.Strategy
}

func toChatMessages(messages []model.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(messages))
	for i, msg := range messages {
		out[i] = llm.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return out
}
