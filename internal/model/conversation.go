// Package model defines data structures for the companion core.
package model

// DefaultTitle is the placeholder title assigned to conversations until
// the first user message arrives and a real title can be derived.
const DefaultTitle = "New Conversation"

// Conversation represents a conversation thread. Timestamps are epoch
// milliseconds. MessageCount and LastMessage are derived at query time
// and are never stored.
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	Pinned    bool   `json:"pinned"`
	Archived  bool   `json:"archived"`

	MessageCount int    `json:"message_count,omitempty"`
	LastMessage  string `json:"last_message,omitempty"`
}

// ConversationWithMessages is a conversation together with its full
// message history, ordered oldest-first.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// UpdateConversationRequest is the request to update conversation
// metadata. Nil fields are left unchanged.
type UpdateConversationRequest struct {
	Title    *string `json:"title,omitempty"`
	Pinned   *bool   `json:"pinned,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Count         int            `json:"count"`
}

// StoreStats holds aggregate counts across the whole store.
type StoreStats struct {
	TotalConversations int `json:"total_conversations"`
	TotalMessages      int `json:"total_messages"`
	TotalTokens        int `json:"total_tokens"`
}
