package model

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message represents a single conversation message. A message is owned
// by exactly one conversation and is deleted with it. CreatedAt is
// epoch milliseconds and is the ordering key within a conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`

	// ScreenshotPath references an externally captured image attached
	// to the message. Empty when the message has no screenshot.
	ScreenshotPath string `json:"screenshot_path,omitempty"`

	// TokensUsed is the actual token count reported by the provider
	// for this message, or 0 when unknown.
	TokensUsed int `json:"tokens_used"`

	CreatedAt int64 `json:"created_at"`
}

// SendMessageRequest is the request to send a new user message.
type SendMessageRequest struct {
	Content        string `json:"content"`
	Model          string `json:"model,omitempty"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}
