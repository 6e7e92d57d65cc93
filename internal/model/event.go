package model

import "time"

// TokenEvent is an SSE event carrying one streamed assistant token.
type TokenEvent struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

// MessageCompleteEvent signals that the assistant message finished
// streaming and was persisted.
type MessageCompleteEvent struct {
	Message Message `json:"message"`
}

// ErrorEvent is an SSE error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps idle SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
