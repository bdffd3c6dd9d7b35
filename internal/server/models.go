package server

import (
	"encoding/json"
	"time"
)

// HTTPError is the unified error envelope returned by every endpoint.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// ChatTurn is a prior turn supplied by the client.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one user turn. ConversationID is empty on the first turn;
// the server creates a conversation and returns its id. History seeds the
// model context for clients that kept their own transcript; once a
// conversation exists the persisted history is authoritative and History
// is ignored.
type ChatRequest struct {
	Message        string     `json:"message"`
	ConversationID string     `json:"conversation_id,omitempty"`
	History        []ChatTurn `json:"history,omitempty"`
}

type RenameConversationRequest struct {
	Title string `json:"title"`
}

// ChatResponse carries the assistant's move. Results is present only when
// Type is "results".
type ChatResponse struct {
	Type           string          `json:"type"`
	Message        string          `json:"message"`
	ConversationID string          `json:"conversation_id"`
	Results        json.RawMessage `json:"results,omitempty"`
}

type ConversationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MessageResponse struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Results   json.RawMessage `json:"results,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
