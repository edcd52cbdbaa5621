package dto

import "multimodal-chat-be/pkg/retrieval"

// ChatTurnRequest is the multipart chat endpoint payload. Message, image and
// audio are all optional but at least one must be present; the controller
// enforces that before the service runs.
type ChatTurnRequest struct {
	Message   string `form:"message"`
	SessionID string `form:"session_id"`
}

type ChatTurnResponse struct {
	SessionID     string               `json:"session_id"`
	Answer        string               `json:"answer"`
	Citations     []retrieval.Citation `json:"citations"`
	LowConfidence bool                 `json:"low_confidence"`
	Intent        string               `json:"intent"`
}

type EndSessionRequest struct {
	SessionID string `form:"session_id" validate:"required"`
}

// CleanupSessionMessage is the payload of the async temp-asset cleanup
// message published when a session ends.
type CleanupSessionMessage struct {
	SessionID string   `json:"session_id"`
	Keys      []string `json:"keys"`
}

type TextSearchRequest struct {
	Query string `query:"q" validate:"required"`
	TopK  int    `query:"top_k"`
}

type TextSearchResponse struct {
	Query string          `json:"query"`
	Hits  []retrieval.Hit `json:"hits"`
}

type SparseBootstrapResponse struct {
	DocumentCount int `json:"document_count"`
}
