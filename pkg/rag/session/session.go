package session

import (
	"strings"
	"time"

	"multimodal-chat-be/pkg/retrieval"
)

// MaxHistoryEntries caps session history to the most recent messages.
// Older entries are evicted FIFO on every append.
const MaxHistoryEntries = 7

// Message is one history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TempAssets tracks object-store keys of media uploaded during the session.
// They are deleted best-effort when the session ends.
type TempAssets struct {
	Images []string `json:"images"`
	Audio  []string `json:"audio"`
}

// Session is the per-conversation state. A session is created on the first
// turn with an unknown id and lives until an explicit end call deletes it.
// Mutation must happen under the store's per-session lock.
type Session struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	History []Message `json:"history"`

	// LastContext holds the evidence block of the most recent retrieval
	// turn. An elaborate-style follow-up may reuse it exactly once; the
	// next retrieval turn overwrites it and resets the counter.
	LastContext           string               `json:"last_context,omitempty"`
	LastContextReuseCount int                  `json:"last_context_reuse_count"`
	Citations             []retrieval.Citation `json:"citations,omitempty"`

	TempAssets TempAssets `json:"temp_assets"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendTurn records a user/assistant exchange and truncates history to the
// last MaxHistoryEntries messages.
func (s *Session) AppendTurn(userText, assistantText string) {
	s.History = append(s.History,
		Message{Role: "user", Content: userText},
		Message{Role: "assistant", Content: assistantText},
	)
	if len(s.History) > MaxHistoryEntries {
		s.History = s.History[len(s.History)-MaxHistoryEntries:]
	}
	s.UpdatedAt = time.Now()
}

// StoreContext overwrites the reusable context after a fresh retrieval turn.
func (s *Session) StoreContext(context string, citations []retrieval.Citation) {
	s.LastContext = context
	s.LastContextReuseCount = 0
	s.Citations = citations
}

// CanReuseContext reports whether a stored context exists and has not been
// reused yet. Each stored context may be reused at most once.
func (s *Session) CanReuseContext() bool {
	return s.LastContext != "" && s.LastContextReuseCount == 0
}

// MarkContextReused consumes the single reuse allowance.
func (s *Session) MarkContextReused() {
	s.LastContextReuseCount++
}

var elaboratePatterns = []string{
	"elaborate",
	"explain more",
	"tell me more",
	"more detail",
	"more details",
	"expand on that",
	"go deeper",
	"can you explain further",
}

// IsElaborateQuery reports whether a turn asks to expand on the previous
// answer, which makes it a candidate for context reuse.
func IsElaborateQuery(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, p := range elaboratePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
