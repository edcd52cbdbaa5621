package events

import "time"

// Event type codes published by the chat core.
const (
	TypeTurnCompleted = "TURN_COMPLETED"
	TypeSessionEnded  = "SESSION_ENDED"
)

// NewTurnCompletedEvent reports one finished chat turn for telemetry.
func NewTurnCompletedEvent(sessionID, ownerID, intent string, citationCount int, lowConfidence bool) Event {
	return BaseEvent{
		Type: TypeTurnCompleted,
		Data: map[string]interface{}{
			"session_id":     sessionID,
			"owner_id":       ownerID,
			"intent":         intent,
			"citation_count": citationCount,
			"low_confidence": lowConfidence,
		},
		OccurredAt: time.Now(),
	}
}

// NewSessionEndedEvent reports an explicit session end.
func NewSessionEndedEvent(sessionID, ownerID string, tempAssetCount int) Event {
	return BaseEvent{
		Type: TypeSessionEnded,
		Data: map[string]interface{}{
			"session_id":       sessionID,
			"owner_id":         ownerID,
			"temp_asset_count": tempAssetCount,
		},
		OccurredAt: time.Now(),
	}
}
