package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"multimodal-chat-be/internal/dto"
	"multimodal-chat-be/internal/pkg/logger"
	"multimodal-chat-be/internal/pkg/serverutils"
	"multimodal-chat-be/pkg/events"
	"multimodal-chat-be/pkg/nats"
	"multimodal-chat-be/pkg/rag/assembler"
	"multimodal-chat-be/pkg/rag/confidence"
	"multimodal-chat-be/pkg/rag/intent"
	"multimodal-chat-be/pkg/rag/normalize"
	"multimodal-chat-be/pkg/rag/response"
	"multimodal-chat-be/pkg/rag/router"
	"multimodal-chat-be/pkg/rag/session"
	"multimodal-chat-be/pkg/retrieval"
)

const fallbackAnswer = "I couldn't understand your query. Please try again."

type IChatService interface {
	Chat(ctx context.Context, ownerID string, req *dto.ChatTurnRequest, image, audio *normalize.Upload) (*dto.ChatTurnResponse, error)
	EndSession(ctx context.Context, ownerID, sessionID string) error
	Citation(ctx context.Context, ownerID, sessionID string, citationID int) (*retrieval.Citation, error)
}

type chatService struct {
	sessions     session.Store
	normalizer   *normalize.Normalizer
	router       *router.Router
	generator    *response.Generator
	pubSub       *gochannel.GoChannel
	cleanupTopic string
	eventBus     *nats.Publisher
	log          logger.ILogger
}

func NewChatService(
	sessions session.Store,
	normalizer *normalize.Normalizer,
	rt *router.Router,
	generator *response.Generator,
	pubSub *gochannel.GoChannel,
	cleanupTopic string,
	eventBus *nats.Publisher,
	log logger.ILogger,
) IChatService {
	return &chatService{
		sessions:     sessions,
		normalizer:   normalizer,
		router:       rt,
		generator:    generator,
		pubSub:       pubSub,
		cleanupTopic: cleanupTopic,
		eventBus:     eventBus,
		log:          log,
	}
}

// Chat runs one conversational turn end to end: session resolve, input
// normalization, intent gating, retrieval fan-out, context assembly,
// completion and history update. The whole turn holds the session lock so
// two turns of the same session never interleave their read-modify-write.
func (s *chatService) Chat(ctx context.Context, ownerID string, req *dto.ChatTurnRequest, image, audio *normalize.Upload) (*dto.ChatTurnResponse, error) {
	sess, err := s.sessions.GetOrCreate(ctx, ownerID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	unlock := s.sessions.Lock(sess.ID)
	defer unlock()

	// Re-read under the lock; a concurrent turn may have advanced the
	// session between resolve and lock acquisition.
	sess, err = s.sessions.GetOrCreate(ctx, ownerID, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if sess.OwnerID != ownerID {
		return nil, serverutils.Forbidden("Session belongs to another user")
	}

	normalized, normErr := s.normalizer.Normalize(ctx, sess, req.Message, image, audio)
	// Upload handles are tracked on the session even when the turn cannot
	// proceed, so end-of-session cleanup still finds them. With a
	// copy-semantics store an unsaved session would strand any blob the
	// normalizer already uploaded.
	if err := s.sessions.Save(ctx, sess); err != nil {
		if normErr == nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		s.log.Warn("chat_service", "failed to persist session after normalize error", map[string]interface{}{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
	}
	if normErr != nil {
		return nil, fmt.Errorf("normalize input: %w", normErr)
	}

	if normalized.Text == "" {
		return &dto.ChatTurnResponse{
			SessionID: sess.ID,
			Answer:    fallbackAnswer,
			Citations: []retrieval.Citation{},
		}, nil
	}

	turnIntent := intent.Classify(intent.Input{
		Text:     req.Message,
		HasImage: normalized.HasImage(),
		HasAudio: normalized.HasAudio(),
	})

	var (
		answer    string
		citations []retrieval.Citation
		low       bool
	)

	switch turnIntent {
	case intent.IntentChitchat:
		answer, err = s.generator.Chitchat(ctx, normalized.Text, sess.History)
	case intent.IntentMeta:
		answer, err = s.generator.Meta(ctx, normalized.Text, sess.History)
	default:
		answer, citations, low, err = s.groundedTurn(ctx, sess, normalized)
	}
	if err != nil {
		return nil, err
	}

	sess.AppendTurn(normalized.Text, answer)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.publishTurnEvent(ctx, sess.ID, ownerID, string(turnIntent), len(citations), low)

	if citations == nil {
		citations = []retrieval.Citation{}
	}
	return &dto.ChatTurnResponse{
		SessionID:     sess.ID,
		Answer:        answer,
		Citations:     citations,
		LowConfidence: low,
		Intent:        string(turnIntent),
	}, nil
}

// groundedTurn produces the answer for retrieval-gated intents. An
// elaborate-style follow-up reuses the previous turn's context exactly once;
// everything else runs the full fan-out and overwrites the stored context.
func (s *chatService) groundedTurn(ctx context.Context, sess *session.Session, normalized *normalize.NormalizedQuery) (string, []retrieval.Citation, bool, error) {
	if session.IsElaborateQuery(normalized.Text) && sess.CanReuseContext() {
		sess.MarkContextReused()
		answer, err := s.generator.Knowledge(ctx, normalized.Text, sess.LastContext, sess.History, false)
		if err != nil {
			return "", nil, false, err
		}
		return answer, sess.Citations, false, nil
	}

	bucket, err := s.router.Route(ctx, normalized)
	if err != nil {
		return "", nil, false, fmt.Errorf("retrieval: %w", err)
	}

	contextBlock, citations := assembler.Assemble(bucket)
	low := confidence.IsLow(bucket)
	sess.StoreContext(contextBlock, citations)

	answer, err := s.generator.Knowledge(ctx, normalized.Text, contextBlock, sess.History, low)
	if err != nil {
		return "", nil, false, err
	}
	return answer, citations, low, nil
}

// EndSession removes a session and schedules best-effort deletion of its
// temporary assets. Ending an unknown or already-ended session is a no-op.
func (s *chatService) EndSession(ctx context.Context, ownerID, sessionID string) error {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	if sess == nil {
		return nil
	}
	if sess.OwnerID != ownerID {
		return serverutils.Forbidden("Session belongs to another user")
	}

	keys := append([]string{}, sess.TempAssets.Images...)
	keys = append(keys, sess.TempAssets.Audio...)
	if len(keys) > 0 {
		s.publishCleanup(sess.ID, keys)
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if s.eventBus != nil {
		event := events.NewSessionEndedEvent(sess.ID, ownerID, len(keys))
		if err := s.eventBus.Publish(ctx, event); err != nil {
			s.log.Warn("chat_service", "failed to publish session ended event", map[string]interface{}{
				"session_id": sess.ID,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

// Citation resolves one citation of a session for the citation popover.
// The memory store hands back the live session pointer, so the read holds
// the session lock against a concurrent turn rewriting the citations.
func (s *chatService) Citation(ctx context.Context, ownerID, sessionID string, citationID int) (*retrieval.Citation, error) {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if sess == nil {
		return nil, serverutils.NotFound("Session not found")
	}
	if sess.OwnerID != ownerID {
		return nil, serverutils.Forbidden("Forbidden")
	}

	for i := range sess.Citations {
		if sess.Citations[i].ID == citationID {
			// Copy out so the caller never reads the shared slice
			// after the lock is released.
			c := sess.Citations[i]
			return &c, nil
		}
	}
	return nil, serverutils.NotFound("Citation not found")
}

func (s *chatService) publishCleanup(sessionID string, keys []string) {
	payload, err := json.Marshal(dto.CleanupSessionMessage{SessionID: sessionID, Keys: keys})
	if err != nil {
		s.log.Error("chat_service", "failed to marshal cleanup message", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.pubSub.Publish(s.cleanupTopic, msg); err != nil {
		s.log.Error("chat_service", "failed to publish cleanup message", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

func (s *chatService) publishTurnEvent(ctx context.Context, sessionID, ownerID, turnIntent string, citationCount int, low bool) {
	if s.eventBus == nil {
		return
	}
	event := events.NewTurnCompletedEvent(sessionID, ownerID, turnIntent, citationCount, low)
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.log.Warn("chat_service", "failed to publish turn event", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}
