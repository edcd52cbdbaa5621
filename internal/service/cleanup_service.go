package service

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"multimodal-chat-be/internal/dto"
	"multimodal-chat-be/internal/pkg/logger"
	"multimodal-chat-be/pkg/storage"
)

type ICleanupService interface {
	Consume(ctx context.Context) error
}

// cleanupService deletes a session's temporary uploads from object storage
// after the session ends. Deletion is best-effort: a failed delete is logged
// and the message is still acked, since the bucket's lifecycle rules are the
// backstop for leaked objects.
type cleanupService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	store     storage.ObjectStore
	log       logger.ILogger
}

func NewCleanupService(
	pubSub *gochannel.GoChannel,
	topicName string,
	store storage.ObjectStore,
	log logger.ILogger,
) ICleanupService {
	return &cleanupService{
		pubSub:    pubSub,
		topicName: topicName,
		store:     store,
		log:       log,
	}
}

func (cs *cleanupService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *cleanupService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.CleanupSessionMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.log.Error("cleanup_service", "failed to unmarshal cleanup message", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // invalid messages would retry forever
		return
	}

	deleted := 0
	for _, key := range payload.Keys {
		if key == "" {
			continue
		}
		if err := cs.store.Delete(ctx, key); err != nil {
			cs.log.Warn("cleanup_service", "failed to delete temp asset", map[string]interface{}{
				"session_id": payload.SessionID,
				"key":        key,
				"error":      err.Error(),
			})
			continue
		}
		deleted++
	}

	cs.log.Info("cleanup_service", "session temp assets cleaned", map[string]interface{}{
		"session_id": payload.SessionID,
		"deleted":    deleted,
		"total":      len(payload.Keys),
	})
	msg.Ack()
}
