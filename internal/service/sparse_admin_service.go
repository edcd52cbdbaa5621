package service

import (
	"context"
	"fmt"

	"multimodal-chat-be/internal/dto"
	"multimodal-chat-be/internal/pkg/logger"
	"multimodal-chat-be/internal/pkg/serverutils"
	"multimodal-chat-be/pkg/embedding/sparse"
	"multimodal-chat-be/pkg/vectorindex"
)

// bootstrapScrollLimit bounds the corpus slice used to build the vocabulary.
// Corpora past this size train on the first batch only.
const bootstrapScrollLimit = 10000

type ISparseAdminService interface {
	Bootstrap(ctx context.Context) (*dto.SparseBootstrapResponse, error)
}

// sparseAdminService fits the TF-IDF vocabulary once from the text
// collection. Until this has run, text search operates dense-only.
type sparseAdminService struct {
	index   vectorindex.Index
	encoder *sparse.TfidfEncoder
	log     logger.ILogger
}

func NewSparseAdminService(index vectorindex.Index, encoder *sparse.TfidfEncoder, log logger.ILogger) ISparseAdminService {
	return &sparseAdminService{
		index:   index,
		encoder: encoder,
		log:     log,
	}
}

func (s *sparseAdminService) Bootstrap(ctx context.Context) (*dto.SparseBootstrapResponse, error) {
	if s.encoder.IsFitted() {
		return nil, serverutils.BadRequest("TF-IDF vocabulary already initialized")
	}

	points, err := s.index.Scroll(ctx, vectorindex.TextCollection, bootstrapScrollLimit)
	if err != nil {
		return nil, fmt.Errorf("scroll text collection: %w", err)
	}

	texts := make([]string, 0, len(points))
	for _, p := range points {
		if text, ok := p.Payload["text"].(string); ok && text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil, serverutils.BadRequest("No text chunks found to build vocabulary")
	}

	if err := s.encoder.Fit(texts); err != nil {
		return nil, fmt.Errorf("fit tf-idf vocabulary: %w", err)
	}

	s.log.Info("sparse_admin_service", "tf-idf vocabulary initialized", map[string]interface{}{
		"documents": len(texts),
	})
	return &dto.SparseBootstrapResponse{DocumentCount: len(texts)}, nil
}
