package service

import (
	"context"

	"multimodal-chat-be/internal/dto"
	"multimodal-chat-be/pkg/rag/retriever"
)

type ISearchService interface {
	Text(ctx context.Context, ownerID string, req *dto.TextSearchRequest) (*dto.TextSearchResponse, error)
}

// searchService exposes the text retrieval path directly, without a session,
// for debugging queries and building search UIs.
type searchService struct {
	retriever *retriever.Retriever
}

func NewSearchService(r *retriever.Retriever) ISearchService {
	return &searchService{retriever: r}
}

func (s *searchService) Text(ctx context.Context, ownerID string, req *dto.TextSearchRequest) (*dto.TextSearchResponse, error) {
	hits, err := s.retriever.TextChunks(ctx, req.Query, ownerID, req.TopK)
	if err != nil {
		return nil, err
	}
	return &dto.TextSearchResponse{
		Query: req.Query,
		Hits:  hits,
	}, nil
}
