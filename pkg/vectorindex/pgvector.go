package vectorindex

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IndexPoint is one (point, named vector) row. A corpus item carrying two
// named vectors (e.g. an image with both a CLIP and an OCR vector) is stored
// as two rows sharing the same PointID.
type IndexPoint struct {
	ID         int64             `gorm:"primaryKey;autoIncrement"`
	Collection string            `gorm:"index:idx_points_lookup,priority:1;not null"`
	VectorName string            `gorm:"index:idx_points_lookup,priority:2;not null"`
	OwnerID    string            `gorm:"index:idx_points_lookup,priority:3;not null"`
	PointID    string            `gorm:"not null"`
	Embedding  pgvector.Vector   `gorm:"type:vector"`
	Payload    datatypes.JSONMap `gorm:"type:jsonb"`
}

func (IndexPoint) TableName() string {
	return "index_points"
}

// PgvectorIndex is a dense-only Index backed by Postgres + pgvector. It has no
// sparse vectors and no server-side fusion; the retriever compensates with
// dense-only search and in-process reciprocal rank fusion.
type PgvectorIndex struct {
	db *gorm.DB
}

func NewPgvectorIndex(db *gorm.DB) *PgvectorIndex {
	return &PgvectorIndex{db: db}
}

func (p *PgvectorIndex) Capabilities() Capabilities {
	return Capabilities{Sparse: false, NativeFusion: false}
}

func (p *PgvectorIndex) Query(ctx context.Context, query Query) ([]Point, error) {
	if query.Sparse != nil || len(query.Prefetch) > 0 {
		return nil, fmt.Errorf("pgvector index does not support sparse or fused queries")
	}

	// Cosine distance in pgvector is 1 - cosine_similarity.
	type row struct {
		PointID    string
		Similarity float64
		Payload    datatypes.JSONMap
	}
	var rows []row

	queryVector := pgvector.NewVector(query.Dense)

	err := p.db.WithContext(ctx).
		Table("index_points").
		Select("point_id, 1 - (embedding <=> ?) as similarity, payload", queryVector).
		Where("collection = ?", query.Collection).
		Where("vector_name = ?", query.Using).
		Where("owner_id = ?", query.OwnerID).
		Order("similarity DESC").
		Limit(query.TopK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector query on %s failed: %w", query.Collection, err)
	}

	points := make([]Point, 0, len(rows))
	for _, r := range rows {
		points = append(points, Point{
			ID:      r.PointID,
			Score:   r.Similarity,
			Payload: map[string]any(r.Payload),
		})
	}
	return points, nil
}

func (p *PgvectorIndex) Scroll(ctx context.Context, collection string, limit int) ([]Point, error) {
	var models []IndexPoint
	err := p.db.WithContext(ctx).
		Where("collection = ?", collection).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector scroll on %s failed: %w", collection, err)
	}

	points := make([]Point, 0, len(models))
	for _, m := range models {
		points = append(points, Point{
			ID:      m.PointID,
			Payload: map[string]any(m.Payload),
		})
	}
	return points, nil
}
