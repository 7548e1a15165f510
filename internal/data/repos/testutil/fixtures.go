package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, fileName string, status knowledge.DocumentStatus) *knowledge.Document {
	tb.Helper()
	doc := &knowledge.Document{
		ID:           uuid.New(),
		FileHash:     fmt.Sprintf("hash-%s", uuid.NewString()),
		FileName:     fileName,
		OriginalName: fileName,
		RowCount:     0,
		Status:       status,
	}
	if status == knowledge.StatusIndexed {
		now := time.Now().UTC()
		doc.IndexedAt = &now
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedChunks(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, contents ...string) []*knowledge.Chunk {
	tb.Helper()
	out := make([]*knowledge.Chunk, 0, len(contents))
	for i, c := range contents {
		out = append(out, &knowledge.Chunk{
			ID:          uuid.New(),
			DocumentID:  docID,
			ChunkIndex:  i,
			Content:     c,
			ContentType: knowledge.ContentRow,
			Metadata:    datatypes.NewJSONType(knowledge.ChunkMetadata{Row: i}),
		})
	}
	if len(out) == 0 {
		return out
	}
	if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
		tb.Fatalf("seed chunks: %v", err)
	}
	return out
}

func SeedQueryLog(tb testing.TB, ctx context.Context, tx *gorm.DB, query string, createdAt time.Time, sources ...knowledge.Source) *knowledge.QueryLog {
	tb.Helper()
	q := &knowledge.QueryLog{
		ID:          uuid.New(),
		QueryText:   query,
		ChunksFound: len(sources),
		AIModel:     "test-model",
		SourcesUsed: datatypes.JSONSlice[knowledge.Source](sources),
		CreatedAt:   createdAt,
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed query log: %v", err)
	}
	return q
}

func SeedJobRun(tb testing.TB, ctx context.Context, tx *gorm.DB, jobType, status string, createdAt time.Time) *jobs.JobRun {
	tb.Helper()
	entityID := uuid.New()
	j := &jobs.JobRun{
		ID:         uuid.New(),
		JobType:    jobType,
		EntityType: jobs.EntityKnowledgeDocument,
		EntityID:   &entityID,
		Status:     status,
		Stage:      status,
		Payload:    datatypes.JSON([]byte("{}")),
		Result:     datatypes.JSON([]byte("{}")),
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job run: %v", err)
	}
	return j
}
