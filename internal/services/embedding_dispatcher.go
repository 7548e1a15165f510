package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	types "github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

// EmbeddingDispatcher hands a document to the embeddings generator.
// Dispatch returns once the work is queued, before any embedding happens.
type EmbeddingDispatcher interface {
	Dispatch(ctx context.Context, documentID uuid.UUID) error
}

type embeddingDispatcher struct {
	log  *logger.Logger
	jobs JobService
	runs repos.JobRunRepo
}

func NewEmbeddingDispatcher(baseLog *logger.Logger, jobs JobService, runs repos.JobRunRepo) EmbeddingDispatcher {
	return &embeddingDispatcher{
		log:  baseLog.With("service", "EmbeddingDispatcher"),
		jobs: jobs,
		runs: runs,
	}
}

func (d *embeddingDispatcher) Dispatch(ctx context.Context, documentID uuid.UUID) error {
	if documentID == uuid.Nil {
		return fmt.Errorf("missing document id")
	}
	dbc := dbctx.Context{Ctx: ctx}
	pending, err := d.runs.HasRunnableForEntity(dbc, types.EntityKnowledgeDocument, documentID, types.JobTypeKnowledgeEmbed)
	if err != nil {
		return fmt.Errorf("check pending embed job: %w", err)
	}
	if pending {
		d.log.Debug("Embed job already pending", "document_id", documentID)
		return nil
	}
	owner := uuid.Nil
	if rd := ctxutil.GetRequestData(ctx); rd != nil {
		owner = rd.UserID
	}
	id := documentID
	job, err := d.jobs.Enqueue(dbc, owner, types.JobTypeKnowledgeEmbed, types.EntityKnowledgeDocument, &id, map[string]any{
		"document_id": documentID.String(),
	})
	if err != nil {
		return err
	}
	d.log.Info("Embed job queued", "document_id", documentID, "job_id", job.ID)
	return nil
}
