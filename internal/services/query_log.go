package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/provenance"
	"github.com/yungbote/tcm-knowledge-backend/internal/observability"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/apierr"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

const maxQueryTextRunes = 4000

type RecordQueryInput struct {
	UserID      *uuid.UUID
	QueryText   string
	ChunksFound int
	AIModel     string
	SourcesUsed []knowledge.Source
}

type ClassifiedQueryLog struct {
	*knowledge.QueryLog
	Classification provenance.Class `json:"classification"`
	Label          string           `json:"label"`
}

func classified(q *knowledge.QueryLog) ClassifiedQueryLog {
	c := provenance.ClassifyEntry(q)
	return ClassifiedQueryLog{QueryLog: q, Classification: c, Label: c.Label()}
}

// QueryLogService is the audit trail: entries are appended, listed and
// reduced into the liability report, never changed.
type QueryLogService interface {
	Record(ctx context.Context, in RecordQueryInput) (ClassifiedQueryLog, error)
	ListRecent(ctx context.Context, limit int) ([]ClassifiedQueryLog, error)
	Report(ctx context.Context, limit int) (provenance.Report, error)
}

type queryLogService struct {
	log  *logger.Logger
	repo repos.QueryLogRepo
}

func NewQueryLogService(baseLog *logger.Logger, repo repos.QueryLogRepo) QueryLogService {
	return &queryLogService{
		log:  baseLog.With("service", "QueryLogService"),
		repo: repo,
	}
}

func (s *queryLogService) Record(ctx context.Context, in RecordQueryInput) (ClassifiedQueryLog, error) {
	text := strings.TrimSpace(in.QueryText)
	if text == "" {
		return ClassifiedQueryLog{}, apierr.BadRequest("queryText is required")
	}
	if len([]rune(text)) > maxQueryTextRunes {
		return ClassifiedQueryLog{}, apierr.BadRequest("queryText exceeds %d characters", maxQueryTextRunes)
	}
	if in.ChunksFound < 0 {
		return ClassifiedQueryLog{}, apierr.BadRequest("chunksFound must not be negative")
	}
	sources := make([]knowledge.Source, 0, len(in.SourcesUsed))
	for _, src := range in.SourcesUsed {
		src.Type = strings.TrimSpace(src.Type)
		src.FileName = strings.TrimSpace(src.FileName)
		src.Pillar = strings.TrimSpace(src.Pillar)
		if src.Type == "" && src.FileName == "" {
			continue
		}
		sources = append(sources, src)
	}

	entry := &knowledge.QueryLog{
		UserID:      in.UserID,
		QueryText:   text,
		ChunksFound: in.ChunksFound,
		AIModel:     strings.TrimSpace(in.AIModel),
		SourcesUsed: sources,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(dbctx.Context{Ctx: ctx}, entry); err != nil {
		return ClassifiedQueryLog{}, fmt.Errorf("append query log: %w", err)
	}
	out := classified(entry)
	observability.Current().IncQueryLog(string(out.Classification))
	s.log.Debug("Query logged", "query_log_id", entry.ID, "classification", out.Classification, "chunks_found", entry.ChunksFound)
	return out, nil
}

func (s *queryLogService) ListRecent(ctx context.Context, limit int) ([]ClassifiedQueryLog, error) {
	if limit <= 0 || limit > provenance.MaxEntries {
		limit = provenance.MaxEntries
	}
	rows, err := s.repo.ListRecent(dbctx.Context{Ctx: ctx}, limit)
	if err != nil {
		return nil, fmt.Errorf("list query logs: %w", err)
	}
	out := make([]ClassifiedQueryLog, 0, len(rows))
	for _, q := range rows {
		out = append(out, classified(q))
	}
	return out, nil
}

func (s *queryLogService) Report(ctx context.Context, limit int) (provenance.Report, error) {
	if limit <= 0 || limit > provenance.MaxEntries {
		limit = provenance.MaxEntries
	}
	rows, err := s.repo.ListRecent(dbctx.Context{Ctx: ctx}, limit)
	if err != nil {
		return provenance.Report{}, fmt.Errorf("load query logs: %w", err)
	}
	return provenance.BuildReport(rows, limit), nil
}
