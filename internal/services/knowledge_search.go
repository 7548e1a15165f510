package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/provenance"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/apierr"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

type SearchInput struct {
	UserID  *uuid.UUID
	Query   string
	Limit   int
	AIModel string
}

type SearchHit struct {
	DocumentID  uuid.UUID             `json:"documentId"`
	FileName    string                `json:"fileName"`
	ChunkIndex  int                   `json:"chunkIndex"`
	Pillar      string                `json:"pillar,omitempty"`
	ContentType knowledge.ContentType `json:"contentType"`
	Content     string                `json:"content"`
	Score       int                   `json:"score"`
}

type SearchOutput struct {
	QueryLogID     uuid.UUID        `json:"queryLogId"`
	Classification provenance.Class `json:"classification"`
	Label          string           `json:"label"`
	Results        []SearchHit      `json:"results"`
}

// KnowledgeSearch retrieves chunks for a query and records the query in the
// audit trail with the chunks it returned as sources.
type KnowledgeSearch interface {
	Search(ctx context.Context, in SearchInput) (*SearchOutput, error)
}

type knowledgeSearch struct {
	log     *logger.Logger
	chunks  repos.ChunkRepo
	auditor QueryLogService
}

func NewKnowledgeSearch(baseLog *logger.Logger, chunks repos.ChunkRepo, auditor QueryLogService) KnowledgeSearch {
	return &knowledgeSearch{
		log:     baseLog.With("service", "KnowledgeSearch"),
		chunks:  chunks,
		auditor: auditor,
	}
}

// QueryTerms splits a query into lowercase words of at least two runes.
func QueryTerms(q string) []string {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return strings.ContainsRune(" \t\r\n,.;:!?()[]{}\"'", r)
	})
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) >= 2 {
			out = append(out, w)
		}
	}
	return NormalizeTerms(out)
}

func (s *knowledgeSearch) Search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, apierr.BadRequest("query is required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	terms := QueryTerms(query)
	hits, err := s.chunks.Search(dbctx.Context{Ctx: ctx}, terms, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	results := rank(hits, terms, limit)

	sources := make([]knowledge.Source, 0, len(results))
	for _, h := range results {
		idx := h.ChunkIndex
		sources = append(sources, knowledge.Source{
			Type:       knowledge.SourceKnowledgeBase,
			FileName:   h.FileName,
			Pillar:     h.Pillar,
			ChunkIndex: &idx,
		})
	}
	if len(sources) == 0 && strings.TrimSpace(in.AIModel) != "" {
		sources = append(sources, knowledge.ExternalAISource())
	}

	entry, err := s.auditor.Record(ctx, RecordQueryInput{
		UserID:      in.UserID,
		QueryText:   query,
		ChunksFound: len(results),
		AIModel:     in.AIModel,
		SourcesUsed: sources,
	})
	if err != nil {
		return nil, err
	}
	return &SearchOutput{
		QueryLogID:     entry.ID,
		Classification: entry.Classification,
		Label:          entry.Label,
		Results:        results,
	}, nil
}

// rank scores hits by the number of distinct terms they contain. The
// repository already returns them best first; ties keep its order.
func rank(hits []repos.ChunkHit, terms []string, limit int) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		lower := strings.ToLower(h.Content)
		score := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				score++
			}
		}
		out = append(out, SearchHit{
			DocumentID:  h.DocumentID,
			FileName:    h.FileName,
			ChunkIndex:  h.ChunkIndex,
			Pillar:      h.Pillar,
			ContentType: h.ContentType,
			Content:     h.Content,
			Score:       score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
