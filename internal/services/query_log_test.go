package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos/testutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/provenance"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/apierr"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

func newQueryLogService(t *testing.T) QueryLogService {
	t.Helper()
	db := testutil.DB(t)
	return NewQueryLogService(logger.NewNop(), repos.NewQueryLogRepo(db, logger.NewNop()))
}

func TestRecordQueryClassifies(t *testing.T) {
	svc := newQueryLogService(t)
	ctx := context.Background()
	idx := 3
	userID := uuid.New()

	kb, err := svc.Record(ctx, RecordQueryInput{
		UserID:      &userID,
		QueryText:   "  liver qi stagnation  ",
		ChunksFound: 1,
		AIModel:     "gpt-4o",
		SourcesUsed: []knowledge.Source{
			{Type: knowledge.SourceKnowledgeBase, FileName: "syndromes.csv", ChunkIndex: &idx},
			{Pillar: "  "},
		},
	})
	require.NoError(t, err)
	require.Equal(t, provenance.Proprietary, kb.Classification)
	require.Equal(t, "liver qi stagnation", kb.QueryText)
	require.Len(t, kb.SourcesUsed, 1)

	ext, err := svc.Record(ctx, RecordQueryInput{
		QueryText:   "acupuncture for insomnia",
		AIModel:     "gpt-4o",
		SourcesUsed: []knowledge.Source{knowledge.ExternalAISource()},
	})
	require.NoError(t, err)
	require.Equal(t, provenance.External, ext.Classification)

	none, err := svc.Record(ctx, RecordQueryInput{QueryText: "unknown"})
	require.NoError(t, err)
	require.Equal(t, provenance.NoMatch, none.Classification)
	require.Equal(t, "No match", none.Label)

	recent, err := svc.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
}

func TestRecordQueryValidation(t *testing.T) {
	svc := newQueryLogService(t)
	inputs := []RecordQueryInput{
		{QueryText: "   "},
		{QueryText: strings.Repeat("气", maxQueryTextRunes+1)},
		{QueryText: "ok", ChunksFound: -1},
	}
	for _, in := range inputs {
		_, err := svc.Record(context.Background(), in)
		var ae *apierr.Error
		require.True(t, errors.As(err, &ae), "err=%v", err)
		require.Equal(t, http.StatusBadRequest, ae.Status)
	}
}

func TestQueryLogReport(t *testing.T) {
	db := testutil.DB(t)
	svc := NewQueryLogService(logger.NewNop(), repos.NewQueryLogRepo(db, logger.NewNop()))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	testutil.SeedQueryLog(t, ctx, db, "oldest", base)
	testutil.SeedQueryLog(t, ctx, db, "middle", base.Add(time.Minute), knowledge.ExternalAISource())
	testutil.SeedQueryLog(t, ctx, db, "newest", base.Add(2*time.Minute),
		knowledge.Source{Type: knowledge.SourceKnowledgeBase, FileName: "b.csv"},
		knowledge.Source{Type: knowledge.SourceKnowledgeBase, FileName: "a.csv"},
		knowledge.Source{Type: knowledge.SourceKnowledgeBase, FileName: "b.csv"},
	)

	rep, err := svc.Report(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, rep.Summary.Total)
	require.Equal(t, 1, rep.Summary.ProprietaryCount)
	require.Equal(t, 1, rep.Summary.ExternalCount)
	require.Len(t, rep.Rows, 2)
	require.Equal(t, "newest", rep.Rows[0].Query)
	require.Equal(t, []string{"b.csv", "a.csv"}, rep.Rows[0].Files)
	require.Equal(t, "2026-03-01T09:02:00Z", rep.Rows[0].Timestamp)
}
