package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos/testutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/provenance"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

func TestQueryTerms(t *testing.T) {
	require.Equal(t, []string{"liver", "qi", "stagnation"}, QueryTerms("Liver QI, stagnation? a qi"))
	require.Empty(t, QueryTerms(" ? ! a "))
}

func TestSearchRanksAndLogs(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := logger.NewNop()
	queryLogs := repos.NewQueryLogRepo(db, log)
	svc := NewKnowledgeSearch(log, repos.NewChunkRepo(db, log), NewQueryLogService(log, queryLogs))

	doc := testutil.SeedDocument(t, ctx, db, "syndromes.csv", knowledge.StatusIndexed)
	testutil.SeedChunks(t, ctx, db, doc.ID,
		"Q: Spleen qi deficiency\nA: fatigue",
		"Q: Liver qi stagnation\nA: irritability",
		"Q: Heart fire\nA: insomnia",
	)
	pending := testutil.SeedDocument(t, ctx, db, "draft.csv", knowledge.StatusIndexing)
	testutil.SeedChunks(t, ctx, db, pending.ID, "Liver qi stagnation draft")

	out, err := svc.Search(ctx, SearchInput{Query: "liver qi", AIModel: "gpt-4o"})
	require.NoError(t, err)
	require.Equal(t, provenance.Proprietary, out.Classification)
	require.Len(t, out.Results, 2)
	require.Equal(t, 1, out.Results[0].ChunkIndex)
	require.Equal(t, 2, out.Results[0].Score)
	require.Equal(t, 0, out.Results[1].ChunkIndex)
	require.Equal(t, "syndromes.csv", out.Results[0].FileName)

	entries, err := queryLogs.ListRecent(dbctx.Context{Ctx: ctx}, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, out.QueryLogID, entries[0].ID)
	require.Equal(t, 2, entries[0].ChunksFound)
	require.Len(t, entries[0].SourcesUsed, 2)
	require.Equal(t, 1, *entries[0].SourcesUsed[0].ChunkIndex)

	out, err = svc.Search(ctx, SearchInput{Query: "liver qi", Limit: 1})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	require.Equal(t, 1, out.Results[0].ChunkIndex)
}

func TestSearchFallsBackToExternal(t *testing.T) {
	db := testutil.DB(t)
	log := logger.NewNop()
	svc := NewKnowledgeSearch(log, repos.NewChunkRepo(db, log), NewQueryLogService(log, repos.NewQueryLogRepo(db, log)))

	out, err := svc.Search(context.Background(), SearchInput{Query: "moxibustion", AIModel: "gpt-4o"})
	require.NoError(t, err)
	require.Empty(t, out.Results)
	require.Equal(t, provenance.External, out.Classification)

	out, err = svc.Search(context.Background(), SearchInput{Query: "moxibustion"})
	require.NoError(t, err)
	require.Equal(t, provenance.NoMatch, out.Classification)

	_, err = svc.Search(context.Background(), SearchInput{Query: "  "})
	require.Error(t, err)
}
