package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos/testutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/csvdoc"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

const herbsCSV = "Question,Answer,Pillar\n" +
	"What is Ren Shen?,\"Ginseng, a warm tonic\",pharmacopeia\n" +
	"bad,row\n" +
	"What does Huang Lian clear?,\"Damp \"\"heat\"\"\",pharmacopeia\n" +
	"What calms shen?,Suan Zao Ren,clinical\n"

type importerFixture struct {
	db         *gorm.DB
	store      *fakeStore
	dispatcher *fakeDispatcher
	docs       repos.DocumentRepo
	chunks     repos.ChunkRepo
	importer   KnowledgeImporter
}

func newImporterFixture(t *testing.T, objects map[string]string, cfg ImporterConfig) *importerFixture {
	t.Helper()
	db := testutil.DB(t)
	log := logger.NewNop()
	f := &importerFixture{
		db:         db,
		store:      newFakeStore(objects),
		dispatcher: &fakeDispatcher{},
		docs:       repos.NewDocumentRepo(db, log),
		chunks:     repos.NewChunkRepo(db, log),
	}
	scanner := NewKnowledgeScanner(log, f.store, ScannerConfig{PageSize: 3})
	f.importer = NewKnowledgeImporter(log, scanner, f.store, f.docs, f.chunks, f.dispatcher, cfg)
	return f
}

func (f *importerFixture) resync(t *testing.T, req ResyncRequest) *ResyncOutcome {
	t.Helper()
	if req.Bucket == "" {
		req.Bucket = "kb"
	}
	out, err := f.importer.Resync(context.Background(), req)
	require.NoError(t, err)
	return out
}

func (f *importerFixture) countDocs(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&knowledge.Document{}).Count(&n).Error)
	return n
}

func TestResyncImportsAndIsIdempotent(t *testing.T) {
	f := newImporterFixture(t, map[string]string{"library/herbs.csv": herbsCSV}, ImporterConfig{ChunkBatchSize: 2})

	out := f.resync(t, ResyncRequest{SearchTerms: []string{"HERBS"}})
	require.Equal(t, 1, out.Total)
	require.Equal(t, 1, out.Resync.Attempted)
	res := out.Resync.Results[0]
	require.True(t, res.Restored, "reason=%s", res.Reason)
	require.False(t, res.Skipped)
	docID := uuid.MustParse(res.DocumentID)

	doc, err := f.docs.GetByID(dbctx.Background(), docID)
	require.NoError(t, err)
	require.Equal(t, knowledge.StatusIndexed, doc.Status)
	require.NotNil(t, doc.IndexedAt)
	require.Equal(t, 3, doc.RowCount)
	require.Equal(t, "herbs.csv", doc.FileName)
	require.Len(t, doc.FileHash, 64)

	chunks, err := f.chunks.ListByDocument(dbctx.Background(), docID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		require.Equal(t, i, c.ChunkIndex)
		require.Equal(t, knowledge.ContentQA, c.ContentType)
	}
	require.Equal(t, "Q: What does Huang Lian clear?\nA: Damp \"heat\"", chunks[1].Content)
	require.Equal(t, "clinical", chunks[2].Pillar)
	require.Equal(t, "library/herbs.csv", chunks[0].Metadata.Data().Path)
	require.Equal(t, []uuid.UUID{docID}, f.dispatcher.calls())

	for i := 0; i < 2; i++ {
		again := f.resync(t, ResyncRequest{Files: []string{"library/herbs.csv"}})
		r := again.Resync.Results[0]
		require.False(t, r.Restored)
		require.True(t, r.Skipped)
		require.Equal(t, ReasonAlreadyIndexed, r.Reason)
		require.Equal(t, docID.String(), r.DocumentID)
	}
	require.EqualValues(t, 1, f.countDocs(t))
	require.Len(t, f.dispatcher.calls(), 1)
}

func TestResyncPartialFailureIsolation(t *testing.T) {
	f := newImporterFixture(t, map[string]string{
		"a/first.csv":  "name,description\nLiver,Wood\n",
		"a/second.csv": "name,description\nHeart,Fire\n",
		"a/third.csv":  "name,description\nSpleen,Earth\n",
	}, ImporterConfig{})
	f.store.failDownload["a/second.csv"] = true

	out := f.resync(t, ResyncRequest{Files: []string{"a/first.csv", "a/second.csv", "a/third.csv"}})
	results := out.Resync.Results
	require.Len(t, results, 3)
	require.True(t, results[0].Restored)
	require.False(t, results[1].Restored)
	require.False(t, results[1].Skipped)
	require.NotEmpty(t, results[1].Reason)
	require.Contains(t, results[1].Reason, "connection reset")
	require.True(t, results[2].Restored)
	require.EqualValues(t, 2, f.countDocs(t))
}

func TestResyncSkipsUnsupportedAndDedupesPaths(t *testing.T) {
	f := newImporterFixture(t, map[string]string{
		"notes.txt":  "hello",
		"herbs.csv":  herbsCSV,
		"extra1.csv": herbsCSV + "x,y,z\n",
	}, ImporterConfig{MaxPaths: 2})

	out := f.resync(t, ResyncRequest{Files: []string{" notes.txt", "notes.txt", "", "herbs.csv", "extra1.csv"}})
	require.Equal(t, 2, out.Resync.Attempted)
	require.Equal(t, ResyncResult{Path: "notes.txt", Skipped: true, Reason: ReasonUnsupportedType}, out.Resync.Results[0])
	require.True(t, out.Resync.Results[1].Restored)
	require.Len(t, out.Resync.Results, 2)
}

func TestResyncDedupesIdenticalContent(t *testing.T) {
	f := newImporterFixture(t, map[string]string{
		"herbs.csv":       herbsCSV,
		"copy/herbs2.csv": "\ufeff" + herbsCSV,
	}, ImporterConfig{})

	out := f.resync(t, ResyncRequest{Files: []string{"herbs.csv", "copy/herbs2.csv"}})
	first, second := out.Resync.Results[0], out.Resync.Results[1]
	require.True(t, first.Restored)
	require.True(t, second.Skipped)
	require.Equal(t, ReasonAlreadyIndexed, second.Reason)
	require.Equal(t, first.DocumentID, second.DocumentID)
	require.EqualValues(t, 1, f.countDocs(t))
}

func TestResyncReimportsErroredDocument(t *testing.T) {
	f := newImporterFixture(t, map[string]string{"retry.csv": herbsCSV}, ImporterConfig{})
	ctx := context.Background()
	prior := testutil.SeedDocument(t, ctx, f.db, "retry.csv", knowledge.StatusError)
	testutil.SeedChunks(t, ctx, f.db, prior.ID, "stale 0", "stale 1", "stale 2", "stale 3", "stale 4")

	out := f.resync(t, ResyncRequest{Files: []string{"retry.csv"}})
	res := out.Resync.Results[0]
	require.True(t, res.Restored, "reason=%s", res.Reason)
	require.Equal(t, prior.ID.String(), res.DocumentID)

	n, err := f.chunks.CountByDocument(dbctx.Background(), prior.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	doc, _ := f.docs.GetByID(dbctx.Background(), prior.ID)
	require.Equal(t, knowledge.StatusIndexed, doc.Status)
	require.Empty(t, doc.Error)
}

func TestResyncReclaimsHashFromOtherErroredDocument(t *testing.T) {
	f := newImporterFixture(t, map[string]string{"a.csv": herbsCSV}, ImporterConfig{})
	ctx := context.Background()
	byName := testutil.SeedDocument(t, ctx, f.db, "a.csv", knowledge.StatusError)
	byHash := testutil.SeedDocument(t, ctx, f.db, "b.csv", knowledge.StatusError)
	require.NoError(t, f.db.Model(byHash).Update("file_hash", csvdoc.HashText(herbsCSV)).Error)
	testutil.SeedChunks(t, ctx, f.db, byHash.ID, "stale")

	res := f.resync(t, ResyncRequest{Files: []string{"a.csv"}}).Resync.Results[0]
	require.True(t, res.Restored, "reason=%s", res.Reason)
	require.Equal(t, byName.ID.String(), res.DocumentID)

	doc, err := f.docs.GetByID(dbctx.Background(), byName.ID)
	require.NoError(t, err)
	require.Equal(t, knowledge.StatusIndexed, doc.Status)
	require.Equal(t, csvdoc.HashText(herbsCSV), doc.FileHash)

	gone, err := f.docs.GetByID(dbctx.Background(), byHash.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
	n, err := f.chunks.CountByDocument(dbctx.Background(), byHash.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDuplicateKeyOnUnclaimedDocumentFails(t *testing.T) {
	f := newImporterFixture(t, nil, ImporterConfig{})
	ctx := context.Background()
	errored := testutil.SeedDocument(t, ctx, f.db, "a.csv", knowledge.StatusError)
	imp := f.importer.(*knowledgeImporter)

	res := imp.duplicate(dbctx.Background(), "a.csv", "a.csv", errored.FileHash, gorm.ErrDuplicatedKey)
	require.False(t, res.Restored)
	require.False(t, res.Skipped)
	require.Contains(t, res.Reason, "create document")

	indexed := testutil.SeedDocument(t, ctx, f.db, "c.csv", knowledge.StatusIndexed)
	res = imp.duplicate(dbctx.Background(), "c.csv", "c.csv", indexed.FileHash, gorm.ErrDuplicatedKey)
	require.True(t, res.Skipped)
	require.Equal(t, ReasonAlreadyIndexed, res.Reason)
	require.Equal(t, indexed.ID.String(), res.DocumentID)
}

func TestResyncRecordsParseFailure(t *testing.T) {
	f := newImporterFixture(t, map[string]string{
		"empty.csv": "question,answer\n",
		"blank.csv": "\n\n",
		"rows.csv":  "herb,taste\nGan Cao,sweet\n",
	}, ImporterConfig{})

	out := f.resync(t, ResyncRequest{Files: []string{"empty.csv", "blank.csv", "rows.csv"}})
	require.False(t, out.Resync.Results[0].Restored)
	require.Contains(t, out.Resync.Results[0].Reason, "no data rows")
	require.False(t, out.Resync.Results[1].Restored)
	require.Contains(t, out.Resync.Results[1].Reason, "no header row")
	require.True(t, out.Resync.Results[2].Restored)
	require.EqualValues(t, 1, f.countDocs(t))

	chunks, err := f.chunks.ListByDocument(dbctx.Background(), uuid.MustParse(out.Resync.Results[2].DocumentID))
	require.NoError(t, err)
	require.Equal(t, "Gan Cao | sweet", chunks[0].Content)
	require.Equal(t, knowledge.ContentRow, chunks[0].ContentType)
}

func TestResyncRejectsOversizedFile(t *testing.T) {
	f := newImporterFixture(t, map[string]string{"big.csv": "a,b\n" + strings.Repeat("1,2\n", 100)}, ImporterConfig{MaxFileBytes: 64})
	out := f.resync(t, ResyncRequest{Files: []string{"big.csv"}})
	require.False(t, out.Resync.Results[0].Restored)
	require.Contains(t, out.Resync.Results[0].Reason, "exceeds 64 bytes")
}

func TestResyncDispatchFailureKeepsRestored(t *testing.T) {
	f := newImporterFixture(t, map[string]string{"herbs.csv": herbsCSV}, ImporterConfig{})
	f.dispatcher.fail = true

	out := f.resync(t, ResyncRequest{Files: []string{"herbs.csv"}})
	require.True(t, out.Resync.Results[0].Restored)
	require.Len(t, f.dispatcher.calls(), 1)
}

func TestResyncScanFailureAborts(t *testing.T) {
	f := newImporterFixture(t, map[string]string{"herbs.csv": herbsCSV}, ImporterConfig{})
	f.store.failList[""] = true

	_, err := f.importer.Resync(context.Background(), ResyncRequest{Bucket: "kb", Files: []string{"herbs.csv"}})
	require.Error(t, err)
	require.EqualValues(t, 0, f.countDocs(t))
}
