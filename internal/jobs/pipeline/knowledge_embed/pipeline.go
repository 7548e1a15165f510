package knowledge_embed

import (
	"fmt"
	"sync"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	types "github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/tcm-knowledge-backend/internal/jobs/runtime"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/steps"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/envutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/openai"
)

type Pipeline struct {
	log         *logger.Logger
	docs        repos.DocumentRepo
	chunks      repos.ChunkRepo
	ai          openai.Embedder
	batchSize   int
	concurrency int
}

// New reads EMBED_BATCH_SIZE and EMBED_CONCURRENCY.
func New(baseLog *logger.Logger, docs repos.DocumentRepo, chunks repos.ChunkRepo, ai openai.Embedder) *Pipeline {
	return &Pipeline{
		log:         baseLog.With("job", types.JobTypeKnowledgeEmbed),
		docs:        docs,
		chunks:      chunks,
		ai:          ai,
		batchSize:   envutil.Int("EMBED_BATCH_SIZE", steps.DefaultEmbedBatchSize),
		concurrency: envutil.Int("EMBED_CONCURRENCY", steps.DefaultEmbedConcurrency),
	}
}

func (p *Pipeline) Type() string { return types.JobTypeKnowledgeEmbed }

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	docID, ok := jc.PayloadUUID("document_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing document_id"))
		return nil
	}

	jc.Progress("embed", 2, "Embedding chunks")
	var mu sync.Mutex
	out, err := steps.EmbedChunks(jc.Ctx, steps.EmbedChunksDeps{
		Log:    p.log,
		Docs:   p.docs,
		Chunks: p.chunks,
		AI:     p.ai,
	}, steps.EmbedChunksInput{
		DocumentID:  docID,
		BatchSize:   p.batchSize,
		Concurrency: p.concurrency,
		OnBatch: func(embedded, total int) {
			mu.Lock()
			defer mu.Unlock()
			jc.Progress("embed", 2+97*embedded/total, fmt.Sprintf("Embedded %d of %d chunks", embedded, total))
		},
	})
	if err != nil {
		jc.Fail("embed", err)
		return nil
	}
	jc.Succeed("done", map[string]any{
		"document_id":     docID.String(),
		"chunks_total":    out.ChunksTotal,
		"chunks_embedded": out.ChunksEmbedded,
	})
	return nil
}
