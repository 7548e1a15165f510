// Package steps holds the knowledge job stages. Each stage takes explicit
// deps and input and returns a JSON-ready output.
package steps

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/observability"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/openai"
)

const (
	DefaultEmbedBatchSize   = 64
	DefaultEmbedConcurrency = 4
)

type EmbedChunksDeps struct {
	Log    *logger.Logger
	Docs   repos.DocumentRepo
	Chunks repos.ChunkRepo
	AI     openai.Embedder
}

type EmbedChunksInput struct {
	DocumentID  uuid.UUID
	BatchSize   int
	Concurrency int
	// OnBatch is called after each stored batch with the running total.
	OnBatch func(embedded, total int)
}

type EmbedChunksOutput struct {
	DocumentID     uuid.UUID `json:"document_id"`
	ChunksTotal    int       `json:"chunks_total"`
	ChunksEmbedded int       `json:"chunks_embedded"`
	Model          string    `json:"model,omitempty"`
}

func EmbedChunks(ctx context.Context, deps EmbedChunksDeps, in EmbedChunksInput) (EmbedChunksOutput, error) {
	out := EmbedChunksOutput{DocumentID: in.DocumentID}
	if deps.Log == nil || deps.Docs == nil || deps.Chunks == nil || deps.AI == nil {
		return out, fmt.Errorf("embed_chunks: missing deps")
	}
	if in.DocumentID == uuid.Nil {
		return out, fmt.Errorf("embed_chunks: missing document_id")
	}
	if in.BatchSize <= 0 {
		in.BatchSize = DefaultEmbedBatchSize
	}
	if in.Concurrency <= 0 {
		in.Concurrency = DefaultEmbedConcurrency
	}
	dbc := dbctx.Context{Ctx: ctx}

	doc, err := deps.Docs.GetByID(dbc, in.DocumentID)
	if err != nil {
		return out, fmt.Errorf("embed_chunks: load document: %w", err)
	}
	if doc == nil {
		return out, fmt.Errorf("embed_chunks: document %s not found", in.DocumentID)
	}

	pending, err := deps.Chunks.ListUnembedded(dbc, in.DocumentID)
	if err != nil {
		return out, fmt.Errorf("embed_chunks: list chunks: %w", err)
	}
	todo := make([]*knowledge.Chunk, 0, len(pending))
	for _, ch := range pending {
		if ch != nil && strings.TrimSpace(ch.Content) != "" {
			todo = append(todo, ch)
		}
	}
	out.ChunksTotal = len(todo)
	out.Model = deps.AI.Model()
	if len(todo) == 0 {
		return out, nil
	}

	var embedded int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.Concurrency)
	for start := 0; start < len(todo); start += in.BatchSize {
		end := start + in.BatchSize
		if end > len(todo) {
			end = len(todo)
		}
		batch := todo[start:end]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n, err := embedBatch(gctx, deps, batch)
			if err != nil {
				return err
			}
			done := atomic.AddInt64(&embedded, int64(n))
			if in.OnBatch != nil {
				in.OnBatch(int(done), len(todo))
			}
			return nil
		})
	}
	err = g.Wait()
	out.ChunksEmbedded = int(atomic.LoadInt64(&embedded))
	if err != nil {
		return out, err
	}
	deps.Log.Info("Embedded knowledge chunks", "document_id", in.DocumentID, "chunks", out.ChunksEmbedded, "model", out.Model)
	return out, nil
}

func embedBatch(ctx context.Context, deps EmbedChunksDeps, batch []*knowledge.Chunk) (int, error) {
	texts := make([]string, 0, len(batch))
	for _, ch := range batch {
		texts = append(texts, ch.Content)
	}
	start := time.Now()
	vecs, err := deps.AI.Embed(ctx, texts)
	if err != nil {
		observability.Current().ObserveEmbedding(deps.AI.Model(), "error", len(texts), time.Since(start))
		return 0, fmt.Errorf("embed_chunks: embed: %w", err)
	}
	if len(vecs) != len(batch) {
		observability.Current().ObserveEmbedding(deps.AI.Model(), "error", len(texts), time.Since(start))
		return 0, fmt.Errorf("embed_chunks: embedding count mismatch (got %d want %d)", len(vecs), len(batch))
	}
	observability.Current().ObserveEmbedding(deps.AI.Model(), "ok", len(texts), time.Since(start))

	now := time.Now().UTC()
	dbc := dbctx.Context{Ctx: ctx}
	for i, ch := range batch {
		if err := deps.Chunks.SetEmbedding(dbc, ch.ID, vecs[i], deps.AI.Model(), now); err != nil {
			return i, fmt.Errorf("embed_chunks: store embedding for chunk %d: %w", ch.ChunkIndex, err)
		}
	}
	return len(batch), nil
}
