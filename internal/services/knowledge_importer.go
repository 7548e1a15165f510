package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/csvdoc"
	"github.com/yungbote/tcm-knowledge-backend/internal/observability"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/gcp"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

const (
	DefaultMaxResyncPaths = 50
	DefaultChunkBatchSize = 200
	DefaultMaxCSVBytes    = 32 << 20

	ReasonUnsupportedType = "unsupported type"
	ReasonAlreadyIndexed  = "already indexed"
)

type ResyncRequest struct {
	Bucket      string
	SearchTerms []string
	MaxFiles    int
	// Files overrides the scan matches as the candidate list.
	Files []string
}

type ResyncResult struct {
	Path       string `json:"path"`
	Restored   bool   `json:"restored"`
	Skipped    bool   `json:"skipped,omitempty"`
	Reason     string `json:"reason,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
}

type ResyncSummary struct {
	Attempted int            `json:"attempted"`
	Results   []ResyncResult `json:"results"`
}

type ResyncOutcome struct {
	*ScanResult
	Resync ResyncSummary `json:"resync"`
}

type ImporterConfig struct {
	MaxPaths       int
	ChunkBatchSize int
	MaxFileBytes   int64
	Vocabulary     csvdoc.Vocabulary
}

type KnowledgeImporter interface {
	// Resync re-runs the scan, then imports each candidate path in order.
	// Per-path failures are reported in the results; only a scan failure
	// returns an error.
	Resync(ctx context.Context, req ResyncRequest) (*ResyncOutcome, error)
}

type knowledgeImporter struct {
	log        *logger.Logger
	scanner    KnowledgeScanner
	store      gcp.ObjectStore
	docs       repos.DocumentRepo
	chunks     repos.ChunkRepo
	dispatcher EmbeddingDispatcher
	cfg        ImporterConfig
}

func NewKnowledgeImporter(
	baseLog *logger.Logger,
	scanner KnowledgeScanner,
	store gcp.ObjectStore,
	docs repos.DocumentRepo,
	chunks repos.ChunkRepo,
	dispatcher EmbeddingDispatcher,
	cfg ImporterConfig,
) KnowledgeImporter {
	if cfg.MaxPaths <= 0 {
		cfg.MaxPaths = DefaultMaxResyncPaths
	}
	if cfg.ChunkBatchSize <= 0 {
		cfg.ChunkBatchSize = DefaultChunkBatchSize
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxCSVBytes
	}
	return &knowledgeImporter{
		log:        baseLog.With("service", "KnowledgeImporter"),
		scanner:    scanner,
		store:      store,
		docs:       docs,
		chunks:     chunks,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

func (s *knowledgeImporter) Resync(ctx context.Context, req ResyncRequest) (*ResyncOutcome, error) {
	scan, err := s.scanner.Scan(ctx, ScanRequest{Bucket: req.Bucket, SearchTerms: req.SearchTerms, MaxFiles: req.MaxFiles})
	if err != nil {
		return nil, err
	}

	candidates := req.Files
	if len(candidates) == 0 {
		for _, term := range scan.Searched {
			candidates = append(candidates, scan.Matches[term]...)
		}
	}
	paths := DedupePaths(candidates, s.cfg.MaxPaths)

	out := &ResyncOutcome{
		ScanResult: scan,
		Resync:     ResyncSummary{Attempted: len(paths), Results: make([]ResyncResult, 0, len(paths))},
	}
	for _, p := range paths {
		res := s.importPath(ctx, scan.Bucket, p)
		observability.Current().IncImportOutcome(outcomeLabel(res))
		out.Resync.Results = append(out.Resync.Results, res)
	}
	s.log.Info("Resync complete", "bucket", scan.Bucket, "attempted", len(paths))
	return out, nil
}

// DedupePaths trims paths, drops blanks and repeats, and keeps the first max.
func DedupePaths(paths []string, max int) []string {
	out := make([]string, 0, len(paths))
	seen := map[string]struct{}{}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func outcomeLabel(r ResyncResult) string {
	switch {
	case r.Restored:
		return "restored"
	case r.Skipped && r.Reason == ReasonUnsupportedType:
		return "skipped_unsupported"
	case r.Skipped:
		return "skipped_indexed"
	default:
		return "failed"
	}
}

func skippedIndexed(p string, id uuid.UUID) ResyncResult {
	return ResyncResult{Path: p, Skipped: true, Reason: ReasonAlreadyIndexed, DocumentID: id.String()}
}

func failed(p string, err error) ResyncResult {
	return ResyncResult{Path: p, Reason: err.Error()}
}

func (s *knowledgeImporter) importPath(ctx context.Context, bucket, p string) ResyncResult {
	ctx, span := observability.Tracer().Start(ctx, "knowledge.import")
	defer span.End()
	span.SetAttributes(attribute.String("path", p))

	if !strings.EqualFold(path.Ext(p), ".csv") {
		return ResyncResult{Path: p, Skipped: true, Reason: ReasonUnsupportedType}
	}
	dbc := dbctx.Context{Ctx: ctx}
	name := knowledge.BaseName(p)

	existing, err := s.docs.FindByName(dbc, name)
	if err != nil {
		return failed(p, fmt.Errorf("lookup document: %w", err))
	}
	if existing.Claimed() {
		return skippedIndexed(p, existing.ID)
	}

	text, err := s.download(ctx, bucket, p)
	if err != nil {
		return failed(p, err)
	}
	hash := csvdoc.HashText(text)
	sameContent, err := s.docs.FindByHash(dbc, hash)
	if err != nil {
		return failed(p, fmt.Errorf("lookup document hash: %w", err))
	}
	if sameContent.Claimed() {
		return skippedIndexed(p, sameContent.ID)
	}
	if existing == nil {
		existing = sameContent
	} else if sameContent != nil && sameContent.ID != existing.ID {
		// Both rows are leftovers of failed imports; the name match takes
		// over the content hash.
		if err := s.discard(dbc, sameContent.ID); err != nil {
			return failed(p, err)
		}
	}

	tbl, err := csvdoc.Parse(text)
	if err != nil {
		return failed(p, fmt.Errorf("parse: %w", err))
	}
	if len(tbl.Rows) == 0 {
		return failed(p, fmt.Errorf("parse: %w", csvdoc.ErrNoRows))
	}
	if tbl.Dropped > 0 {
		s.log.Warn("Dropped CSV rows with mismatched field count", "path", p, "dropped", tbl.Dropped)
	}

	doc, err := s.beginDocument(dbc, existing, bucket, p, name, hash, len(tbl.Rows))
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.duplicate(dbc, p, name, hash, err)
	}
	if err != nil {
		return failed(p, fmt.Errorf("create document: %w", err))
	}

	if err := s.writeChunks(dbc, doc, tbl, bucket, p); err != nil {
		s.markError(ctx, doc.ID, err)
		return failed(p, err)
	}
	if err := s.docs.MarkIndexed(dbc, doc.ID, time.Now().UTC()); err != nil {
		err = fmt.Errorf("mark indexed: %w", err)
		s.markError(ctx, doc.ID, err)
		return failed(p, err)
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), doc.ID); err != nil {
			s.log.Warn("Embedding hand-off failed", "document_id", doc.ID, "path", p, "error", err)
		}
	}
	s.log.Info("Imported knowledge CSV", "path", p, "document_id", doc.ID, "rows", len(tbl.Rows))
	return ResyncResult{Path: p, Restored: true, DocumentID: doc.ID.String()}
}

func (s *knowledgeImporter) download(ctx context.Context, bucket, p string) (string, error) {
	rc, err := s.store.Download(ctx, bucket, p)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, s.cfg.MaxFileBytes+1))
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	if int64(len(raw)) > s.cfg.MaxFileBytes {
		return "", fmt.Errorf("download: file exceeds %d bytes", s.cfg.MaxFileBytes)
	}
	return csvdoc.DecodeText(raw), nil
}

// beginDocument creates the document in indexing status, or resets a
// document left in error status by an earlier attempt.
func (s *knowledgeImporter) beginDocument(dbc dbctx.Context, prior *knowledge.Document, bucket, p, name, hash string, rows int) (*knowledge.Document, error) {
	if prior == nil {
		doc := &knowledge.Document{
			FileHash:     hash,
			FileName:     name,
			OriginalName: name,
			Bucket:       bucket,
			SourcePath:   p,
			RowCount:     rows,
			Status:       knowledge.StatusIndexing,
		}
		if err := s.docs.Create(dbc, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	if _, err := s.chunks.DeleteByDocument(dbc, prior.ID); err != nil {
		return nil, fmt.Errorf("clear chunks: %w", err)
	}
	if err := s.docs.UpdateFields(dbc, prior.ID, map[string]interface{}{
		"file_hash":   hash,
		"file_name":   name,
		"bucket":      bucket,
		"source_path": p,
		"row_count":   rows,
		"status":      knowledge.StatusIndexing,
		"error":       "",
		"indexed_at":  nil,
	}); err != nil {
		return nil, err
	}
	prior.FileHash = hash
	prior.FileName = name
	prior.RowCount = rows
	prior.Status = knowledge.StatusIndexing
	return prior, nil
}

func (s *knowledgeImporter) writeChunks(dbc dbctx.Context, doc *knowledge.Document, tbl csvdoc.Table, bucket, p string) error {
	chunks := csvdoc.BuildChunks(tbl, csvdoc.BuildOptions{
		DocumentID: doc.ID,
		Bucket:     bucket,
		Path:       p,
		Vocabulary: s.cfg.Vocabulary,
	})
	for start := 0; start < len(chunks); start += s.cfg.ChunkBatchSize {
		end := start + s.cfg.ChunkBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := s.chunks.Create(dbc, chunks[start:end]); err != nil {
			return fmt.Errorf("insert chunks %d-%d: %w", start, end-1, err)
		}
		observability.Current().AddChunksInserted(end - start)
	}
	return nil
}

// duplicate resolves a unique-key conflict from a concurrent import of the
// same name or content. A conflicting row that is not claimed is not an
// index, so the path fails with the insert error.
func (s *knowledgeImporter) duplicate(dbc dbctx.Context, p, name, hash string, cause error) ResyncResult {
	doc, _ := s.docs.FindByName(dbc, name)
	if !doc.Claimed() {
		doc, _ = s.docs.FindByHash(dbc, hash)
	}
	if !doc.Claimed() {
		return failed(p, fmt.Errorf("create document: %w", cause))
	}
	return skippedIndexed(p, doc.ID)
}

func (s *knowledgeImporter) discard(dbc dbctx.Context, id uuid.UUID) error {
	if _, err := s.chunks.DeleteByDocument(dbc, id); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if err := s.docs.Delete(dbc, id); err != nil {
		return fmt.Errorf("discard document: %w", err)
	}
	return nil
}

func (s *knowledgeImporter) markError(ctx context.Context, id uuid.UUID, cause error) {
	dbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	if err := s.docs.MarkError(dbc, id, cause.Error()); err != nil {
		s.log.Error("Failed to mark document error", "document_id", id, "error", err)
	}
}
