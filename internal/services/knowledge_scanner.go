package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/observability"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/apierr"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/gcp"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

const (
	DefaultScanPageSize = 1000
	DefaultScanMaxFiles = 5000
	maxScanFilesLimit   = 100000
)

// ScanError reports the listing call that aborted a scan.
type ScanError struct {
	Bucket string
	Prefix string
	Err    error
}

func (e *ScanError) Error() string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "/"
	}
	return fmt.Sprintf("list bucket %q at prefix %q: %v", e.Bucket, prefix, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

type ScanRequest struct {
	Bucket      string
	SearchTerms []string
	MaxFiles    int
}

type ScanResult struct {
	Bucket   string                    `json:"bucket"`
	Total    int                       `json:"total"`
	Files    []knowledge.StorageObject `json:"files"`
	Matches  map[string][]string       `json:"matches"`
	Searched []string                  `json:"searched"`
}

type ScannerConfig struct {
	PageSize        int
	DefaultMaxFiles int
}

type KnowledgeScanner interface {
	// Scan lists the bucket breadth first. Any listing failure fails the
	// whole scan with a *ScanError and no partial result.
	Scan(ctx context.Context, req ScanRequest) (*ScanResult, error)
}

type knowledgeScanner struct {
	log   *logger.Logger
	store gcp.ObjectStore
	cfg   ScannerConfig
}

func NewKnowledgeScanner(baseLog *logger.Logger, store gcp.ObjectStore, cfg ScannerConfig) KnowledgeScanner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultScanPageSize
	}
	if cfg.DefaultMaxFiles <= 0 {
		cfg.DefaultMaxFiles = DefaultScanMaxFiles
	}
	return &knowledgeScanner{
		log:   baseLog.With("service", "KnowledgeScanner"),
		store: store,
		cfg:   cfg,
	}
}

func (s *knowledgeScanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	bucket := strings.TrimSpace(req.Bucket)
	if bucket == "" {
		return nil, apierr.BadRequest("bucket is required")
	}
	maxFiles := req.MaxFiles
	if maxFiles <= 0 {
		maxFiles = s.cfg.DefaultMaxFiles
	}
	if maxFiles > maxScanFilesLimit {
		maxFiles = maxScanFilesLimit
	}

	ctx, span := observability.Tracer().Start(ctx, "knowledge.scan")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.Int("max_files", maxFiles))

	start := time.Now()
	files, err := s.walk(ctx, bucket, maxFiles)
	if err != nil {
		observability.Current().ObserveScan("error", 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		s.log.Warn("Scan failed", "bucket", bucket, "error", err)
		return nil, err
	}
	observability.Current().ObserveScan("ok", len(files), time.Since(start))

	terms := NormalizeTerms(req.SearchTerms)
	res := &ScanResult{
		Bucket:   bucket,
		Total:    len(files),
		Files:    files,
		Matches:  MatchPaths(files, terms),
		Searched: terms,
	}
	s.log.Info("Scan complete", "bucket", bucket, "total", res.Total, "terms", len(terms), "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (s *knowledgeScanner) walk(ctx context.Context, bucket string, maxFiles int) ([]knowledge.StorageObject, error) {
	files := make([]knowledge.StorageObject, 0)
	queue := []string{""}
	for len(queue) > 0 {
		prefix := queue[0]
		queue = queue[1:]
		token := ""
		for {
			page, err := s.store.ListPage(ctx, bucket, prefix, s.cfg.PageSize, token)
			if err != nil {
				return nil, &ScanError{Bucket: bucket, Prefix: prefix, Err: err}
			}
			for _, e := range page.Entries {
				if e.IsDir {
					queue = append(queue, e.Name)
					continue
				}
				files = append(files, toStorageObject(e))
				if len(files) >= maxFiles {
					return files, nil
				}
			}
			if page.NextPageToken == "" {
				break
			}
			token = page.NextPageToken
		}
	}
	return files, nil
}

func toStorageObject(e gcp.ObjectEntry) knowledge.StorageObject {
	obj := knowledge.StorageObject{
		Path:     e.Name,
		Name:     e.BaseName(),
		Size:     e.Size,
		MimeType: e.ContentType,
	}
	if !e.Created.IsZero() {
		t := e.Created.UTC()
		obj.CreatedAt = &t
	}
	if !e.Updated.IsZero() {
		t := e.Updated.UTC()
		obj.UpdatedAt = &t
	}
	return obj
}

// NormalizeTerms trims and lowercases terms, dropping blanks and repeats.
func NormalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := map[string]struct{}{}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// MatchPaths maps each term to every path containing it, case-insensitively,
// in discovery order. Terms must already be normalized.
func MatchPaths(files []knowledge.StorageObject, terms []string) map[string][]string {
	out := make(map[string][]string, len(terms))
	for _, term := range terms {
		out[term] = []string{}
	}
	for _, f := range files {
		lower := strings.ToLower(f.Path)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				out[term] = append(out[term], f.Path)
			}
		}
	}
	return out
}
