package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

const (
	listTimeout     = 30 * time.Second
	downloadTimeout = 2 * time.Minute
	maxPageSize     = 1000
)

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectEntry is one listing row. Directory entries are synthetic prefixes
// and carry no generation, size or timestamps.
type ObjectEntry struct {
	Name        string
	IsDir       bool
	Size        int64
	ContentType string
	Generation  int64
	Created     time.Time
	Updated     time.Time
}

// BaseName is the last path segment, ignoring a trailing slash on prefixes.
func (e ObjectEntry) BaseName() string {
	return path.Base(strings.TrimSuffix(e.Name, "/"))
}

type ObjectPage struct {
	Entries       []ObjectEntry
	NextPageToken string
}

// ObjectStore is the narrow slice of object storage the knowledge pipeline
// needs: one directory level per page, and whole-object reads.
type ObjectStore interface {
	ListPage(ctx context.Context, bucket, prefix string, pageSize int, pageToken string) (ObjectPage, error)
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Close() error
}

type objectStore struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   ObjectStorageMode
	emulatorHost  string
	httpClient    *http.Client
}

func NewObjectStore(log *logger.Logger) (ObjectStore, error) {
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewObjectStoreWithConfig(log, storageCfg)
}

func NewObjectStoreWithConfig(log *logger.Logger, storageCfg ObjectStorageConfig) (ObjectStore, error) {
	if err := ValidateObjectStorageConfig(storageCfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	serviceLog := log.With("service", "ObjectStore")

	s := &objectStore{
		log:          serviceLog,
		storageMode:  storageCfg.Mode,
		emulatorHost: strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"),
		httpClient:   &http.Client{Timeout: downloadTimeout},
	}
	if !storageCfg.IsEmulatorMode() {
		stClient, err := newStorageClientForMode(context.Background(), storageCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		s.storageClient = stClient
	}

	serviceLog.Info("Object storage initialized",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"emulator_host", storageCfg.EmulatorHost,
	)
	return s, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(storageCfg.EmulatorHost, "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Mode: string(storageCfg.Mode)}
	}
}

func (s *objectStore) ListPage(ctx context.Context, bucket, prefix string, pageSize int, pageToken string) (ObjectPage, error) {
	pageSize = clampPageSize(pageSize)
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	if s.isEmulatorMode() {
		return s.emulatorListPage(ctx, bucket, prefix, pageSize, pageToken)
	}

	it := s.storageClient.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	var attrs []*storage.ObjectAttrs
	next, err := iterator.NewPager(it, pageSize, pageToken).NextPage(&attrs)
	if err != nil {
		return ObjectPage{}, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
	}

	page := ObjectPage{NextPageToken: next, Entries: make([]ObjectEntry, 0, len(attrs))}
	for _, a := range attrs {
		if a == nil {
			continue
		}
		if a.Prefix != "" {
			page.Entries = append(page.Entries, ObjectEntry{Name: a.Prefix, IsDir: true})
			continue
		}
		if a.Name == prefix {
			// folder placeholder object for the level being listed
			continue
		}
		page.Entries = append(page.Entries, ObjectEntry{
			Name:        a.Name,
			Size:        a.Size,
			ContentType: a.ContentType,
			Generation:  a.Generation,
			Created:     a.Created,
			Updated:     a.Updated,
		})
	}
	sortEntries(page.Entries)
	return page, nil
}

func (s *objectStore) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if s.isEmulatorMode() {
		return s.emulatorDownload(ctx, bucket, key)
	}
	// The reader outlives this call, so cancel is tied to Close.
	ctx2, cancel := context.WithTimeout(ctx, downloadTimeout)
	r, err := s.storageClient.Bucket(bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("download gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("download gs://%s/%s: %w", bucket, key, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *objectStore) Close() error {
	if s == nil || s.storageClient == nil {
		return nil
	}
	return s.storageClient.Close()
}

func (s *objectStore) isEmulatorMode() bool {
	return s != nil && s.storageMode == ObjectStorageModeGCSEmulator && s.emulatorHost != ""
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func clampPageSize(n int) int {
	if n <= 0 || n > maxPageSize {
		return maxPageSize
	}
	return n
}

// sortEntries keeps a page in name order regardless of how the backend
// interleaves prefixes and items.
func sortEntries(entries []ObjectEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}
