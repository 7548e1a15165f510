package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/tcm-knowledge-backend/internal/platform/gcp"
)

// fakeStore emulates a delimiter listing over a flat key space.
type fakeStore struct {
	mu           sync.Mutex
	objects      map[string]string
	failList     map[string]bool
	failDownload map[string]bool
	listCalls    int
}

func newFakeStore(objects map[string]string) *fakeStore {
	return &fakeStore{objects: objects, failList: map[string]bool{}, failDownload: map[string]bool{}}
}

func (f *fakeStore) ListPage(ctx context.Context, bucket, prefix string, pageSize int, pageToken string) (gcp.ObjectPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failList[prefix] {
		return gcp.ObjectPage{}, errors.New("backend unavailable")
	}
	dirs := map[string]bool{}
	var entries []gcp.ObjectEntry
	for key, body := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if i := strings.Index(rest, "/"); i >= 0 {
			d := prefix + rest[:i+1]
			if !dirs[d] {
				dirs[d] = true
				entries = append(entries, gcp.ObjectEntry{Name: d, IsDir: true})
			}
			continue
		}
		entries = append(entries, gcp.ObjectEntry{Name: key, Size: int64(len(body)), ContentType: "text/csv"})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	offset := 0
	if pageToken != "" {
		offset, _ = strconv.Atoi(pageToken)
	}
	end := offset + pageSize
	next := strconv.Itoa(end)
	if end >= len(entries) {
		end = len(entries)
		next = ""
	}
	return gcp.ObjectPage{Entries: entries[offset:end], NextPageToken: next}, nil
}

func (f *fakeStore) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDownload[key] {
		return nil, errors.New("connection reset")
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeStore) Close() error { return nil }

type fakeDispatcher struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	fail bool
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, documentID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, documentID)
	if d.fail {
		return fmt.Errorf("queue unavailable")
	}
	return nil
}

func (d *fakeDispatcher) calls() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.ids...)
}

type fakeRoles map[uuid.UUID]bool

func (r fakeRoles) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return r[userID], nil
}
