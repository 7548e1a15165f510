package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type emulatorObject struct {
	Name        string `json:"name"`
	Size        string `json:"size"`
	ContentType string `json:"contentType"`
	Generation  string `json:"generation"`
	TimeCreated string `json:"timeCreated"`
	Updated     string `json:"updated"`
}

type emulatorListResponse struct {
	Items         []emulatorObject `json:"items"`
	Prefixes      []string         `json:"prefixes"`
	NextPageToken string           `json:"nextPageToken"`
}

func (s *objectStore) emulatorListURL(bucket, prefix string, pageSize int, pageToken string) string {
	q := url.Values{}
	q.Set("prefix", prefix)
	q.Set("delimiter", "/")
	q.Set("maxResults", strconv.Itoa(pageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	return fmt.Sprintf("%s/storage/v1/b/%s/o?%s", s.emulatorHost, url.PathEscape(bucket), q.Encode())
}

func (s *objectStore) emulatorMediaURL(bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", s.emulatorHost, url.PathEscape(bucket), url.PathEscape(key))
}

func (s *objectStore) emulatorListPage(ctx context.Context, bucket, prefix string, pageSize int, pageToken string) (ObjectPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.emulatorListURL(bucket, prefix, pageSize, pageToken), nil)
	if err != nil {
		return ObjectPage{}, fmt.Errorf("failed creating emulator list request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ObjectPage{}, fmt.Errorf("failed emulator list request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ObjectPage{}, fmt.Errorf("emulator list failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out emulatorListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ObjectPage{}, fmt.Errorf("decode emulator list: %w", err)
	}

	page := ObjectPage{NextPageToken: out.NextPageToken}
	for _, p := range out.Prefixes {
		page.Entries = append(page.Entries, ObjectEntry{Name: p, IsDir: true})
	}
	for _, it := range out.Items {
		if it.Name == prefix {
			continue
		}
		size, _ := strconv.ParseInt(it.Size, 10, 64)
		gen, _ := strconv.ParseInt(it.Generation, 10, 64)
		page.Entries = append(page.Entries, ObjectEntry{
			Name:        it.Name,
			Size:        size,
			ContentType: it.ContentType,
			Generation:  gen,
			Created:     parseRFC3339(it.TimeCreated),
			Updated:     parseRFC3339(it.Updated),
		})
	}
	sortEntries(page.Entries)
	return page, nil
}

func (s *objectStore) emulatorDownload(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, downloadTimeout)
	req, err := http.NewRequestWithContext(ctx2, http.MethodGet, s.emulatorMediaURL(bucket, key), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed creating emulator download request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed emulator download request: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("download gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
}

func parseRFC3339(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
