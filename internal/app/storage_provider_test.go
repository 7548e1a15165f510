package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/yungbote/tcm-knowledge-backend/internal/platform/gcp"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

func TestClassifyStorageBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want StorageBootstrapErrorCode
	}{
		{"invalid mode", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode}, StorageBootstrapErrorInvalidMode},
		{"missing host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingEmulatorHost}, StorageBootstrapErrorMissingEmulatorHost},
		{"invalid host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidEmulatorHost}, StorageBootstrapErrorInvalidEmulatorHost},
		{"wrapped", errors.Join(errors.New("validate"), &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode}), StorageBootstrapErrorInvalidMode},
		{"connect", errors.New("dial tcp: connection refused"), StorageBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStorageBootstrapError(gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS}, tc.err)
			var got *StorageBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("expected StorageBootstrapError, got=%T", err)
			}
			if got.Code != tc.want {
				t.Fatalf("code: got=%q want=%q", got.Code, tc.want)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("cause not preserved: %v", err)
			}
		})
	}
}

func TestResolveObjectStoreInvalidMode(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	_, err := resolveObjectStore(logger.NewNop())
	if got := storageBootstrapErrorCode(err); got != StorageBootstrapErrorInvalidMode {
		t.Fatalf("code: got=%q want=%q (err=%v)", got, StorageBootstrapErrorInvalidMode, err)
	}
}

func TestResolveObjectStoreEmulatorMode(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	orig := newObjectStoreWithConfig
	t.Cleanup(func() { newObjectStoreWithConfig = orig })

	var captured gcp.ObjectStorageConfig
	expected := &stubObjectStore{}
	newObjectStoreWithConfig = func(_ *logger.Logger, cfg gcp.ObjectStorageConfig) (gcp.ObjectStore, error) {
		captured = cfg
		return expected, nil
	}

	got, err := resolveObjectStore(logger.NewNop())
	if err != nil {
		t.Fatalf("resolveObjectStore: %v", err)
	}
	if got != expected {
		t.Fatalf("store: expected stub instance")
	}
	if captured.Mode != gcp.ObjectStorageModeGCSEmulator || !captured.CompatibilityFallback {
		t.Fatalf("config: got=%+v", captured)
	}
}

func TestResolveObjectStoreConnectFailed(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	orig := newObjectStoreWithConfig
	t.Cleanup(func() { newObjectStoreWithConfig = orig })
	newObjectStoreWithConfig = func(*logger.Logger, gcp.ObjectStorageConfig) (gcp.ObjectStore, error) {
		return nil, errors.New("no default credentials")
	}

	_, err := resolveObjectStore(logger.NewNop())
	if got := storageBootstrapErrorCode(err); got != StorageBootstrapErrorConnectFailed {
		t.Fatalf("code: got=%q want=%q", got, StorageBootstrapErrorConnectFailed)
	}
	if !strings.Contains(err.Error(), "no default credentials") {
		t.Fatalf("message: got=%q", err.Error())
	}
}

type stubObjectStore struct{}

func (s *stubObjectStore) ListPage(ctx context.Context, bucket, prefix string, pageSize int, pageToken string) (gcp.ObjectPage, error) {
	return gcp.ObjectPage{}, nil
}

func (s *stubObjectStore) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (s *stubObjectStore) Close() error { return nil }
