package app

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/csvdoc"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

func clearKnowledgeEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "JWT_SECRET_KEY", "CORS_ALLOWED_ORIGINS", "KNOWLEDGE_CONFIG_FILE",
		"KNOWLEDGE_ADMIN_USER_IDS", "KNOWLEDGE_MAX_RESYNC_PATHS", "KNOWLEDGE_CHUNK_BATCH_SIZE",
		"KNOWLEDGE_MAX_CSV_BYTES", "WORKER_ENABLED", "SHUTDOWN_GRACE",
	} {
		t.Setenv(k, "")
	}
}

func writeOverlay(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearKnowledgeEnv(t)

	cfg, err := LoadConfig(logger.NewNop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("addr: got=%q want=%q", cfg.Addr(), ":8080")
	}
	if cfg.MaxResyncPaths != services.DefaultMaxResyncPaths || cfg.ChunkBatchSize != services.DefaultChunkBatchSize {
		t.Fatalf("limits: got=%d/%d", cfg.MaxResyncPaths, cfg.ChunkBatchSize)
	}
	if !reflect.DeepEqual(cfg.Vocabulary, csvdoc.DefaultVocabulary()) {
		t.Fatalf("vocabulary: got=%+v", cfg.Vocabulary)
	}
	if !cfg.WorkerEnabled || cfg.ShutdownGrace != 15*time.Second {
		t.Fatalf("worker/grace: got=%v/%v", cfg.WorkerEnabled, cfg.ShutdownGrace)
	}
	if len(cfg.AdminUserIDs) != 0 {
		t.Fatalf("admins: got=%v want none", cfg.AdminUserIDs)
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	clearKnowledgeEnv(t)
	envAdmin := uuid.New()
	fileAdmin := uuid.New()
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("KNOWLEDGE_ADMIN_USER_IDS", envAdmin.String())
	t.Setenv("KNOWLEDGE_MAX_RESYNC_PATHS", "10")
	t.Setenv("KNOWLEDGE_CONFIG_FILE", writeOverlay(t, `
vocabulary:
  question: [pattern]
  answer: [treatment]
max_resync_paths: 3
chunk_batch_size: 25
admin_user_ids:
  - `+fileAdmin.String()+`
  - `+envAdmin.String()+`
`))

	cfg, err := LoadConfig(logger.NewNop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr: got=%q", cfg.Addr())
	}
	if cfg.MaxResyncPaths != 3 || cfg.ChunkBatchSize != 25 {
		t.Fatalf("overlay limits: got=%d/%d want=3/25", cfg.MaxResyncPaths, cfg.ChunkBatchSize)
	}
	if cfg.MaxCSVBytes != services.DefaultMaxCSVBytes {
		t.Fatalf("max bytes: got=%d want default", cfg.MaxCSVBytes)
	}
	if !reflect.DeepEqual(cfg.Vocabulary.Question, []string{"pattern"}) || !reflect.DeepEqual(cfg.Vocabulary.Answer, []string{"treatment"}) {
		t.Fatalf("vocabulary: got=%+v", cfg.Vocabulary)
	}
	want := []uuid.UUID{envAdmin, fileAdmin}
	if !reflect.DeepEqual(cfg.AdminUserIDs, want) {
		t.Fatalf("admins: got=%v want=%v", cfg.AdminUserIDs, want)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		overlay string
		want    string
	}{
		{name: "unknown key", overlay: "max_paths: 3\n", want: "max_paths"},
		{name: "bad yaml", overlay: "vocabulary: [\n", want: "config file"},
		{name: "bad admin id", env: map[string]string{"KNOWLEDGE_ADMIN_USER_IDS": "root"}, want: `invalid admin user id "root"`},
		{name: "missing file", env: map[string]string{"KNOWLEDGE_CONFIG_FILE": "/nonexistent/knowledge.yaml"}, want: "open config file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearKnowledgeEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if tc.overlay != "" {
				t.Setenv("KNOWLEDGE_CONFIG_FILE", writeOverlay(t, tc.overlay))
			}
			_, err := LoadConfig(logger.NewNop())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err: got=%v want containing %q", err, tc.want)
			}
		})
	}
}

func TestEmptyOverlayKeepsEnv(t *testing.T) {
	overlay, err := decodeOverlay(strings.NewReader(""))
	if err != nil {
		t.Fatalf("decodeOverlay: %v", err)
	}
	cfg := Config{MaxResyncPaths: 7}
	if extra := overlay.apply(&cfg); len(extra) != 0 || cfg.MaxResyncPaths != 7 {
		t.Fatalf("apply: extra=%v max=%d", extra, cfg.MaxResyncPaths)
	}
}
