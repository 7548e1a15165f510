package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/db"
	"github.com/yungbote/tcm-knowledge-backend/internal/jobs/worker"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/csvdoc"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/envutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

type Config struct {
	Port          string
	ServiceName   string
	Environment   string
	ShutdownGrace time.Duration

	JWTSecretKey   string
	AccessTokenTTL time.Duration
	CORSOrigins    []string
	AdminUserIDs   []uuid.UUID
	AuthzReload    time.Duration

	DB db.Config

	DefaultBucket  string
	ScanPageSize   int
	ScanMaxFiles   int
	MaxResyncPaths int
	ChunkBatchSize int
	MaxCSVBytes    int64
	Vocabulary     csvdoc.Vocabulary

	WorkerEnabled bool
	Worker        worker.Config
}

// fileOverlay is the subset of Config a KNOWLEDGE_CONFIG_FILE may override.
type fileOverlay struct {
	Vocabulary     *csvdoc.Vocabulary `yaml:"vocabulary"`
	MaxResyncPaths *int               `yaml:"max_resync_paths"`
	ChunkBatchSize *int               `yaml:"chunk_batch_size"`
	MaxCSVBytes    *int64             `yaml:"max_csv_bytes"`
	AdminUserIDs   []string           `yaml:"admin_user_ids"`
	CORSOrigins    []string           `yaml:"cors_origins"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:          envutil.String("PORT", "8080"),
		ServiceName:   envutil.String("OTEL_SERVICE_NAME", "tcm-knowledge"),
		Environment:   envutil.String("ENVIRONMENT", "development"),
		ShutdownGrace: envutil.Duration("SHUTDOWN_GRACE", 15*time.Second),

		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", ""),
		AccessTokenTTL: envutil.Duration("ACCESS_TOKEN_TTL", time.Hour),
		CORSOrigins:    envutil.List("CORS_ALLOWED_ORIGINS"),
		AuthzReload:    envutil.Duration("AUTHZ_RELOAD_INTERVAL", 30*time.Second),

		DB: db.ConfigFromEnv(),

		DefaultBucket:  envutil.String("KNOWLEDGE_BUCKET", ""),
		ScanPageSize:   envutil.Int("KNOWLEDGE_SCAN_PAGE_SIZE", services.DefaultScanPageSize),
		ScanMaxFiles:   envutil.Int("KNOWLEDGE_SCAN_DEFAULT_MAX_FILES", services.DefaultScanMaxFiles),
		MaxResyncPaths: envutil.Int("KNOWLEDGE_MAX_RESYNC_PATHS", services.DefaultMaxResyncPaths),
		ChunkBatchSize: envutil.Int("KNOWLEDGE_CHUNK_BATCH_SIZE", services.DefaultChunkBatchSize),
		MaxCSVBytes:    int64(envutil.Int("KNOWLEDGE_MAX_CSV_BYTES", services.DefaultMaxCSVBytes)),
		Vocabulary:     csvdoc.DefaultVocabulary(),

		WorkerEnabled: envutil.Bool("WORKER_ENABLED", true),
		Worker:        worker.ConfigFromEnv(),
	}

	admins := envutil.List("KNOWLEDGE_ADMIN_USER_IDS")
	if path := strings.TrimSpace(os.Getenv("KNOWLEDGE_CONFIG_FILE")); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		overlay, err := decodeOverlay(f)
		if err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		admins = append(admins, overlay.apply(&cfg)...)
		log.Info("Loaded config overlay", "path", path)
	}

	ids, err := parseAdminIDs(admins)
	if err != nil {
		return Config{}, err
	}
	cfg.AdminUserIDs = ids
	return cfg, nil
}

func decodeOverlay(r io.Reader) (fileOverlay, error) {
	var overlay fileOverlay
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&overlay); err != nil && !errors.Is(err, io.EOF) {
		return fileOverlay{}, err
	}
	return overlay, nil
}

// apply copies the set fields onto cfg and returns the extra admin ids.
func (o fileOverlay) apply(cfg *Config) []string {
	if o.Vocabulary != nil {
		cfg.Vocabulary = *o.Vocabulary
	}
	if o.MaxResyncPaths != nil {
		cfg.MaxResyncPaths = *o.MaxResyncPaths
	}
	if o.ChunkBatchSize != nil {
		cfg.ChunkBatchSize = *o.ChunkBatchSize
	}
	if o.MaxCSVBytes != nil {
		cfg.MaxCSVBytes = *o.MaxCSVBytes
	}
	if len(o.CORSOrigins) > 0 {
		cfg.CORSOrigins = o.CORSOrigins
	}
	return o.AdminUserIDs
}

func parseAdminIDs(raw []string) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	out := []uuid.UUID{}
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid admin user id %q: %w", s, err)
		}
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
