package app

import (
	"fmt"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/clients/redis"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/authz"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/gcp"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/openai"
)

type Clients struct {
	ObjectStore gcp.ObjectStore
	// Embedder is nil when OPENAI_API_KEY is unset; embed jobs then stay
	// queued until a configured worker picks them up.
	Embedder openai.Embedder
	JobBus   redis.JobBus
	Authz    *authz.Enforcer
}

func wireClients(db *gorm.DB, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	var bus redis.JobBus
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		b, err := redis.NewJobBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis job bus: %w", err)
		}
		bus = b
	}

	// Gcs
	store, err := resolveObjectStore(log)
	if err != nil {
		closeBus(bus)
		return Clients{}, err
	}

	// Openai
	var embedder openai.Embedder
	if strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) != "" {
		e, err := openai.NewClient(log)
		if err != nil {
			_ = store.Close()
			closeBus(bus)
			return Clients{}, fmt.Errorf("init embedding client: %w", err)
		}
		embedder = e
	} else {
		log.Warn("OPENAI_API_KEY not set; knowledge_embed jobs will not run in this process")
	}

	// Casbin
	enforcer, err := authz.NewEnforcer(db, log, cfg.AuthzReload)
	if err != nil {
		_ = store.Close()
		closeBus(bus)
		return Clients{}, fmt.Errorf("init authz: %w", err)
	}
	for _, id := range cfg.AdminUserIDs {
		if _, err := enforcer.Grant(id, authz.RoleAdmin); err != nil {
			enforcer.Close()
			_ = store.Close()
			closeBus(bus)
			return Clients{}, fmt.Errorf("seed admin %s: %w", id, err)
		}
	}

	return Clients{
		ObjectStore: store,
		Embedder:    embedder,
		JobBus:      bus,
		Authz:       enforcer,
	}, nil
}

func closeBus(bus redis.JobBus) {
	if bus != nil {
		_ = bus.Close()
	}
}

func (c Clients) Close() {
	if c.Authz != nil {
		c.Authz.Close()
	}
	if c.ObjectStore != nil {
		_ = c.ObjectStore.Close()
	}
	closeBus(c.JobBus)
}
