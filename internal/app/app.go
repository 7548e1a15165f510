package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/db"
	"github.com/yungbote/tcm-knowledge-backend/internal/http"
	"github.com/yungbote/tcm-knowledge-backend/internal/observability"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/envutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *http.Server
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New wires the HTTP server process.
func New(ctx context.Context) (*App, error) {
	return build(ctx, true)
}

// NewOperator wires everything the knowledgectl commands need. It has no
// HTTP server, JWT verifier or job worker.
func NewOperator(ctx context.Context) (*App, error) {
	return build(ctx, false)
}

func build(ctx context.Context, serve bool) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !serve {
		cfg.WorkerEnabled = false
	}

	a := &App{Log: log, Cfg: cfg}
	a.Metrics = observability.Init(log)
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     envutil.String("APP_VERSION", ""),
	})

	dbService, err := db.NewService(log, cfg.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.dbService = dbService
	a.DB = dbService.DB()
	if err := db.AutoMigrateAll(a.DB); err != nil {
		a.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	a.Repos = wireRepos(a.DB, log)

	a.Clients, err = wireClients(a.DB, log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Services, err = wireServices(a.DB, log, cfg, a.Repos, a.Clients)
	if err != nil {
		a.Close()
		return nil, err
	}

	if serve {
		tokens, err := services.NewTokenVerifier(log, cfg.JWTSecretKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init token verifier: %w", err)
		}
		a.Services.Tokens = tokens

		handlerset := wireHandlers(a.DB, log, a.Services)
		middleware := wireMiddleware(log, a.Services, a.Clients)
		a.Server = wireServer(log, cfg, a.Metrics, handlerset, middleware)
	}
	return a, nil
}

// Start launches the background loops: the job worker and the queue
// depth collector. They stop when ctx is done or Close is called.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
	a.Metrics.StartServer(ctx, a.Log, envutil.String("METRICS_ADDR", ""))
}

// Run serves HTTP until ctx is done, then waits for in-flight jobs.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr())
	err := a.Server.Run(ctx, a.Cfg.Addr(), a.Cfg.ShutdownGrace)
	if a.cancel != nil {
		a.cancel()
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Wait()
	}
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownGrace)
		if err := a.otelShutdown(shutdownCtx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
